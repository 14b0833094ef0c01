// Package postgres executes SQL against PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tollgate/tollgate/internal/warehouse"
)

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type Engine struct {
	db *sql.DB
}

func New(cfg Config) (*Engine, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: %w (set TOLLGATE_POSTGRES_DSN)", warehouse.ErrNotConfigured)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &Engine{db: db}, nil
}

// NewFromDB wraps an existing database handle for tests.
func NewFromDB(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Name() string { return "postgres" }

func (e *Engine) Query(ctx context.Context, req warehouse.Request) (warehouse.Result, error) {
	if err := warehouse.EnsureReadOnly(req.SQL); err != nil {
		return warehouse.Result{}, err
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, req.SQL)
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("postgres query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, data, err := warehouse.CollectRows(rows, req.RowLimit)
	if err != nil {
		return warehouse.Result{}, err
	}
	zipped := warehouse.ZipRows(columns, data)
	return warehouse.Result{
		Columns:  columns,
		Rows:     zipped,
		RowCount: len(zipped),
		Engine:   e.Name(),
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *Engine) Close() error {
	return e.db.Close()
}
