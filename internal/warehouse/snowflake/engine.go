// Package snowflake executes SQL against Snowflake through the
// gosnowflake database/sql driver. All six SNOWFLAKE_* connection
// settings are required before the backend is considered configured.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"github.com/tollgate/tollgate/internal/warehouse"
)

type Config struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
}

type Engine struct {
	db *sql.DB
}

func New(cfg Config) (*Engine, error) {
	if cfg.Account == "" || cfg.User == "" || cfg.Password == "" ||
		cfg.Database == "" || cfg.Schema == "" || cfg.Warehouse == "" {
		return nil, fmt.Errorf("snowflake: %w (set SNOWFLAKE_ACCOUNT, SNOWFLAKE_USER, SNOWFLAKE_PASSWORD, SNOWFLAKE_DATABASE, SNOWFLAKE_SCHEMA, and SNOWFLAKE_WAREHOUSE)", warehouse.ErrNotConfigured)
	}

	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
	})
	if err != nil {
		return nil, fmt.Errorf("build snowflake dsn: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Engine{db: db}, nil
}

// NewFromDB wraps an existing database handle. Tests use this to
// substitute a mock driver.
func NewFromDB(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Name() string { return "snowflake" }

func (e *Engine) Query(ctx context.Context, req warehouse.Request) (warehouse.Result, error) {
	if err := warehouse.EnsureReadOnly(req.SQL); err != nil {
		return warehouse.Result{}, err
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, req.SQL)
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("snowflake query: %w", err)
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
