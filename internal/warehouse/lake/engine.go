// Package lake runs SQL over parquet files in the object store using
// an in-process DuckDB. Objects are laid out as <table>/<anything>.parquet;
// the first path component becomes the view name, so the same queries the
// hosted warehouses answer can run against the lake without a cluster.
package lake

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tollgate/tollgate/internal/storage"
	"github.com/tollgate/tollgate/internal/warehouse"
)

type Engine struct {
	store storage.ObjectStore
}

func New(store storage.ObjectStore) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("lake: %w (set TOLLGATE_OBJECTSTORE_ENDPOINT and TOLLGATE_OBJECTSTORE_BUCKET)", warehouse.ErrNotConfigured)
	}
	return &Engine{store: store}, nil
}

func (e *Engine) Name() string { return "lake" }

func (e *Engine) Query(ctx context.Context, req warehouse.Request) (warehouse.Result, error) {
	if err := warehouse.EnsureReadOnly(req.SQL); err != nil {
		return warehouse.Result{}, err
	}

	start := time.Now()
	objects, err := e.store.List(ctx, "")
	if err != nil {
		return warehouse.Result{}, err
	}

	workDir, err := os.MkdirTemp("", "tollgate-lake-")
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("create lake temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	tables, err := e.materialize(ctx, workDir, objects)
	if err != nil {
		return warehouse.Result{}, err
	}
	if len(tables) == 0 {
		return warehouse.Result{}, fmt.Errorf("no parquet objects in the lake")
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	for table, localPaths := range tables {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return warehouse.Result{}, fmt.Errorf("create view for table %q: %w", table, err)
		}
	}

	sqlText := stripTrailingSemicolons(req.SQL)
	if req.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, req.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("lake query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, data, err := warehouse.CollectRows(rows, 0)
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

// Ping only checks that the store answers a listing.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.store.List(ctx, "")
	return err
}

// materialize downloads every parquet object into workDir and groups
// the local paths by table name.
func (e *Engine) materialize(ctx context.Context, workDir string, objects []storage.ObjectInfo) (map[string][]string, error) {
	tables := map[string][]string{}
	for index, obj := range objects {
		table, ok := tableForKey(obj.Key)
		if !ok {
			continue
		}
		reader, err := e.store.Get(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("get object %q: %w", obj.Key, err)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(table), index))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return nil, fmt.Errorf("close object %q: %w", obj.Key, err)
		}
		tables[table] = append(tables[table], localPath)
	}
	return tables, nil
}

func tableForKey(key string) (string, bool) {
	if !strings.HasSuffix(key, ".parquet") {
		return "", false
	}
	table, _, found := strings.Cut(strings.TrimPrefix(key, "/"), "/")
	if !found || table == "" {
		return "", false
	}
	return table, true
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
