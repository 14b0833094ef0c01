// Package warehouse defines the execution contract shared by the SQL
// backends. Each backend accepts a read-only statement and returns the
// result set as ordered columns plus row maps, so tool callers get the
// same shape regardless of which warehouse ran the query.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotConfigured is returned when a backend is addressed but its
	// connection settings are absent from the environment.
	ErrNotConfigured = errors.New("warehouse backend not configured")
	// ErrStatementFailed is wrapped by backends when the warehouse
	// reports a failed statement rather than a transport error.
	ErrStatementFailed = errors.New("statement failed")
	// ErrStatementNotAllowed is returned for statements that are not
	// read-only.
	ErrStatementNotAllowed = errors.New("only read-only SELECT or WITH statements are allowed")
)

// Request is a single statement to execute.
type Request struct {
	SQL      string
	RowLimit int
}

// Result carries the outcome of a statement. Columns preserve the
// warehouse ordering; Rows zip each data row against Columns.
type Result struct {
	Columns  []string
	Rows     []map[string]any
	RowCount int
	Engine   string
	Duration time.Duration
}

// Engine executes read-only SQL against one warehouse backend.
type Engine interface {
	Name() string
	Query(ctx context.Context, req Request) (Result, error)
	Ping(ctx context.Context) error
}

// EnsureReadOnly rejects statements that could mutate state. The tool
// surface is strictly a reader, so only SELECT and WITH are accepted.
func EnsureReadOnly(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("sql statement is required")
	}
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return nil
	}
	return ErrStatementNotAllowed
}

// ZipRows converts positional rows into column-keyed maps. Values are
// kept as returned by the backend.
func ZipRows(columns []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(row) {
				record[col] = row[i]
			} else {
				record[col] = nil
			}
		}
		out = append(out, record)
	}
	return out
}

// Registry holds the configured engines by name and resolves the
// default backend for callers that do not name one.
type Registry struct {
	engines     map[string]Engine
	defaultName string
}

func NewRegistry(defaultName string) *Registry {
	return &Registry{
		engines:     map[string]Engine{},
		defaultName: defaultName,
	}
}

// Register adds an engine under its own name. Later registrations with
// the same name replace earlier ones.
func (r *Registry) Register(engine Engine) {
	r.engines[engine.Name()] = engine
}

// Lookup resolves an engine by name, falling back to the default when
// name is empty.
func (r *Registry) Lookup(name string) (Engine, error) {
	if name == "" {
		name = r.defaultName
	}
	engine, ok := r.engines[name]
	if !ok {
		available := r.Names()
		if len(available) == 0 {
			return nil, fmt.Errorf("warehouse %q: %w (no backends configured)", name, ErrNotConfigured)
		}
		return nil, fmt.Errorf("warehouse %q: %w (configured: %s)", name, ErrNotConfigured, strings.Join(available, ", "))
	}
	return engine, nil
}

// Names lists the configured engine names sorted for stable output.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
