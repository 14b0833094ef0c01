package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEngine struct {
	name string
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Query(ctx context.Context, req Request) (Result, error) {
	return Result{Engine: f.name}, nil
}

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

func TestEnsureReadOnly(t *testing.T) {
	allowed := []string{
		"SELECT 1",
		"  select * from tolls",
		"WITH t AS (SELECT 1) SELECT * FROM t",
	}
	for _, sql := range allowed {
		if err := EnsureReadOnly(sql); err != nil {
			t.Fatalf("EnsureReadOnly(%q) = %v, want nil", sql, err)
		}
	}

	rejected := []string{
		"DROP TABLE tolls",
		"INSERT INTO tolls VALUES (1)",
		"UPDATE tolls SET amount = 0",
		"",
		"   ",
	}
	for _, sql := range rejected {
		if err := EnsureReadOnly(sql); err == nil {
			t.Fatalf("EnsureReadOnly(%q) = nil, want error", sql)
		}
	}
}

func TestZipRowsPadsShortRows(t *testing.T) {
	rows := ZipRows([]string{"id", "amount"}, [][]any{
		{int64(1), 2.5},
		{int64(2)},
	})
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d", len(rows))
	}
	if rows[0]["id"] != int64(1) || rows[0]["amount"] != 2.5 {
		t.Fatalf("rows[0] = %v", rows[0])
	}
	if rows[1]["amount"] != nil {
		t.Fatalf("rows[1][amount] = %v, want nil", rows[1]["amount"])
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry("databricks")
	reg.Register(&fakeEngine{name: "databricks"})
	reg.Register(&fakeEngine{name: "snowflake"})

	engine, err := reg.Lookup("")
	if err != nil {
		t.Fatalf("Lookup(\"\") error = %v", err)
	}
	if engine.Name() != "databricks" {
		t.Fatalf("default engine = %q", engine.Name())
	}

	engine, err = reg.Lookup("snowflake")
	if err != nil {
		t.Fatalf("Lookup(snowflake) error = %v", err)
	}
	if engine.Name() != "snowflake" {
		t.Fatalf("engine = %q", engine.Name())
	}

	_, err = reg.Lookup("postgres")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Lookup(postgres) error = %v, want ErrNotConfigured", err)
	}
	if !strings.Contains(err.Error(), "databricks, snowflake") {
		t.Fatalf("error should list configured backends: %v", err)
	}
}

func TestRegistryLookupEmptyRegistry(t *testing.T) {
	reg := NewRegistry("databricks")
	_, err := reg.Lookup("")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
	if !strings.Contains(err.Error(), "no backends configured") {
		t.Fatalf("error = %v", err)
	}
}
