package lake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/tollgate/tollgate/internal/storage"
	"github.com/tollgate/tollgate/internal/warehouse"
)

type crossing struct {
	Plaza       string  `parquet:"plaza"`
	VehicleType string  `parquet:"vehicle_type"`
	Amount      float64 `parquet:"amount"`
}

type memoryStore struct {
	objects map[string][]byte
	puts    map[string][]byte
}

func (m *memoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if m.puts == nil {
		m.puts = map[string][]byte{}
	}
	m.puts[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	for key, data := range m.objects {
		infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(data))})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func buildParquet(t *testing.T, rows []crossing) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[crossing](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

func TestQueryReadsParquetTablesFromStore(t *testing.T) {
	data := buildParquet(t, []crossing{
		{Plaza: "gate-4", VehicleType: "car", Amount: 2.50},
		{Plaza: "gate-4", VehicleType: "truck", Amount: 3.75},
		{Plaza: "gate-7", VehicleType: "car", Amount: 2.50},
	})
	store := &memoryStore{objects: map[string][]byte{
		"crossings/2026/part-0.parquet": data,
		"crossings/readme.txt":          []byte("not parquet"),
	}}

	engine, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := engine.Query(context.Background(), warehouse.Request{
		SQL: "SELECT plaza, COUNT(*) AS trips FROM crossings GROUP BY plaza ORDER BY plaza",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if result.Rows[0]["plaza"] != "gate-4" {
		t.Fatalf("rows[0] = %v", result.Rows[0])
	}
	if result.Engine != "lake" {
		t.Fatalf("Engine = %q", result.Engine)
	}
}

func TestQueryAppliesRowLimit(t *testing.T) {
	data := buildParquet(t, []crossing{
		{Plaza: "gate-1", VehicleType: "car", Amount: 2.50},
		{Plaza: "gate-2", VehicleType: "car", Amount: 2.50},
		{Plaza: "gate-3", VehicleType: "car", Amount: 2.50},
	})
	store := &memoryStore{objects: map[string][]byte{"crossings/part-0.parquet": data}}

	engine, err := New(store)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := engine.Query(context.Background(), warehouse.Request{
		SQL:      "SELECT plaza FROM crossings",
		RowLimit: 2,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", result.RowCount)
	}
}

func TestQueryFailsWithoutParquetObjects(t *testing.T) {
	engine, err := New(&memoryStore{objects: map[string][]byte{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := engine.Query(context.Background(), warehouse.Request{SQL: "SELECT 1"}); err == nil {
		t.Fatal("expected error for empty lake")
	}
}

func TestQueryRejectsWrites(t *testing.T) {
	engine, err := New(&memoryStore{objects: map[string][]byte{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = engine.Query(context.Background(), warehouse.Request{SQL: "CREATE TABLE x (n INT)"})
	if !errors.Is(err, warehouse.ErrStatementNotAllowed) {
		t.Fatalf("error = %v, want ErrStatementNotAllowed", err)
	}
}

func TestTableForKey(t *testing.T) {
	if table, ok := tableForKey("crossings/2026/part-0.parquet"); !ok || table != "crossings" {
		t.Fatalf("tableForKey = %q/%v", table, ok)
	}
	if _, ok := tableForKey("loose.parquet"); ok {
		t.Fatal("keys without a table component should be skipped")
	}
	if _, ok := tableForKey("crossings/notes.txt"); ok {
		t.Fatal("non-parquet objects should be skipped")
	}
}
