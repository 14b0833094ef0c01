package lake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tollgate/tollgate/internal/storage"
	"github.com/tollgate/tollgate/internal/warehouse"
)

// ExportInfo describes a result set written to the object store.
type ExportInfo struct {
	Key      string
	Size     int64
	RowCount int
}

// Result rows are dynamic, so each row is stored as a JSON document in
// a single column next to its ordinal. DuckDB reads these back with
// its JSON extension.
type exportRow struct {
	Seq     int64  `parquet:"seq"`
	RowJSON string `parquet:"row_json"`
}

// Exporter writes query results to the object store as parquet files
// under exports/.
type Exporter struct {
	store storage.ObjectStore
}

func NewExporter(store storage.ObjectStore) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("export: %w (set TOLLGATE_OBJECTSTORE_ENDPOINT and TOLLGATE_OBJECTSTORE_BUCKET)", warehouse.ErrNotConfigured)
	}
	return &Exporter{store: store}, nil
}

// Export encodes the result and uploads it under exports/<name>.parquet.
// The name is sanitized to a single path component; a timestamped name
// is generated when it is empty.
func (e *Exporter) Export(ctx context.Context, name string, result warehouse.Result) (ExportInfo, error) {
	if len(result.Rows) == 0 {
		return ExportInfo{}, fmt.Errorf("result has no rows to export")
	}

	data, err := encodeResult(result)
	if err != nil {
		return ExportInfo{}, err
	}

	key := path.Join("exports", exportFileName(name))
	info, err := e.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return ExportInfo{}, err
	}
	return ExportInfo{Key: info.Key, Size: info.Size, RowCount: len(result.Rows)}, nil
}

func encodeResult(result warehouse.Result) ([]byte, error) {
	rows := make([]exportRow, 0, len(result.Rows))
	for i, record := range result.Rows {
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode result row %d: %w", i, err)
		}
		rows = append(rows, exportRow{Seq: int64(i), RowJSON: string(payload)})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[exportRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func exportFileName(name string) string {
	name = strings.TrimSpace(strings.TrimSuffix(name, ".parquet"))
	if name == "" {
		name = "export-" + time.Now().UTC().Format("20060102T150405Z")
	}
	return sanitizeFileComponent(name) + ".parquet"
}
