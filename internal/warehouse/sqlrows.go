package warehouse

import (
	"database/sql"
	"fmt"
)

// CollectRows drains a database/sql result set into column names and
// positional rows. Byte slices are copied into strings because drivers
// may reuse their scan buffers between calls. A limit of zero or less
// means no cap.
func CollectRows(rows *sql.Rows, limit int) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read result columns: %w", err)
	}

	var data [][]any
	for rows.Next() {
		if limit > 0 && len(data) >= limit {
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan result row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return columns, data, nil
}
