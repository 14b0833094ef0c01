// Package databricks executes SQL through the Databricks SQL Statement
// Execution REST API. Statements are submitted with a server-side wait
// and then polled until they leave the PENDING/RUNNING states.
package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/warehouse"
)

const statementsPath = "/api/2.0/sql/statements"

type Config struct {
	Host        string
	Token       string
	WarehouseID string
	// WaitTimeout is passed through to the API verbatim, e.g. "30s".
	WaitTimeout  string
	PollInterval time.Duration
	PollDeadline time.Duration
	HTTPClient   *http.Client
}

type Engine struct {
	host         string
	token        string
	warehouseID  string
	waitTimeout  string
	pollInterval time.Duration
	pollDeadline time.Duration
	client       *http.Client
}

func New(cfg Config) (*Engine, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.WarehouseID == "" {
		return nil, fmt.Errorf("databricks: %w (set DATABRICKS_HOST, DATABRICKS_TOKEN, and DATABRICKS_SQL_WAREHOUSE_ID)", warehouse.ErrNotConfigured)
	}
	engine := &Engine{
		host:         strings.TrimRight(cfg.Host, "/"),
		token:        cfg.Token,
		warehouseID:  cfg.WarehouseID,
		waitTimeout:  cfg.WaitTimeout,
		pollInterval: cfg.PollInterval,
		pollDeadline: cfg.PollDeadline,
		client:       cfg.HTTPClient,
	}
	if engine.waitTimeout == "" {
		engine.waitTimeout = "30s"
	}
	if engine.pollInterval <= 0 {
		engine.pollInterval = 2 * time.Second
	}
	if engine.pollDeadline <= 0 {
		engine.pollDeadline = 5 * time.Minute
	}
	if engine.client == nil {
		engine.client = &http.Client{Timeout: 60 * time.Second}
	}
	return engine, nil
}

func (e *Engine) Name() string { return "databricks" }

type statementStatus struct {
	State string `json:"state"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type statementResponse struct {
	StatementID string          `json:"statement_id"`
	Status      statementStatus `json:"status"`
	Manifest    struct {
		Schema struct {
			Columns []struct {
				Name string `json:"name"`
			} `json:"columns"`
		} `json:"schema"`
	} `json:"manifest"`
	Result struct {
		DataArray [][]any `json:"data_array"`
	} `json:"result"`
}

func (e *Engine) Query(ctx context.Context, req warehouse.Request) (warehouse.Result, error) {
	if err := warehouse.EnsureReadOnly(req.SQL); err != nil {
		return warehouse.Result{}, err
	}

	start := time.Now()
	resp, err := e.submit(ctx, req.SQL)
	if err != nil {
		return warehouse.Result{}, err
	}

	deadline := time.Now().Add(e.pollDeadline)
	for resp.Status.State == "PENDING" || resp.Status.State == "RUNNING" {
		if time.Now().After(deadline) {
			return warehouse.Result{}, fmt.Errorf("databricks statement %s still %s after %s", resp.StatementID, resp.Status.State, e.pollDeadline)
		}
		select {
		case <-ctx.Done():
			return warehouse.Result{}, ctx.Err()
		case <-time.After(e.pollInterval):
		}
		resp, err = e.poll(ctx, resp.StatementID)
		if err != nil {
			return warehouse.Result{}, err
		}
	}

	if resp.Status.State != "SUCCEEDED" {
		message := "no error detail"
		if resp.Status.Error != nil && resp.Status.Error.Message != "" {
			message = resp.Status.Error.Message
		}
		return warehouse.Result{}, fmt.Errorf("databricks statement %s state=%s: %s: %w", resp.StatementID, resp.Status.State, message, warehouse.ErrStatementFailed)
	}

	columns := make([]string, 0, len(resp.Manifest.Schema.Columns))
	for _, col := range resp.Manifest.Schema.Columns {
		columns = append(columns, col.Name)
	}
	data := resp.Result.DataArray
	if req.RowLimit > 0 && len(data) > req.RowLimit {
		data = data[:req.RowLimit]
	}
	rows := warehouse.ZipRows(columns, data)
	return warehouse.Result{
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
		Engine:   e.Name(),
		Duration: time.Since(start),
	}, nil
}

// Ping submits a trivial statement to verify connectivity and
// credentials.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.Query(ctx, warehouse.Request{SQL: "SELECT 1"})
	return err
}

func (e *Engine) submit(ctx context.Context, sql string) (statementResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"warehouse_id": e.warehouseID,
		"statement":    sql,
		"wait_timeout": e.waitTimeout,
	})
	if err != nil {
		return statementResponse{}, fmt.Errorf("marshal statement payload: %w", err)
	}
	return e.do(ctx, http.MethodPost, e.host+statementsPath, bytes.NewReader(payload))
}

func (e *Engine) poll(ctx context.Context, statementID string) (statementResponse, error) {
	return e.do(ctx, http.MethodGet, e.host+statementsPath+"/"+statementID, nil)
}

func (e *Engine) do(ctx context.Context, method, url string, body io.Reader) (statementResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return statementResponse{}, fmt.Errorf("build databricks request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return statementResponse{}, fmt.Errorf("request databricks: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return statementResponse{}, fmt.Errorf("read databricks response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return statementResponse{}, fmt.Errorf("databricks api failed status=%d body=%s", resp.StatusCode, string(raw))
	}

	var decoded statementResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return statementResponse{}, fmt.Errorf("decode databricks response: %w", err)
	}
	return decoded, nil
}
