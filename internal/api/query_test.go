package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/nl2sql"
	"github.com/tollgate/tollgate/internal/warehouse"
)

type fakeEngine struct {
	name    string
	result  warehouse.Result
	err     error
	lastSQL string
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Query(ctx context.Context, req warehouse.Request) (warehouse.Result, error) {
	f.lastSQL = req.SQL
	if f.err != nil {
		return warehouse.Result{}, f.err
	}
	result := f.result
	result.Engine = f.name
	return result, nil
}

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

type fakeTranslator struct {
	sql string
	err error
}

func (f *fakeTranslator) Translate(ctx context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{SQL: f.sql, Model: "fake-model"}, nil
}

func registryWith(engines ...warehouse.Engine) *warehouse.Registry {
	registry := warehouse.NewRegistry("databricks")
	for _, engine := range engines {
		registry.Register(engine)
	}
	return registry
}

func TestQueryEndpointExecutesAgainstDefaultWarehouse(t *testing.T) {
	engine := &fakeEngine{
		name: "databricks",
		result: warehouse.Result{
			Columns:  []string{"plaza"},
			Rows:     []map[string]any{{"plaza": "gate-4"}},
			RowCount: 1,
		},
	}
	handler := NewHandler(testConfig(t), Dependencies{Warehouses: registryWith(engine)})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "SELECT plaza FROM tolls"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	var response queryResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Engine != "databricks" || response.RowCount != 1 {
		t.Fatalf("response = %+v", response)
	}
	if engine.lastSQL != "SELECT plaza FROM tolls" {
		t.Fatalf("engine saw %q", engine.lastSQL)
	}
}

func TestQueryEndpointRejectsWrites(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Warehouses: registryWith(&fakeEngine{name: "databricks"})})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "DROP TABLE tolls"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "SQL_NOT_ALLOWED") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestQueryEndpointReportsUnknownWarehouse(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{Warehouses: registryWith(&fakeEngine{name: "databricks"})})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "SELECT 1", "warehouse": "bigquery"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "WAREHOUSE_NOT_CONFIGURED") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestQueryEndpointEnforcesRole(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Required = true
	validator, err := auth.NewStaticAPIKeyValidator("reader-key:reporting:query_reader,nobody-key:guest:viewer")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	handler := NewHandler(cfg, Dependencies{
		Warehouses:     registryWith(&fakeEngine{name: "databricks", result: warehouse.Result{RowCount: 0}}),
		AuthMiddleware: auth.Middleware(nil, validator),
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "SELECT 1"}`))
	request.Header.Set("X-API-Key", "nobody-key")
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql": "SELECT 1"}`))
	request.Header.Set("X-API-Key", "reader-key")
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
}

func TestTranslateEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{
		Translator: &fakeTranslator{sql: "SELECT * FROM my_catalog.my_schema.tolls LIMIT 10"},
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(`{"prompt": "show all tolls"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	var response translateResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(response.SQL, "SELECT") {
		t.Fatalf("sql = %q", response.SQL)
	}
}

func TestTranslateEndpointWithoutGateway(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(`{"prompt": "anything"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "NLP_GATEWAY_URL") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestListWarehousesEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(t), Dependencies{
		Warehouses: registryWith(&fakeEngine{name: "databricks"}, &fakeEngine{name: "lake"}),
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/warehouses", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var response struct {
		Warehouses []string `json:"warehouses"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Warehouses) != 2 || response.Warehouses[0] != "databricks" {
		t.Fatalf("warehouses = %v", response.Warehouses)
	}
}
