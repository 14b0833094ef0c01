package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/nl2sql"
	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/internal/warehouse"
)

type queryRequest struct {
	SQL       string `json:"sql"`
	Warehouse string `json:"warehouse"`
	RowLimit  int    `json:"row_limit"`
}

type queryResponse struct {
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"row_count"`
	Engine     string           `json:"engine"`
	DurationMs int64            `json:"duration_ms"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Warehouses == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if err := warehouse.EnsureReadOnly(request.SQL); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
		return
	}

	engine, err := deps.Warehouses.Lookup(request.Warehouse)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "WAREHOUSE_NOT_CONFIGURED", err.Error(), false, nil)
		return
	}
	observability.MarkEngine(r.Context(), engine.Name())

	start := time.Now()
	result, err := engine.Query(r.Context(), warehouse.Request{
		SQL:      request.SQL,
		RowLimit: request.RowLimit,
	})
	observability.ObserveWarehouseQuery(engine.Name(), time.Since(start), err)
	if err != nil {
		status := http.StatusBadRequest
		retryable := false
		if !errors.Is(err, warehouse.ErrStatementFailed) && !errors.Is(err, warehouse.ErrStatementNotAllowed) {
			status = http.StatusBadGateway
			retryable = true
		}
		writeError(r.Context(), w, status, "QUERY_EXECUTION_FAILED", "query execution failed", retryable, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:    result.Columns,
		Rows:       result.Rows,
		RowCount:   result.RowCount,
		Engine:     result.Engine,
		DurationMs: result.Duration.Milliseconds(),
	})
}

type translateRequest struct {
	Prompt string                `json:"prompt"`
	Tables []nl2sql.TableContext `json:"tables"`
}

type translateResponse struct {
	SQL   string `json:"sql"`
	Model string `json:"model,omitempty"`
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "nl2sql is not configured, set NLP_GATEWAY_URL and NLP_MODEL_NAME", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request translateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translate request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	start := time.Now()
	result, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		NaturalLanguage: request.Prompt,
		Tables:          request.Tables,
	})
	observability.ObserveTranslate(time.Since(start), err)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "nl2sql translation failed", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{SQL: result.SQL, Model: result.Model})
}

func handleListWarehouses(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Warehouses == nil {
		writeJSON(w, http.StatusOK, map[string]any{"warehouses": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warehouses": deps.Warehouses.Names()})
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
