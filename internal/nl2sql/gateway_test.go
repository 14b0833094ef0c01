package nl2sql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGatewayTranslatorSendsDocumentedRequestShape(t *testing.T) {
	var gotAuth, gotContentType string
	var gotPayload map[string]any

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"text":"SELECT * FROM my_catalog.my_schema.tolls LIMIT 10"}]}`))
	}))
	defer gateway.Close()

	translator, err := NewGatewayTranslator(GatewayConfig{
		URL:    gateway.URL,
		Model:  "sql-coder-7b",
		APIKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewGatewayTranslator() error = %v", err)
	}

	result, err := translator.Translate(context.Background(), Request{NaturalLanguage: "show all tolls"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT * FROM my_catalog.my_schema.tolls LIMIT 10" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Model != "sql-coder-7b" {
		t.Fatalf("Model = %q", result.Model)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("Content-Type = %q", gotContentType)
	}
	if gotPayload["model"] != "sql-coder-7b" {
		t.Fatalf("payload model = %v", gotPayload["model"])
	}
	if gotPayload["max_tokens"] != float64(200) {
		t.Fatalf("payload max_tokens = %v", gotPayload["max_tokens"])
	}
	prompt, _ := gotPayload["prompt"].(string)
	if !strings.Contains(prompt, "show all tolls") {
		t.Fatalf("prompt does not contain the request: %q", prompt)
	}
	if !strings.Contains(prompt, "my_catalog.my_schema") {
		t.Fatalf("prompt does not qualify tables: %q", prompt)
	}
}

func TestGatewayTranslatorOmitsAuthorizationWithoutKey(t *testing.T) {
	var sawAuth bool
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{"choices":[{"text":"SELECT 1"}]}`))
	}))
	defer gateway.Close()

	translator, err := NewGatewayTranslator(GatewayConfig{URL: gateway.URL, Model: "m"})
	if err != nil {
		t.Fatalf("NewGatewayTranslator() error = %v", err)
	}
	if _, err := translator.Translate(context.Background(), Request{NaturalLanguage: "anything"}); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if sawAuth {
		t.Fatal("Authorization header should be absent when NLP_API_KEY is empty")
	}
}

func TestGatewayTranslatorSurfacesGatewayFailure(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"model unavailable"}`))
	}))
	defer gateway.Close()

	translator, err := NewGatewayTranslator(GatewayConfig{URL: gateway.URL, Model: "m"})
	if err != nil {
		t.Fatalf("NewGatewayTranslator() error = %v", err)
	}
	_, err = translator.Translate(context.Background(), Request{NaturalLanguage: "anything"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "status=502") {
		t.Fatalf("error should carry the status: %v", err)
	}
}

func TestNewGatewayTranslatorRequiresURLAndModel(t *testing.T) {
	if _, err := NewGatewayTranslator(GatewayConfig{Model: "m"}); err == nil {
		t.Fatal("expected error without URL")
	}
	if _, err := NewGatewayTranslator(GatewayConfig{URL: "http://x"}); err == nil {
		t.Fatal("expected error without model")
	}
}

func TestTranslateRequiresPrompt(t *testing.T) {
	translator, err := NewGatewayTranslator(GatewayConfig{URL: "http://unused", Model: "m"})
	if err != nil {
		t.Fatalf("NewGatewayTranslator() error = %v", err)
	}
	if _, err := translator.Translate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestParseSQLResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"completions", `{"choices":[{"text":"SELECT 1"}]}`, "SELECT 1"},
		{"chat", `{"choices":[{"message":{"content":"SELECT 2"}}]}`, "SELECT 2"},
		{"flat sql", `{"sql":"SELECT 3"}`, "SELECT 3"},
		{"flat text", `{"text":"SELECT 4"}`, "SELECT 4"},
		{"flat completion", `{"completion":"SELECT 5"}`, "SELECT 5"},
		{"fenced", "{\"sql\":\"```sql\\nSELECT 6;\\n```\"}", "SELECT 6;"},
	}
	for _, tc := range cases {
		got, err := ParseSQL([]byte(tc.body))
		if err != nil {
			t.Fatalf("%s: ParseSQL() error = %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: ParseSQL() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestParseSQLRejectsEmptyAndUnknownShapes(t *testing.T) {
	if _, err := ParseSQL([]byte(`{"choices":[{"text":""}]}`)); err == nil {
		t.Fatal("expected error for empty SQL")
	}
	if _, err := ParseSQL([]byte(`{"result":"SELECT 1"}`)); err == nil {
		t.Fatal("expected error for unknown shape")
	}
	if _, err := ParseSQL([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}
