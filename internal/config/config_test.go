package config

import (
	"log/slog"
	"testing"
	"time"
)

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("tollgate-mcp", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.MCP.Transport != "stdio" {
		t.Fatalf("MCP.Transport = %q", cfg.MCP.Transport)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Gateway.MaxTokens != 200 {
		t.Fatalf("Gateway.MaxTokens = %d", cfg.Gateway.MaxTokens)
	}
	if cfg.Gateway.DefaultCatalog != "my_catalog" || cfg.Gateway.DefaultSchema != "my_schema" {
		t.Fatalf("Gateway defaults = %q.%q", cfg.Gateway.DefaultCatalog, cfg.Gateway.DefaultSchema)
	}
	if cfg.Warehouse.Default != "databricks" {
		t.Fatalf("Warehouse.Default = %q", cfg.Warehouse.Default)
	}
	if cfg.Warehouse.RowLimit != 10 {
		t.Fatalf("Warehouse.RowLimit = %d", cfg.Warehouse.RowLimit)
	}
	if cfg.Databricks.WaitTimeout != "30s" {
		t.Fatalf("Databricks.WaitTimeout = %q", cfg.Databricks.WaitTimeout)
	}
	if cfg.Databricks.PollInterval != 2*time.Second {
		t.Fatalf("Databricks.PollInterval = %v", cfg.Databricks.PollInterval)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"TOLLGATE_PROFILE": "prod"})
	cfg, err := Load("tollgate-mcp", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TOLLGATE_PROFILE":               "test",
		"TOLLGATE_HTTP_ADDR":             ":9999",
		"TOLLGATE_MCP_TRANSPORT":         "http",
		"TOLLGATE_LOG_LEVEL":             "error",
		"TOLLGATE_AUTH_REQUIRED":         "true",
		"TOLLGATE_AUTH_STATIC_KEYS":      "k1:ops:query_reader",
		"TOLLGATE_GATEWAY_TIMEOUT":       "3s",
		"TOLLGATE_GATEWAY_MAX_TOKENS":    "512",
		"TOLLGATE_WAREHOUSE_DEFAULT":     "lake",
		"TOLLGATE_WAREHOUSE_ROW_LIMIT":   "25",
		"NLP_GATEWAY_URL":                "https://gateway.example.com/v1/completions",
		"NLP_MODEL_NAME":                 "sql-coder-7b",
		"NLP_API_KEY":                    "secret",
		"DATABRICKS_HOST":                "https://adb.example.com",
		"DATABRICKS_TOKEN":               "dapi123",
		"DATABRICKS_SQL_WAREHOUSE_ID":    "abc123",
		"SNOWFLAKE_ACCOUNT":              "acme-xy12345",
		"SNOWFLAKE_USER":                 "svc",
		"SNOWFLAKE_PASSWORD":             "pw",
		"SNOWFLAKE_DATABASE":             "analytics",
		"SNOWFLAKE_SCHEMA":               "public",
		"SNOWFLAKE_WAREHOUSE":            "compute_wh",
		"TOLLGATE_POSTGRES_DSN":          "postgres://example",
		"TOLLGATE_OBJECTSTORE_ENDPOINT":  "localhost:9000",
		"TOLLGATE_OBJECTSTORE_BUCKET":    "tollgate",
	})
	cfg, err := Load("tollgate-mcp", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.MCP.Transport != "http" {
		t.Fatalf("MCP.Transport = %q", cfg.MCP.Transport)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Gateway.URL != "https://gateway.example.com/v1/completions" {
		t.Fatalf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Timeout != 3*time.Second {
		t.Fatalf("Gateway.Timeout = %v", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.MaxTokens != 512 {
		t.Fatalf("Gateway.MaxTokens = %d", cfg.Gateway.MaxTokens)
	}
	if cfg.Warehouse.Default != "lake" {
		t.Fatalf("Warehouse.Default = %q", cfg.Warehouse.Default)
	}
	if !cfg.GatewayConfigured() {
		t.Fatal("GatewayConfigured() should be true")
	}
	if !cfg.DatabricksConfigured() {
		t.Fatal("DatabricksConfigured() should be true")
	}
	if !cfg.SnowflakeConfigured() {
		t.Fatal("SnowflakeConfigured() should be true")
	}
	if !cfg.PostgresConfigured() {
		t.Fatal("PostgresConfigured() should be true")
	}
	if !cfg.LakeConfigured() {
		t.Fatal("LakeConfigured() should be true")
	}
}

func TestGatewayConfiguredRequiresURLAndModel(t *testing.T) {
	cfg, err := Load("tollgate-mcp", mapLookup(map[string]string{
		"NLP_GATEWAY_URL": "https://gateway.example.com",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GatewayConfigured() {
		t.Fatal("GatewayConfigured() should be false without NLP_MODEL_NAME")
	}
}

func TestSnowflakeConfiguredRequiresAllSixVariables(t *testing.T) {
	values := map[string]string{
		"SNOWFLAKE_ACCOUNT":   "acme",
		"SNOWFLAKE_USER":      "svc",
		"SNOWFLAKE_PASSWORD":  "pw",
		"SNOWFLAKE_DATABASE":  "db",
		"SNOWFLAKE_SCHEMA":    "public",
		"SNOWFLAKE_WAREHOUSE": "wh",
	}
	for missing := range values {
		partial := map[string]string{}
		for k, v := range values {
			if k != missing {
				partial[k] = v
			}
		}
		cfg, err := Load("tollgate-mcp", mapLookup(partial))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.SnowflakeConfigured() {
			t.Fatalf("SnowflakeConfigured() should be false without %s", missing)
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":   {"TOLLGATE_PROFILE": "staging"},
		"transport": {"TOLLGATE_MCP_TRANSPORT": "grpc"},
		"duration":  {"TOLLGATE_GATEWAY_TIMEOUT": "soon"},
		"int":       {"TOLLGATE_GATEWAY_MAX_TOKENS": "many"},
		"bool":      {"TOLLGATE_AUTH_REQUIRED": "yep"},
		"loglevel":  {"TOLLGATE_LOG_LEVEL": "loud"},
	}
	for name, values := range cases {
		if _, err := Load("tollgate-mcp", mapLookup(values)); err == nil {
			t.Fatalf("Load() with invalid %s should fail", name)
		}
	}
}
