package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	MCP           MCPConfig
	Gateway       GatewayConfig
	Warehouse     WarehouseConfig
	Databricks    DatabricksConfig
	Snowflake     SnowflakeConfig
	Postgres      PostgresConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// MCPConfig selects how the MCP tool surface is served. Transport "stdio"
// speaks MCP on stdin/stdout; "http" serves the streamable HTTP transport
// on the ops listener under /mcp.
type MCPConfig struct {
	Transport string
}

// GatewayConfig holds the NLP gateway settings. URL, Model, and APIKey come
// from the unprefixed NLP_GATEWAY_URL / NLP_MODEL_NAME / NLP_API_KEY
// variables, which are the documented contract of the gateway deployment.
// The API key is optional; requests without one carry no Authorization header.
type GatewayConfig struct {
	URL            string
	Model          string
	APIKey         string
	Timeout        time.Duration
	MaxTokens      int
	DefaultCatalog string
	DefaultSchema  string
}

type WarehouseConfig struct {
	Default      string
	RowLimit     int
	QueryTimeout time.Duration
}

// DatabricksConfig uses the unprefixed DATABRICKS_* variables shared with
// the Databricks CLI and SDKs.
type DatabricksConfig struct {
	Host         string
	Token        string
	WarehouseID  string
	WaitTimeout  string
	PollInterval time.Duration
	PollDeadline time.Duration
}

// SnowflakeConfig uses the unprefixed SNOWFLAKE_* variables. All six are
// required for the snowflake warehouse to be configured at all.
type SnowflakeConfig struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("TOLLGATE_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid TOLLGATE_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "TOLLGATE_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_MCP_TRANSPORT", &cfg.MCP.Transport); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "NLP_GATEWAY_URL", &cfg.Gateway.URL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "NLP_MODEL_NAME", &cfg.Gateway.Model); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "NLP_API_KEY", &cfg.Gateway.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_GATEWAY_TIMEOUT", &cfg.Gateway.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TOLLGATE_GATEWAY_MAX_TOKENS", &cfg.Gateway.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_DEFAULT_CATALOG", &cfg.Gateway.DefaultCatalog); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_DEFAULT_SCHEMA", &cfg.Gateway.DefaultSchema); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "TOLLGATE_WAREHOUSE_DEFAULT", &cfg.Warehouse.Default); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TOLLGATE_WAREHOUSE_ROW_LIMIT", &cfg.Warehouse.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_WAREHOUSE_QUERY_TIMEOUT", &cfg.Warehouse.QueryTimeout); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "DATABRICKS_HOST", &cfg.Databricks.Host); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DATABRICKS_TOKEN", &cfg.Databricks.Token); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DATABRICKS_SQL_WAREHOUSE_ID", &cfg.Databricks.WarehouseID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_DATABRICKS_WAIT_TIMEOUT", &cfg.Databricks.WaitTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_DATABRICKS_POLL_INTERVAL", &cfg.Databricks.PollInterval); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_DATABRICKS_POLL_DEADLINE", &cfg.Databricks.PollDeadline); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "SNOWFLAKE_ACCOUNT", &cfg.Snowflake.Account); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_USER", &cfg.Snowflake.User); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_PASSWORD", &cfg.Snowflake.Password); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_DATABASE", &cfg.Snowflake.Database); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_SCHEMA", &cfg.Snowflake.Schema); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_WAREHOUSE", &cfg.Snowflake.Warehouse); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "TOLLGATE_POSTGRES_DSN", &cfg.Postgres.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TOLLGATE_POSTGRES_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TOLLGATE_POSTGRES_MAX_IDLE_CONNS", &cfg.Postgres.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_POSTGRES_CONN_MAX_IDLE_TIME", &cfg.Postgres.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "TOLLGATE_POSTGRES_CONN_MAX_LIFETIME", &cfg.Postgres.ConnMaxLifetime); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "TOLLGATE_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TOLLGATE_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TOLLGATE_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}

	if err := applyBool(lookup, "TOLLGATE_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "TOLLGATE_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TOLLGATE_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TOLLGATE_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if !isValidTransport(cfg.MCP.Transport) {
		return Config{}, fmt.Errorf("invalid TOLLGATE_MCP_TRANSPORT: %q", cfg.MCP.Transport)
	}
	return cfg, nil
}

// GatewayConfigured reports whether the NLP gateway contract variables are
// present. URL and model are both required; the API key is not.
func (c Config) GatewayConfigured() bool {
	return c.Gateway.URL != "" && c.Gateway.Model != ""
}

func (c Config) DatabricksConfigured() bool {
	return c.Databricks.Host != "" && c.Databricks.Token != "" && c.Databricks.WarehouseID != ""
}

func (c Config) SnowflakeConfigured() bool {
	s := c.Snowflake
	return s.Account != "" && s.User != "" && s.Password != "" &&
		s.Database != "" && s.Schema != "" && s.Warehouse != ""
}

func (c Config) PostgresConfigured() bool {
	return c.Postgres.DSN != ""
}

func (c Config) LakeConfigured() bool {
	return c.ObjectStore.Endpoint != "" && c.ObjectStore.Bucket != ""
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "tollgate-mcp"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		MCP: MCPConfig{Transport: "stdio"},
		Gateway: GatewayConfig{
			Timeout:        15 * time.Second,
			MaxTokens:      200,
			DefaultCatalog: "my_catalog",
			DefaultSchema:  "my_schema",
		},
		Warehouse: WarehouseConfig{
			Default:      "databricks",
			RowLimit:     10,
			QueryTimeout: 60 * time.Second,
		},
		Databricks: DatabricksConfig{
			WaitTimeout:  "30s",
			PollInterval: 2 * time.Second,
			PollDeadline: 5 * time.Minute,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Region:           "us-east-1",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidTransport(transport string) bool {
	switch transport {
	case "stdio", "http":
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
