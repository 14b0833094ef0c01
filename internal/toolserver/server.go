// Package toolserver exposes the toll platform over the Model Context
// Protocol. Every tool is registered with a typed input struct so the
// SDK derives the JSON schema clients see during discovery.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tollgate/tollgate/internal/nl2sql"
	"github.com/tollgate/tollgate/internal/observability"
	"github.com/tollgate/tollgate/internal/toll"
	"github.com/tollgate/tollgate/internal/warehouse"
	"github.com/tollgate/tollgate/internal/warehouse/lake"
)

const secretWord = "ABRACADABRA"

// Dependencies carries everything the tool handlers need. Translator
// and Exporter may be nil when their backends are not configured; the
// affected tools then return an error explaining which variables to set.
type Dependencies struct {
	Logger          *slog.Logger
	Translator      nl2sql.Translator
	Warehouses      *warehouse.Registry
	Exporter        *lake.Exporter
	DefaultRowLimit int
	QueryTimeout    time.Duration
	Version         string
}

type Server struct {
	deps Dependencies
	mcp  *mcp.Server
}

func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Warehouses == nil {
		deps.Warehouses = warehouse.NewRegistry("databricks")
	}
	if deps.QueryTimeout <= 0 {
		deps.QueryTimeout = 60 * time.Second
	}

	s := &Server{
		deps: deps,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "tollgate",
			Version: deps.Version,
		}, nil),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "secret_word",
		Description: "Return the secret word.",
	}, s.handleSecretWord)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "calculate_toll",
		Description: "Calculate a road toll from vehicle type, distance in miles, and an optional per-mile rate.",
	}, s.handleCalculateToll)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "generate_sql_query",
		Description: "Translate a natural language request into a SQL query using the NLP gateway.",
	}, s.handleGenerateSQL)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "run_sql_query",
		Description: "Run a read-only SQL query against the default warehouse or a named one.",
	}, s.handleRunSQL)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "run_snowflake_query",
		Description: "Run a read-only SQL query against Snowflake.",
	}, s.handleRunSnowflake)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask_warehouse",
		Description: "Translate a natural language question into SQL and run it against a warehouse in one step.",
	}, s.handleAskWarehouse)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "export_query",
		Description: "Run a read-only SQL query and save the result to the toll lake as a parquet file.",
	}, s.handleExportQuery)

	return s
}

// MCP returns the underlying protocol server for transports to serve.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves the protocol on stdin/stdout until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type secretWordOutput struct {
	Word string `json:"word"`
}

func (s *Server) handleSecretWord(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, secretWordOutput, error) {
	observability.ObserveToolCall("secret_word", nil)
	return textResult(secretWord), secretWordOutput{Word: secretWord}, nil
}

type calculateTollInput struct {
	VehicleType   string   `json:"vehicle_type" jsonschema:"vehicle type, one of car, truck, or motorcycle"`
	DistanceMiles float64  `json:"distance_miles" jsonschema:"trip distance in miles"`
	TollRate      *float64 `json:"toll_rate,omitempty" jsonschema:"per-mile rate in dollars, defaults to 0.25 when omitted"`
}

type calculateTollOutput struct {
	VehicleType   string  `json:"vehicle_type"`
	DistanceMiles float64 `json:"distance_miles"`
	TollRate      float64 `json:"toll_rate"`
	Multiplier    float64 `json:"multiplier"`
	Amount        float64 `json:"amount"`
}

func (s *Server) handleCalculateToll(ctx context.Context, req *mcp.CallToolRequest, in calculateTollInput) (*mcp.CallToolResult, calculateTollOutput, error) {
	rate := toll.DefaultRate
	if in.TollRate != nil {
		rate = *in.TollRate
	}
	amount, err := toll.Calculate(in.VehicleType, in.DistanceMiles, rate)
	observability.ObserveToolCall("calculate_toll", err)
	if err != nil {
		return nil, calculateTollOutput{}, err
	}

	out := calculateTollOutput{
		VehicleType:   in.VehicleType,
		DistanceMiles: in.DistanceMiles,
		TollRate:      rate,
		Multiplier:    toll.Multiplier(in.VehicleType),
		Amount:        amount,
	}
	return textResult(fmt.Sprintf("The toll for a %s traveling %.2f miles at $%.2f/mile is $%.2f.", in.VehicleType, in.DistanceMiles, rate, amount)), out, nil
}

type generateSQLInput struct {
	Prompt string                `json:"prompt" jsonschema:"natural language description of the query"`
	Tables []nl2sql.TableContext `json:"tables,omitempty" jsonschema:"optional table schemas to ground the translation"`
}

type generateSQLOutput struct {
	SQL   string `json:"sql"`
	Model string `json:"model,omitempty"`
}

func (s *Server) handleGenerateSQL(ctx context.Context, req *mcp.CallToolRequest, in generateSQLInput) (*mcp.CallToolResult, generateSQLOutput, error) {
	result, err := s.translate(ctx, nl2sql.Request{NaturalLanguage: in.Prompt, Tables: in.Tables})
	observability.ObserveToolCall("generate_sql_query", err)
	if err != nil {
		return nil, generateSQLOutput{}, err
	}
	return textResult(result.SQL), generateSQLOutput{SQL: result.SQL, Model: result.Model}, nil
}

type runSQLInput struct {
	SQL       string `json:"sql" jsonschema:"read-only SELECT or WITH statement"`
	Warehouse string `json:"warehouse,omitempty" jsonschema:"warehouse name, defaults to the configured default"`
	RowLimit  int    `json:"row_limit,omitempty" jsonschema:"maximum rows to return"`
}

type queryOutput struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Engine   string           `json:"engine"`
}

func (s *Server) handleRunSQL(ctx context.Context, req *mcp.CallToolRequest, in runSQLInput) (*mcp.CallToolResult, queryOutput, error) {
	result, err := s.runQuery(ctx, in.Warehouse, in.SQL, in.RowLimit)
	observability.ObserveToolCall("run_sql_query", err)
	if err != nil {
		return nil, queryOutput{}, err
	}
	return queryResult(result)
}

type runSnowflakeInput struct {
	SQL      string `json:"sql" jsonschema:"read-only SELECT or WITH statement"`
	RowLimit int    `json:"row_limit,omitempty" jsonschema:"maximum rows to return"`
}

func (s *Server) handleRunSnowflake(ctx context.Context, req *mcp.CallToolRequest, in runSnowflakeInput) (*mcp.CallToolResult, queryOutput, error) {
	result, err := s.runQuery(ctx, "snowflake", in.SQL, in.RowLimit)
	observability.ObserveToolCall("run_snowflake_query", err)
	if err != nil {
		return nil, queryOutput{}, err
	}
	return queryResult(result)
}

type askWarehouseInput struct {
	Prompt    string `json:"prompt" jsonschema:"natural language question to answer from the warehouse"`
	Warehouse string `json:"warehouse,omitempty" jsonschema:"warehouse name, defaults to the configured default"`
	RowLimit  int    `json:"row_limit,omitempty" jsonschema:"maximum rows to return"`
}

type askWarehouseOutput struct {
	SQL      string           `json:"sql"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Engine   string           `json:"engine"`
}

func (s *Server) handleAskWarehouse(ctx context.Context, req *mcp.CallToolRequest, in askWarehouseInput) (*mcp.CallToolResult, askWarehouseOutput, error) {
	translated, err := s.translate(ctx, nl2sql.Request{NaturalLanguage: in.Prompt})
	if err != nil {
		observability.ObserveToolCall("ask_warehouse", err)
		return nil, askWarehouseOutput{}, err
	}

	result, err := s.runQuery(ctx, in.Warehouse, translated.SQL, in.RowLimit)
	observability.ObserveToolCall("ask_warehouse", err)
	if err != nil {
		return nil, askWarehouseOutput{}, fmt.Errorf("generated sql %q: %w", translated.SQL, err)
	}

	out := askWarehouseOutput{
		SQL:      translated.SQL,
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
		Engine:   result.Engine,
	}
	text, err := json.Marshal(out)
	if err != nil {
		return nil, askWarehouseOutput{}, fmt.Errorf("encode result: %w", err)
	}
	return textResult(string(text)), out, nil
}

type exportQueryInput struct {
	SQL       string `json:"sql" jsonschema:"read-only SELECT or WITH statement"`
	Warehouse string `json:"warehouse,omitempty" jsonschema:"warehouse name, defaults to the configured default"`
	Name      string `json:"name,omitempty" jsonschema:"export file name without extension"`
}

type exportQueryOutput struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	RowCount int    `json:"row_count"`
	Engine   string `json:"engine"`
}

func (s *Server) handleExportQuery(ctx context.Context, req *mcp.CallToolRequest, in exportQueryInput) (*mcp.CallToolResult, exportQueryOutput, error) {
	if s.deps.Exporter == nil {
		err := fmt.Errorf("export is not configured, set TOLLGATE_OBJECTSTORE_ENDPOINT and TOLLGATE_OBJECTSTORE_BUCKET")
		observability.ObserveToolCall("export_query", err)
		return nil, exportQueryOutput{}, err
	}

	result, err := s.runQuery(ctx, in.Warehouse, in.SQL, 0)
	if err != nil {
		observability.ObserveToolCall("export_query", err)
		return nil, exportQueryOutput{}, err
	}

	info, err := s.deps.Exporter.Export(ctx, in.Name, result)
	observability.ObserveToolCall("export_query", err)
	if err != nil {
		return nil, exportQueryOutput{}, err
	}

	out := exportQueryOutput{Key: info.Key, Size: info.Size, RowCount: info.RowCount, Engine: result.Engine}
	return textResult(fmt.Sprintf("Exported %d rows to %s.", info.RowCount, info.Key)), out, nil
}

func (s *Server) translate(ctx context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	if s.deps.Translator == nil {
		return nl2sql.Result{}, fmt.Errorf("nl2sql is not configured, set NLP_GATEWAY_URL and NLP_MODEL_NAME")
	}
	start := time.Now()
	result, err := s.deps.Translator.Translate(ctx, req)
	observability.ObserveTranslate(time.Since(start), err)
	if err != nil {
		return nl2sql.Result{}, err
	}
	s.deps.Logger.InfoContext(ctx, "translated prompt", "model", result.Model, "sql", result.SQL)
	return result, nil
}

func (s *Server) runQuery(ctx context.Context, warehouseName, sqlText string, rowLimit int) (warehouse.Result, error) {
	engine, err := s.deps.Warehouses.Lookup(warehouseName)
	if err != nil {
		return warehouse.Result{}, err
	}
	if rowLimit <= 0 {
		rowLimit = s.deps.DefaultRowLimit
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.deps.QueryTimeout)
	defer cancel()

	start := time.Now()
	result, err := engine.Query(queryCtx, warehouse.Request{SQL: sqlText, RowLimit: rowLimit})
	observability.ObserveWarehouseQuery(engine.Name(), time.Since(start), err)
	if err != nil {
		return warehouse.Result{}, err
	}
	s.deps.Logger.InfoContext(ctx, "warehouse query completed",
		"engine", result.Engine,
		"rows", result.RowCount,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

func queryResult(result warehouse.Result) (*mcp.CallToolResult, queryOutput, error) {
	out := queryOutput{
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
		Engine:   result.Engine,
	}
	text, err := json.Marshal(out.Rows)
	if err != nil {
		return nil, queryOutput{}, fmt.Errorf("encode result: %w", err)
	}
	return textResult(string(text)), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
