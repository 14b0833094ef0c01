package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GatewayConfig configures the NLP gateway translator. URL and Model are
// required; APIKey is optional and, when set, is sent as a bearer token.
type GatewayConfig struct {
	URL            string
	Model          string
	APIKey         string
	Timeout        time.Duration
	MaxTokens      int
	DefaultCatalog string
	DefaultSchema  string
	RowLimit       int
}

// GatewayTranslator sends the prompt to a self-hosted NLP gateway:
// POST <url> with body {"model": ..., "prompt": ..., "max_tokens": ...}.
// Gateway deployments differ in response schema, so ParseSQL accepts the
// common completion shapes rather than one fixed contract.
type GatewayTranslator struct {
	url            string
	model          string
	apiKey         string
	maxTokens      int
	defaultCatalog string
	defaultSchema  string
	rowLimit       int
	client         *http.Client
}

func NewGatewayTranslator(cfg GatewayConfig) (*GatewayTranslator, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("NLP_GATEWAY_URL is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("NLP_MODEL_NAME is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 200
	}
	rowLimit := cfg.RowLimit
	if rowLimit <= 0 {
		rowLimit = 10
	}
	catalog := strings.TrimSpace(cfg.DefaultCatalog)
	if catalog == "" {
		catalog = "my_catalog"
	}
	schema := strings.TrimSpace(cfg.DefaultSchema)
	if schema == "" {
		schema = "my_schema"
	}
	return &GatewayTranslator{
		url:            strings.TrimSpace(cfg.URL),
		model:          strings.TrimSpace(cfg.Model),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		maxTokens:      maxTokens,
		defaultCatalog: catalog,
		defaultSchema:  schema,
		rowLimit:       rowLimit,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

func (t *GatewayTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.NaturalLanguage) == "" {
		return Result{}, fmt.Errorf("natural language prompt is required")
	}

	prompt, err := t.buildPrompt(req)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(map[string]any{
		"model":      t.model,
		"prompt":     prompt,
		"max_tokens": t.maxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal gateway payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request nlp gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read gateway response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("nlp gateway failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	sql, err := ParseSQL(rawBody)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:      sql,
		Provider: "nlp-gateway",
		Model:    t.model,
	}, nil
}

func (t *GatewayTranslator) buildPrompt(req Request) (string, error) {
	qualified := t.defaultCatalog + "." + t.defaultSchema

	var sb strings.Builder
	fmt.Fprintf(&sb, "Convert the following natural language request into a valid SQL query for a Databricks SQL warehouse.\n")
	fmt.Fprintf(&sb, "Assume tables are in a Unity Catalog schema (e.g. %s.table_name).\n", qualified)
	fmt.Fprintf(&sb, "Use standard SQL syntax and include a LIMIT %d clause unless specified otherwise.\n", t.rowLimit)
	fmt.Fprintf(&sb, "If the schema or catalog is not mentioned, assume %s.\n", qualified)

	if len(req.Tables) > 0 {
		tablesJSON, err := json.Marshal(req.Tables)
		if err != nil {
			return "", fmt.Errorf("marshal table context: %w", err)
		}
		fmt.Fprintf(&sb, "Schema and sample context (JSON):\n%s\n", string(tablesJSON))
	}

	fmt.Fprintf(&sb, "Examples:\n")
	fmt.Fprintf(&sb, "- \"Show all customers\" -> \"SELECT * FROM %s.customers LIMIT %d\"\n", qualified, t.rowLimit)
	fmt.Fprintf(&sb, "- \"Get total tolls for cars in January 2025\" -> \"SELECT SUM(toll_amount) FROM %s.tolls WHERE vehicle_type = 'car' AND date LIKE '2025-01%%' LIMIT %d\"\n", qualified, t.rowLimit)
	fmt.Fprintf(&sb, "Input: %s\n", strings.TrimSpace(req.NaturalLanguage))
	fmt.Fprintf(&sb, "Output: Only the SQL query, no explanations.")
	return sb.String(), nil
}

// ParseSQL extracts the SQL statement from a gateway response body. The
// shapes tried, in order: completions ("choices[0].text"), chat
// completions ("choices[0].message.content"), then the flat keys "sql",
// "text", and "completion". Markdown code fences are stripped.
func ParseSQL(rawBody []byte) (string, error) {
	var parsed struct {
		Choices []struct {
			Text    string `json:"text"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		SQL        string `json:"sql"`
		Text       string `json:"text"`
		Completion string `json:"completion"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}

	candidates := []string{}
	if len(parsed.Choices) > 0 {
		candidates = append(candidates, parsed.Choices[0].Text, parsed.Choices[0].Message.Content)
	}
	candidates = append(candidates, parsed.SQL, parsed.Text, parsed.Completion)

	for _, candidate := range candidates {
		if sql := stripMarkdownSQL(candidate); sql != "" {
			return sql, nil
		}
	}
	return "", fmt.Errorf("gateway response contained no SQL in choices[].text, choices[].message.content, sql, text, or completion")
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
