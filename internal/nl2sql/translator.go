package nl2sql

import "context"

// TableContext describes one warehouse table handed to the gateway as
// schema context for translation.
type TableContext struct {
	TableName  string   `json:"table_name"`
	Columns    []string `json:"columns"`
	SampleRows [][]any  `json:"sample_rows"`
}

type Request struct {
	NaturalLanguage string         `json:"natural_language"`
	Tables          []TableContext `json:"tables"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Translator converts a natural-language request into a single SQL query.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
