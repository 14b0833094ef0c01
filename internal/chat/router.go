// Package chat routes free-form messages to the right tool. It mirrors
// the rule set end users learn first: a few keyword commands, and
// everything else is treated as a natural language query against the
// warehouse.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tollgate/tollgate/internal/toll"
)

// ToolCaller invokes one named tool and returns its text content.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// SessionCaller adapts an MCP client session to ToolCaller.
type SessionCaller struct {
	Session *mcp.ClientSession
}

func (c *SessionCaller) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.Session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call tool %q: %w", name, err)
	}
	text := textContent(result)
	if result.IsError {
		if text == "" {
			text = "tool call failed"
		}
		return "", fmt.Errorf("tool %q: %s", name, text)
	}
	return text, nil
}

func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var (
	vehiclePattern  = regexp.MustCompile(`for\s+(\w+)`)
	distancePattern = regexp.MustCompile(`(\d+\.?\d*)\s+miles`)
	ratePattern     = regexp.MustCompile(`\$?(\d+\.?\d*)\s*/?\s*mile`)
	runSQLPattern   = regexp.MustCompile(`(?i)run sql query (.+)`)
)

type Router struct {
	caller ToolCaller
}

func NewRouter(caller ToolCaller) *Router {
	return &Router{caller: caller}
}

// Handle answers one chat message. Keyword commands map directly to
// tools; anything else is translated to SQL and executed.
func (r *Router) Handle(ctx context.Context, message string) (string, error) {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "secret word"):
		return r.caller.CallTool(ctx, "secret_word", nil)

	case strings.Contains(lower, "calculate toll"):
		vehicleType, distance, rate := parseTollRequest(lower)
		return r.caller.CallTool(ctx, "calculate_toll", map[string]any{
			"vehicle_type":   vehicleType,
			"distance_miles": distance,
			"toll_rate":      rate,
		})

	case runSQLPattern.MatchString(message):
		matches := runSQLPattern.FindStringSubmatch(message)
		return r.caller.CallTool(ctx, "run_sql_query", map[string]any{
			"sql": strings.TrimSpace(matches[1]),
		})

	default:
		return r.askWarehouse(ctx, message)
	}
}

func (r *Router) askWarehouse(ctx context.Context, message string) (string, error) {
	sqlText, err := r.caller.CallTool(ctx, "generate_sql_query", map[string]any{
		"prompt": message,
	})
	if err != nil {
		return "", err
	}
	rows, err := r.caller.CallTool(ctx, "run_sql_query", map[string]any{
		"sql": sqlText,
	})
	if err != nil {
		return "", fmt.Errorf("generated sql %q: %w", sqlText, err)
	}
	return formatAnswer(sqlText, rows), nil
}

// parseTollRequest pulls vehicle, distance, and rate out of a message
// like "calculate toll for truck over 20 miles at $0.30/mile". Missing
// pieces fall back to a car over ten miles at the default rate.
func parseTollRequest(message string) (string, float64, float64) {
	vehicleType := "car"
	distance := 10.0
	rate := toll.DefaultRate

	if m := vehiclePattern.FindStringSubmatch(message); m != nil {
		vehicleType = m[1]
	}
	if m := distancePattern.FindStringSubmatch(message); m != nil {
		if parsed, err := strconv.ParseFloat(m[1], 64); err == nil {
			distance = parsed
		}
	}
	if m := ratePattern.FindStringSubmatch(message); m != nil {
		if parsed, err := strconv.ParseFloat(m[1], 64); err == nil {
			rate = parsed
		}
	}
	return vehicleType, distance, rate
}

func formatAnswer(sqlText, rows string) string {
	var decoded []map[string]any
	if err := json.Unmarshal([]byte(rows), &decoded); err == nil && len(decoded) == 0 {
		return fmt.Sprintf("Query:\n%s\n\nNo rows returned.", sqlText)
	}
	return fmt.Sprintf("Query:\n%s\n\nResults:\n%s", sqlText, rows)
}
