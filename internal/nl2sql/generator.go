package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/askql/askql/internal/schema"
)

// Request carries one natural-language question plus the schema context the
// model should ground its answer in.
type Request struct {
	Question        string         `json:"question"`
	Schema          schema.Context `json:"-"`
	WantExplanation bool           `json:"want_explanation"`
}

type Result struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

const explanationMarker = "EXPLANATION:"

// buildPrompt renders the full model prompt: the DDL dump, join guidance for
// the rental schema, and output-format rules. The explanation marker protocol
// lets a single completion carry both SQL and prose without a structured
// response format.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an expert PostgreSQL query writer for a DVD rental database.\n\n")
	b.WriteString("Database schema:\n")
	b.WriteString(req.Schema.DDL())
	b.WriteString("\n\nGuidance:\n")
	b.WriteString("- film joins category through film_category, and actor through film_actor.\n")
	b.WriteString("- inventory links film to store; rental links inventory to customer; payment links rental to staff.\n")
	b.WriteString("- customer, staff and store join address, which joins city and country.\n")
	b.WriteString("- Use ILIKE for case-insensitive text matching.\n\n")
	b.WriteString("Question:\n")
	b.WriteString(strings.TrimSpace(req.Question))
	b.WriteString("\n\nReturn ONLY the SQL query. No markdown fences, no commentary.")
	if req.WantExplanation {
		b.WriteString("\nAfter the SQL, add one final line starting with \"" + explanationMarker + "\" followed by a one-sentence explanation of the query.")
	}
	return b.String()
}

// parseCompletion splits a raw model completion into SQL text and an optional
// explanation line, stripping markdown fences the model may add despite the
// prompt rules.
func parseCompletion(raw string) (string, string) {
	sqlText := stripMarkdownSQL(raw)
	explanation := ""
	if idx := strings.Index(sqlText, explanationMarker); idx >= 0 {
		explanation = strings.TrimSpace(sqlText[idx+len(explanationMarker):])
		sqlText = strings.TrimSpace(sqlText[:idx])
	}
	return sqlText, explanation
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

func checkRequest(req Request) error {
	if strings.TrimSpace(req.Question) == "" {
		return fmt.Errorf("question is empty")
	}
	if req.Schema.Empty() {
		return fmt.Errorf("schema context is empty")
	}
	return nil
}
