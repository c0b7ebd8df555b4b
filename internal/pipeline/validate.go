package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// Category classifies why a statement was rejected before execution.
type Category string

const (
	CategoryEmptyInput  Category = "EMPTY_INPUT"
	CategorySyntax      Category = "SYNTAX"
	CategoryDestructive Category = "DESTRUCTIVE_OPERATION"
)

type ValidationOutcome struct {
	Passed   bool     `json:"passed"`
	Category Category `json:"category,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

var allowedVerbs = []string{"SELECT", "INSERT", "UPDATE", "DELETE", "WITH"}

// destructivePattern is word-boundary matched so identifiers such as
// "dropped_count" are not flagged. This is advisory defense in depth, not a
// parser; database-level permissions are the real safety boundary.
var destructivePattern = regexp.MustCompile(`(?i)\b(DROP|TRUNCATE|ALTER|GRANT|REVOKE)\b`)

// Validate runs the static pre-execution checks on a SQL statement. It is a
// pure function: no I/O, deterministic for identical input.
func Validate(sqlText string) ValidationOutcome {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return ValidationOutcome{
			Category: CategoryEmptyInput,
			Reason:   "statement is empty",
		}
	}

	if match := destructivePattern.FindString(trimmed); match != "" {
		return ValidationOutcome{
			Category: CategoryDestructive,
			Reason:   fmt.Sprintf("statement contains destructive keyword %s", strings.ToUpper(match)),
		}
	}

	verb := strings.ToUpper(firstWord(trimmed))
	for _, allowed := range allowedVerbs {
		if verb == allowed {
			return ValidationOutcome{Passed: true}
		}
	}
	return ValidationOutcome{
		Category: CategorySyntax,
		Reason:   fmt.Sprintf("statement must start with one of %s", strings.Join(allowedVerbs, ", ")),
	}
}

func firstWord(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
