package queries

import (
	"fmt"
	"strings"
)

const maxQueryLen = 16 * 1024

// Validate guards model-generated GraphQL before it is allowed anywhere near
// the Admin API. It is intentionally conservative: anything suspicious fails
// and the caller falls back to the intent template.
func Validate(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}
	if len(trimmed) > maxQueryLen {
		return fmt.Errorf("query too large (%d bytes)", len(trimmed))
	}

	lowered := strings.ToLower(trimmed)
	if strings.Contains(lowered, "mutation") {
		return fmt.Errorf("mutations are not allowed")
	}
	if strings.Contains(lowered, "subscription") {
		return fmt.Errorf("subscriptions are not allowed")
	}

	if !strings.HasPrefix(trimmed, "query") && !strings.HasPrefix(trimmed, "{") {
		return fmt.Errorf("operation must be a query")
	}

	// Single operation only: a second top-level "query" keyword means the
	// model concatenated operations.
	if strings.Count(lowered, "query ") > 1 && strings.HasPrefix(trimmed, "query") {
		rest := lowered[len("query"):]
		if strings.Contains(rest, "\nquery ") {
			return fmt.Errorf("multiple operations")
		}
	}

	if err := checkBalanced(trimmed); err != nil {
		return err
	}
	return nil
}

func checkBalanced(s string) error {
	depth := 0
	inString := false
	var prev rune
	for _, r := range s {
		if inString {
			if r == '"' && prev != '\\' {
				inString = false
			}
			prev = r
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced braces")
			}
		}
		prev = r
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced braces")
	}
	if inString {
		return fmt.Errorf("unterminated string")
	}
	return nil
}
