package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	errx "github.com/storewise-ai/server/internal/core/error"
	logx "github.com/storewise-ai/server/pkg/logger"
)

const (
	recDelim = "##"
	tupDelim = "<||>"
	endDelim = "<|COMPLETE|>"
)

// basic safety limits to avoid pathological model outputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxRecords    = 16
	maxTupleLen   = 32 * 1024 // room for a full query in one tuple
	maxVarsLen    = 4 * 1024  // variables JSON
	maxNoteLen    = 1024
	maxErrSnippet = 200
)

// ParsedPlan is the raw planner output before validation and fallback.
type ParsedPlan struct {
	GraphQL   string
	Variables map[string]any
	Note      string
	// Errors collects non-fatal record problems for logging.
	Errors []string
}

type rawTuple struct {
	Type  string
	Parts []string
}

func parseRawTuple(s string) (*rawTuple, error) {
	if s == "" {
		return nil, fmt.Errorf("empty tuple")
	}
	if len(s) > maxTupleLen {
		return nil, fmt.Errorf("tuple too large")
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("invalid tuple parens")
	}
	// remove the outermost parens only; inner parens belong to the payload
	inner := s[1 : len(s)-1]
	// split once so graphql/json payloads may contain the delimiter-free text
	parts := strings.SplitN(inner, tupDelim, 2)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tuple parts")
	}
	return &rawTuple{Type: strings.TrimSpace(parts[0]), Parts: parts}, nil
}

// ParsePlan extracts the (graphql ...), (variables ...) and (note ...)
// records from the planner response. Missing or broken records are reported
// through ParsedPlan.Errors; the caller decides whether to fall back.
func ParsePlan(content string) (plan *ParsedPlan, err error) {
	// panic safety: a malformed model response must never take the graph down
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "plan_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("plan parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			plan = nil
		}
	}()

	truncated := false
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "plan_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
		truncated = true
	}
	// honor completion delimiter if present
	if idx := strings.Index(content, endDelim); idx >= 0 {
		content = content[:idx]
	}
	content = stripCodeFence(content)

	plan = &ParsedPlan{}
	addErr := func(msg string) {
		plan.Errors = append(plan.Errors, msg)
	}
	if truncated {
		addErr("content truncated")
	}

	records := strings.Split(content, recDelim)
	processed := 0
	for _, rec := range records {
		if processed >= maxRecords {
			addErr("records capped")
			break
		}
		rec = strings.TrimSpace(rec)
		if rec == "" || rec == endDelim {
			continue
		}
		processed++

		rt, rerr := parseRawTuple(rec)
		if rerr != nil {
			addErr(fmt.Sprintf("bad_record: %s", safeSnippet(rec)))
			continue
		}

		switch rt.Type {
		case "graphql":
			body := strings.TrimSpace(rt.Parts[1])
			if body == "" || !utf8.ValidString(body) {
				addErr("graphql: empty or invalid utf8")
				continue
			}
			if plan.GraphQL != "" {
				addErr("graphql: duplicate record ignored")
				continue
			}
			plan.GraphQL = body

		case "variables":
			raw := strings.TrimSpace(rt.Parts[1])
			if raw == "" {
				continue
			}
			if len(raw) > maxVarsLen {
				addErr("variables: too large")
				continue
			}
			if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
				addErr("variables: not a json object")
				continue
			}
			var m map[string]any
			if jerr := json.Unmarshal([]byte(raw), &m); jerr != nil {
				addErr("variables: invalid json")
				continue
			}
			plan.Variables = m

		case "note":
			note := strings.TrimSpace(rt.Parts[1])
			if len(note) > maxNoteLen {
				note = note[:maxNoteLen]
			}
			plan.Note = note

		default:
			addErr("unknown tuple type")
		}
	}

	if plan.GraphQL == "" {
		addErr("no graphql record")
	}
	return plan, nil
}

// stripCodeFence removes a surrounding markdown fence some models insist on.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
