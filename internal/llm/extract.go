package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// extractJSON pulls the first JSON object or array out of a model reply,
// with recovery for markdown code fences and surrounding prose.
func extractJSON(content string) (any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty reply")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if sliced := sliceJSONCandidate(content); sliced != "" && sliced != content {
		candidates = append(candidates, sliced)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return parsed, nil
		}
		// The fenced block may itself carry leading prose.
		if inner := sliceJSONCandidate(candidate); inner != "" && inner != candidate {
			if err := json.Unmarshal([]byte(inner), &parsed); err == nil {
				return parsed, nil
			}
		}
	}

	return nil, errors.New("no parseable JSON in reply")
}

// stripCodeFences removes a surrounding triple-backtick fence, if present.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// sliceJSONCandidate returns the span from the first opening brace or
// bracket to the matching last closer.
func sliceJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start := -1
	closer := ""
	switch {
	case objectStart >= 0 && (arrayStart < 0 || objectStart < arrayStart):
		start = objectStart
		closer = "}"
	case arrayStart >= 0:
		start = arrayStart
		closer = "]"
	default:
		return ""
	}

	end := strings.LastIndex(trimmed, closer)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
