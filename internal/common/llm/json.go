package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON isolates the JSON object inside a model reply. Replies are
// routinely wrapped in markdown fences or prefixed with commentary; this
// strips fences, then falls back to scanning for the outermost balanced
// object. Returns false when no parseable object exists — callers then treat
// the whole reply as a human-readable message instead of crashing the
// session.
func ExtractJSON(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
	}

	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return json.RawMessage(text), true
	}

	// Scan for the outermost balanced object, ignoring braces inside strings.
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return json.RawMessage(candidate), true
					}
					return nil, false
				}
			}
		}
	}
	return nil, false
}

// DecodeJSON extracts and unmarshals the reply's JSON object into v.
func DecodeJSON(text string, v interface{}) bool {
	raw, ok := ExtractJSON(text)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
