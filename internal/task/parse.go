package task

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls a JSON payload out of raw model text. It tries, in
// order: a fenced code block, the longest bracket-delimited substring
// that parses, and finally the raw text itself.
func ExtractJSON(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)

	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	if candidate := longestBracketed(trimmed); candidate != "" {
		return json.RawMessage(candidate), nil
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	return nil, fmt.Errorf("no JSON payload found in model output")
}

// longestBracketed returns the longest substring starting at a '{' or
// '[' and ending at the matching close bracket that parses as JSON.
func longestBracketed(s string) string {
	var best string
	for start := 0; start < len(s); start++ {
		open := s[start]
		if open != '{' && open != '[' {
			continue
		}
		close := byte('}')
		if open == '[' {
			close = ']'
		}
		depth := 0
		inString := false
		escaped := false
		for end := start; end < len(s); end++ {
			c := s[end]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					candidate := s[start : end+1]
					if len(candidate) > len(best) && json.Valid([]byte(candidate)) {
						best = candidate
					}
					end = len(s)
				}
			}
		}
	}
	return best
}

// parseOutput turns raw model output into draft content. Structured
// output that is already valid JSON passes through; otherwise the
// extraction pipeline runs, and on failure the definition's text
// fallback produces a best-effort result. strict leaves no room for the
// fallback: extraction failure fails the variant.
func parseOutput(def *Definition, raw string, strict bool) (json.RawMessage, error) {
	payload, err := ExtractJSON(raw)
	if err == nil && conformsTo(def, payload) {
		return payload, nil
	}

	if strict {
		if err != nil {
			return nil, fmt.Errorf("strict schema: %w", err)
		}
		return nil, fmt.Errorf("strict schema: output does not match expected shape")
	}

	if def.ParseFallback != nil {
		return def.ParseFallback(raw)
	}
	if err == nil {
		return payload, nil
	}

	// Last resort: store the raw text as a JSON string.
	encoded, mErr := json.Marshal(raw)
	if mErr != nil {
		return nil, fmt.Errorf("failed to encode raw output: %w", mErr)
	}
	return encoded, nil
}

// conformsTo checks the payload against the definition's expected
// top-level shape when one is declared.
func conformsTo(def *Definition, payload json.RawMessage) bool {
	if def.NewOutput == nil {
		return true
	}
	out := def.NewOutput()
	return json.Unmarshal(payload, out) == nil
}
