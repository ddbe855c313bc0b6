package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the JSON object out of a model response. Models wrap
// their output in markdown fences or prose more often than not, so the
// extraction is permissive: strip fences first, then fall back to the
// largest balanced object found by brace scanning. Returns the raw JSON
// text, or "" if no decodable object exists.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if fenced := stripFences(text); fenced != "" && json.Valid([]byte(fenced)) {
		return fenced
	}
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return text
	}
	return largestObject(text)
}

// stripFences removes a leading ```/```json fence pair.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return ""
	}
	lines := strings.Split(text, "\n")
	end := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

// largestObject scans for balanced top-level braces, ignoring braces
// inside JSON strings, and returns the largest span that decodes.
func largestObject(text string) string {
	best := ""
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidate := text[start : i+1]
				if len(candidate) > len(best) && json.Valid([]byte(candidate)) {
					best = candidate
				}
			}
		}
	}
	return best
}
