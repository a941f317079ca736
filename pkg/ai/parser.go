package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONPayload is returned when a completion contains no JSON value.
var ErrNoJSONPayload = errors.New("response contains no JSON payload")

// ExtractJSON strips markdown code fences and surrounding chatter from a
// completion and returns the first JSON object or array found. Models
// routinely wrap JSON in ```json fences or prepend commentary; downstream
// schema validation stays the caller's job.
func ExtractJSON(responseText string) (string, error) {
	text := strings.TrimSpace(responseText)
	if text == "" {
		return "", ErrNoJSONPayload
	}

	if fenced, ok := extractFencedBlock(text); ok {
		text = fenced
	}

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return "", ErrNoJSONPayload
	}

	end := matchingEnd(text, start)
	if end < 0 {
		return "", fmt.Errorf("%w: unbalanced brackets", ErrNoJSONPayload)
	}

	return text[start : end+1], nil
}

// UnmarshalResponse extracts the JSON payload from a completion and decodes
// it into v.
func UnmarshalResponse(responseText string, v interface{}) error {
	payload, err := ExtractJSON(responseText)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to decode AI JSON payload: %w", err)
	}
	return nil
}

// extractFencedBlock returns the content of the first ``` fence, if any.
func extractFencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	// Skip the optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// matchingEnd finds the index of the bracket closing the JSON value that
// starts at index start, honoring string literals and escapes.
func matchingEnd(text string, start int) int {
	open := text[start]
	var close byte
	switch open {
	case '[':
		close = ']'
	case '{':
		close = '}'
	default:
		return -1
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
