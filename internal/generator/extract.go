package generator

import (
	"errors"
	"strings"
)

var errNoJSON = errors.New("no balanced JSON value in model output")

// extractJSON returns the first balanced JSON array or object found in text,
// ignoring any prose or code fences around it.
func extractJSON(text string) (string, error) {
	start := strings.IndexAny(text, "[{")
	for start >= 0 {
		if end := balancedEnd(text, start); end > start {
			return text[start : end+1], nil
		}
		next := strings.IndexAny(text[start+1:], "[{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", errNoJSON
}

// balancedEnd returns the index closing the bracket at start, or -1.
func balancedEnd(text string, start int) int {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '[', '{':
			stack = append(stack, c)
		case ']', '}':
			if len(stack) == 0 {
				return -1
			}
			open := stack[len(stack)-1]
			if (open == '[' && c != ']') || (open == '{' && c != '}') {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
