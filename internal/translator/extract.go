package translator

import (
	"errors"
	"strings"
)

var (
	errNoObject       = errors.New("reply contains no JSON object")
	errUnterminated   = errors.New("reply contains an unterminated JSON object")
	errMultipleObject = errors.New("reply contains more than one JSON object")
)

// extractObject returns the first balanced JSON object in s, ignoring
// code fences and surrounding prose. A second complete object anywhere
// after it is an error.
func extractObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoObject
	}
	end := matchBrace(s, start)
	if end < 0 {
		return "", errUnterminated
	}

	rest := s[end+1:]
	for {
		i := strings.IndexByte(rest, '{')
		if i < 0 {
			break
		}
		if j := matchBrace(rest, i); j >= 0 {
			return "", errMultipleObject
		}
		rest = rest[i+1:]
	}
	return s[start : end+1], nil
}

// matchBrace returns the index of the brace closing the one at open, or
// -1. Braces inside JSON strings are skipped.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
