package session

import (
	"strings"
	"unicode"
)

// positionalSignals mark a request as being about positions.
var positionalSignals = map[string]bool{
	"all": true, "none": true, "everything": true, "nothing": true, "both": true,
	"first": true, "second": true, "third": true, "fourth": true, "fifth": true,
	"sixth": true, "seventh": true, "eighth": true, "ninth": true, "tenth": true,
	"last": true, "one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
}

// positionalFiller words may appear in a positional request without
// making it descriptive.
var positionalFiller = map[string]bool{
	"select": true, "deselect": true, "unselect": true, "pick": true, "choose": true,
	"add": true, "remove": true, "drop": true, "clear": true, "keep": true, "mark": true, "unmark": true,
	"and": true, "or": true, "to": true, "through": true, "thru": true, "from": true, "of": true,
	"the": true, "a": true, "an": true, "them": true, "these": true, "those": true,
	"item": true, "items": true, "result": true, "results": true, "row": true, "rows": true,
	"entry": true, "entries": true, "number": true, "numbers": true, "no": true, "ones": true,
	"selection": true, "also": true, "too": true, "please": true, "then": true, "just": true,
	"only": true, "except": true, "but": true, "plus": true,
}

// IsPositional reports whether msg refers to displayed results only by
// position: indices, ranges, ordinals or all/none. Any other word makes
// the request descriptive.
func IsPositional(msg string) bool {
	words := strings.FieldsFunc(strings.ToLower(msg), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	signal := false
	for _, w := range words {
		switch {
		case isNumberOrRange(w):
			signal = true
		case positionalSignals[w]:
			signal = true
		case positionalFiller[w]:
		default:
			return false
		}
	}
	return signal
}

// isNumberOrRange matches "3", "3rd" and "2-5".
func isNumberOrRange(w string) bool {
	for _, part := range strings.Split(w, "-") {
		part = strings.TrimRight(part, "stndrh")
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
