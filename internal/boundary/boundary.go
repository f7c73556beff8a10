// Package boundary decides whether a trigger found at the caret should fire,
// based on the characters around it and the snippet's trigger mode.
package boundary

import (
	"unicode/utf8"

	"github.com/dshills/textstorm/internal/snippet"
)

// IsBoundary reports whether r separates words for trigger purposes.
func IsBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n',
		'.', ',', ';', ':', '!', '?',
		'(', ')', '[', ']', '{', '}',
		'"', '\'',
		'-', '_', '/', '\\', '|', '<', '>':
		return true
	}
	return false
}

// ShouldTriggerMatch reports whether trigger, preceded by textBefore and
// followed by textAfter, satisfies mode.
//
// Start-of-text counts as a leading boundary, but end-of-text is not a
// trailing one: in word-both mode nothing typed after the trigger yet means
// no match. Unknown modes never match.
func ShouldTriggerMatch(textBefore, trigger, textAfter string, mode snippet.TriggerMode) bool {
	switch mode {
	case snippet.ModeAnywhere:
		return true
	case snippet.ModeWord:
		return leading(textBefore)
	case snippet.ModeWordBoth:
		if !leading(textBefore) {
			return false
		}
		if textAfter == "" {
			return false
		}
		r, _ := utf8.DecodeRuneInString(textAfter)
		return IsBoundary(r)
	default:
		return false
	}
}

func leading(textBefore string) bool {
	if textBefore == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(textBefore)
	return IsBoundary(r)
}

// EndsWithBoundary reports whether s ends in a boundary rune and returns it.
func EndsWithBoundary(s string) (rune, bool) {
	if s == "" {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r, IsBoundary(r)
}
