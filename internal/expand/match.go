package expand

import (
	"unicode/utf8"

	"github.com/dshills/textstorm/internal/boundary"
	"github.com/dshills/textstorm/internal/snippet"
)

// match is a trigger found at the end of the text before the caret.
type match struct {
	Snippet *snippet.Snippet

	// Typed is the text to replace: the trigger as the user typed it,
	// followed by Delimiter.
	Typed string

	// Delimiter is the boundary rune typed after a word-both trigger, or
	// "". It is carried into the expansion so it survives replacement.
	Delimiter string
}

// Trigger returns the typed trigger without the delimiter.
func (m match) Trigger() string {
	return m.Typed[:len(m.Typed)-len(m.Delimiter)]
}

// match looks for a trigger ending at the end of text. When none fires
// and text ends in a boundary rune, it looks again without that rune so
// word-both triggers fire once their delimiter is typed.
func (c *Controller) match(text string) (match, bool) {
	if m, ok := c.matcher.FindMatch(text); ok {
		before, typed := split(text, m.Length)
		if boundary.ShouldTriggerMatch(before, typed, "", m.Snippet.TriggerMode) {
			return match{Snippet: m.Snippet, Typed: typed}, true
		}
	}

	r, ok := boundary.EndsWithBoundary(text)
	if !ok {
		return match{}, false
	}
	trimmed := text[:len(text)-utf8.RuneLen(r)]
	m, ok := c.matcher.FindMatch(trimmed)
	if !ok || m.Snippet.TriggerMode != snippet.ModeWordBoth {
		return match{}, false
	}
	before, typed := split(trimmed, m.Length)
	delim := string(r)
	if !boundary.ShouldTriggerMatch(before, typed, delim, m.Snippet.TriggerMode) {
		return match{}, false
	}
	return match{Snippet: m.Snippet, Typed: typed + delim, Delimiter: delim}, true
}

// split divides text before its last n runes.
func split(text string, n int) (before, last string) {
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	cut := len(runes) - n
	return string(runes[:cut]), string(runes[cut:])
}
