package replace

import "strings"

// verifyPrefixLen caps how much of the expansion must be found.
const verifyPrefixLen = 20

// Verify reports whether text looks like a completed replacement. before
// is the text that preceded the trigger when the tier started: it must be
// intact and directly followed by a prefix of the expansion. The trigger
// must also no longer be a trailing suffix, unless the expansion itself
// ends with it.
func Verify(before, text, trigger, expansion string) bool {
	if !strings.HasPrefix(text, before+verifyPrefix(expansion)) {
		return false
	}
	if trigger != "" && !strings.HasSuffix(expansion, trigger) && strings.HasSuffix(text, trigger) {
		return false
	}
	return true
}

// textBefore returns the text preceding the trigger the tiers will act on.
func textBefore(text, trigger string, caret int) (string, bool) {
	start, ok := locate(text, trigger, caret)
	if !ok {
		return "", false
	}
	return string([]rune(text)[:start]), true
}

// verifyPrefix returns the first line of the expansion, capped at
// verifyPrefixLen runes. Editors may rewrite line breaks, so later lines
// are not compared.
func verifyPrefix(expansion string) string {
	if i := strings.IndexAny(expansion, "\r\n"); i >= 0 {
		expansion = expansion[:i]
	}
	r := []rune(expansion)
	if len(r) > verifyPrefixLen {
		r = r[:verifyPrefixLen]
	}
	return string(r)
}

// locate returns the rune offset where trigger starts inside text. It
// prefers a trigger at the end of the text, then one ending at the caret,
// then the last occurrence anywhere.
func locate(text, trigger string, caret int) (int, bool) {
	runes := []rune(text)
	trig := []rune(trigger)
	n := len(trig)
	if n == 0 || n > len(runes) {
		return 0, false
	}
	if string(runes[len(runes)-n:]) == trigger {
		return len(runes) - n, true
	}
	if caret >= n && caret <= len(runes) && string(runes[caret-n:caret]) == trigger {
		return caret - n, true
	}
	if i := strings.LastIndex(text, trigger); i >= 0 {
		return len([]rune(text[:i])), true
	}
	return 0, false
}

// endsAtCaret reports whether the trigger ends exactly at the caret.
func endsAtCaret(text, trigger string, caret int) bool {
	runes := []rune(text)
	n := len([]rune(trigger))
	if caret < 0 || caret > len(runes) {
		caret = len(runes)
	}
	return caret >= n && string(runes[caret-n:caret]) == trigger
}

// splice replaces runes [start, start+n) of text with with.
func splice(text string, start, n int, with string) string {
	runes := []rune(text)
	var b strings.Builder
	b.WriteString(string(runes[:start]))
	b.WriteString(with)
	b.WriteString(string(runes[start+n:]))
	return b.String()
}
