package cdp

import "unicode/utf8"

// DOM offsets count UTF-16 code units; surface offsets count runes.

// toUnits converts a rune offset into s to UTF-16 code units. Negative
// offsets pass through.
func toUnits(s string, runes int) int {
	if runes < 0 {
		return runes
	}
	units := 0
	for _, r := range s {
		if runes == 0 {
			break
		}
		units += unitLen(r)
		runes--
	}
	return units
}

// toRunes converts a UTF-16 offset into s to runes. An offset that splits
// a surrogate pair rounds down.
func toRunes(s string, units int) int {
	if units < 0 {
		return units
	}
	n := 0
	for _, r := range s {
		w := unitLen(r)
		if units < w {
			break
		}
		units -= w
		n++
	}
	return n
}

func unitLen(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}
