package key

import (
	"fmt"
	"unicode"
)

// Event represents a single key press.
type Event struct {
	// Key identifies the key pressed.
	Key Key

	// Rune is the character for KeyRune events.
	Rune rune

	// Modifiers contains the active modifier keys.
	Modifiers Modifier
}

// NewRuneEvent creates a key event for a character.
func NewRuneEvent(r rune, mods Modifier) Event {
	return Event{Key: KeyRune, Rune: r, Modifiers: mods}
}

// NewSpecialEvent creates a key event for a named key.
func NewSpecialEvent(k Key, mods Modifier) Event {
	return Event{Key: k, Modifiers: mods}
}

// Backspace is the event the keystroke tier sends to delete one character.
var Backspace = NewSpecialEvent(KeyBackspace, ModNone)

// IsRune returns true if this is a character key event.
func (e Event) IsRune() bool {
	return e.Key == KeyRune && e.Rune != 0
}

// IsChar returns true for printable characters typed without Ctrl, Alt
// or Meta. Only these reach the keydown accumulation buffer.
func (e Event) IsChar() bool {
	return e.IsRune() && unicode.IsPrint(e.Rune) && !e.Modifiers.Has(ModCtrl|ModAlt|ModMeta)
}

// Text returns the text the key inserts, or "" if it inserts nothing.
func (e Event) Text() string {
	switch {
	case e.IsChar():
		return string(e.Rune)
	case e.Key == KeyEnter && e.Modifiers == ModNone:
		return "\r"
	case e.Key == KeyTab && e.Modifiers == ModNone:
		return "\t"
	}
	return ""
}

// DOMKey returns the KeyboardEvent.key value.
func (e Event) DOMKey() string {
	if e.Key == KeyRune {
		return string(e.Rune)
	}
	return e.Key.String()
}

// DOMCode returns the KeyboardEvent.code value, best effort.
func (e Event) DOMCode() string {
	if e.Key != KeyRune {
		return e.Key.String()
	}
	r := unicode.ToUpper(e.Rune)
	switch {
	case r >= 'A' && r <= 'Z':
		return "Key" + string(r)
	case r >= '0' && r <= '9':
		return "Digit" + string(r)
	case r == ' ':
		return "Space"
	}
	return ""
}

// KeyCode returns the legacy keyCode value used by synthetic events.
func (e Event) KeyCode() int {
	if e.Key != KeyRune {
		return e.Key.Code()
	}
	r := unicode.ToUpper(e.Rune)
	if r < 128 {
		return int(r)
	}
	return 0
}

// Equals returns true if two events represent the same key press.
func (e Event) Equals(other Event) bool {
	return e.Key == other.Key && e.Rune == other.Rune && e.Modifiers == other.Modifiers
}

// String returns a readable form like "Ctrl+a" or "Enter".
func (e Event) String() string {
	name := e.DOMKey()
	if e.Key == KeyRune && e.Rune == ' ' {
		name = "Space"
	}
	if e.Modifiers == ModNone || (e.IsRune() && e.Modifiers == ModShift) {
		return name
	}
	return e.Modifiers.String() + "+" + name
}

// GoString implements fmt.GoStringer for debugging.
func (e Event) GoString() string {
	return fmt.Sprintf("Event{Key: %s, Rune: %q, Modifiers: %s}", e.Key, e.Rune, e.Modifiers)
}

// EventsForText returns one rune event per character of s. Newlines map to
// Enter and tabs to Tab.
func EventsForText(s string) []Event {
	events := make([]Event, 0, len(s))
	for _, r := range s {
		switch r {
		case '\n':
			events = append(events, NewSpecialEvent(KeyEnter, ModNone))
		case '\r':
			// Part of a CRLF pair; the LF produces the Enter.
		case '\t':
			events = append(events, NewSpecialEvent(KeyTab, ModNone))
		default:
			var mods Modifier
			if unicode.IsUpper(r) {
				mods = ModShift
			}
			events = append(events, NewRuneEvent(r, mods))
		}
	}
	return events
}
