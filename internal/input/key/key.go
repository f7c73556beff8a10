package key

import (
	"fmt"
	"strings"
)

// Key represents a keyboard key.
// For character keys, use KeyRune and set the Rune field in Event.
type Key uint8

const (
	// KeyNone represents no key.
	KeyNone Key = iota

	KeyEscape
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyUp
	KeyDown
	KeyLeft
	KeyRight

	// KeyRune is used for character keys. The character is in Event.Rune.
	KeyRune
)

var keyNames = [...]string{
	KeyNone:      "None",
	KeyEscape:    "Escape",
	KeyEnter:     "Enter",
	KeyTab:       "Tab",
	KeyBackspace: "Backspace",
	KeyDelete:    "Delete",
	KeyHome:      "Home",
	KeyEnd:       "End",
	KeyPageUp:    "PageUp",
	KeyPageDown:  "PageDown",
	KeyUp:        "ArrowUp",
	KeyDown:      "ArrowDown",
	KeyLeft:      "ArrowLeft",
	KeyRight:     "ArrowRight",
	KeyRune:      "Rune",
}

// String returns the DOM KeyboardEvent.key name for named keys.
func (k Key) String() string {
	if int(k) < len(keyNames) {
		return keyNames[k]
	}
	return fmt.Sprintf("Key(%d)", k)
}

// IsNavigation reports whether k moves the caret without typing.
func (k Key) IsNavigation() bool {
	switch k {
	case KeyHome, KeyEnd, KeyPageUp, KeyPageDown, KeyUp, KeyDown, KeyLeft, KeyRight:
		return true
	}
	return false
}

// Code returns the Windows virtual key code CDP expects for named keys,
// or 0 when there is none.
func (k Key) Code() int {
	switch k {
	case KeyBackspace:
		return 8
	case KeyTab:
		return 9
	case KeyEnter:
		return 13
	case KeyEscape:
		return 27
	case KeyPageUp:
		return 33
	case KeyPageDown:
		return 34
	case KeyEnd:
		return 35
	case KeyHome:
		return 36
	case KeyLeft:
		return 37
	case KeyUp:
		return 38
	case KeyRight:
		return 39
	case KeyDown:
		return 40
	case KeyDelete:
		return 46
	}
	return 0
}

var keyNameMap = map[string]Key{
	"escape":     KeyEscape,
	"esc":        KeyEscape,
	"enter":      KeyEnter,
	"return":     KeyEnter,
	"cr":         KeyEnter,
	"tab":        KeyTab,
	"backspace":  KeyBackspace,
	"bs":         KeyBackspace,
	"delete":     KeyDelete,
	"del":        KeyDelete,
	"home":       KeyHome,
	"end":        KeyEnd,
	"pageup":     KeyPageUp,
	"pgup":       KeyPageUp,
	"pagedown":   KeyPageDown,
	"pgdn":       KeyPageDown,
	"up":         KeyUp,
	"arrowup":    KeyUp,
	"down":       KeyDown,
	"arrowdown":  KeyDown,
	"left":       KeyLeft,
	"arrowleft":  KeyLeft,
	"right":      KeyRight,
	"arrowright": KeyRight,
}

// FromName returns the Key for a name (case-insensitive), including DOM
// names such as "ArrowLeft". Returns KeyNone if the name is not recognized.
func FromName(name string) Key {
	if k, ok := keyNameMap[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k
	}
	return KeyNone
}
