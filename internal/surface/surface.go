package surface

import (
	"context"
	"errors"

	"github.com/dshills/textstorm/internal/input/key"
)

// DOM event names dispatched by the replacement tiers.
const (
	EventInput    = "input"
	EventChange   = "change"
	EventKeyDown  = "keydown"
	EventKeyPress = "keypress"
	EventKeyUp    = "keyup"
)

// Errors reported by surface implementations.
var (
	ErrDetached    = errors.New("element is not attached to the document")
	ErrUnsupported = errors.New("operation not supported by element")
	ErrBlocked     = errors.New("operation blocked by host page")
)

// Element is an editable field. Offsets are in runes.
type Element interface {
	// ID returns a stable identity token for the element.
	ID() string

	// Connected reports whether the element is still in its document.
	Connected(ctx context.Context) bool

	// Profile returns the facts Classify needs.
	Profile(ctx context.Context) (Profile, error)

	// Text returns the element's value or text content.
	Text(ctx context.Context) (string, error)

	// Caret returns the collapsed caret position, or -1 if unknown.
	Caret(ctx context.Context) (int, error)
}

// ValueSetter assigns a new value through the element's public property.
type ValueSetter interface {
	SetValue(ctx context.Context, value string, caret int) error
}

// NativeSetter assigns a value through the prototype setter, bypassing
// framework property interceptors.
type NativeSetter interface {
	SetNativeValue(ctx context.Context, value string, caret int) error

	// ResetValueTracker invalidates a framework's last-known-value tracker.
	// Implementations without one return nil.
	ResetValueTracker(ctx context.Context) error
}

// Selector focuses the element and selects a rune range.
type Selector interface {
	Focus(ctx context.Context) error
	Select(ctx context.Context, start, end int) error
}

// CommandExecutor runs document.execCommand against the current selection.
type CommandExecutor interface {
	ExecCommand(ctx context.Context, name, arg string) (bool, error)
}

// EventDispatcher dispatches a synthetic DOM event on the element.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event string) error
}

// Keyboard sends one synthetic keystroke (keydown, keypress, keyup).
type Keyboard interface {
	Press(ctx context.Context, ev key.Event) error
}

// ModelEditor mutates a rich editor through its own document model.
type ModelEditor interface {
	// DeleteBackward removes n runes before the caret.
	DeleteBackward(ctx context.Context, n int) error

	// InsertText inserts text at the caret.
	InsertText(ctx context.Context, text string) error
}

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	ReadClipboard(ctx context.Context) (string, error)
	WriteClipboard(ctx context.Context, text string) error
}

// TextBeforeCaret returns the text between the start of the element and
// the caret. When the caret is unknown the whole text is returned.
func TextBeforeCaret(ctx context.Context, el Element) (string, error) {
	text, err := el.Text(ctx)
	if err != nil {
		return "", err
	}
	caret, err := el.Caret(ctx)
	if err != nil {
		return "", err
	}
	runes := []rune(text)
	if caret < 0 || caret > len(runes) {
		return text, nil
	}
	return string(runes[:caret]), nil
}

// SignalType identifies what a host observed.
type SignalType uint8

const (
	// SignalInput is an input event on an editable element.
	SignalInput SignalType = iota
	// SignalKeyDown is a keydown event on an editable element.
	SignalKeyDown
	// SignalRemoved reports the element left its document.
	SignalRemoved
)

// String returns the signal name.
func (t SignalType) String() string {
	switch t {
	case SignalInput:
		return "input"
	case SignalKeyDown:
		return "keydown"
	case SignalRemoved:
		return "removed"
	}
	return "unknown"
}

// Signal is a notification from a host about one of its elements.
type Signal struct {
	Type    SignalType
	Element Element
	Key     key.Event
}

// Host is a source of signals, typically one browser page.
type Host interface {
	// Name identifies the host, usually the page hostname.
	Name() string

	// Signals returns the channel of observed events. It is closed when
	// the host goes away.
	Signals() <-chan Signal
}
