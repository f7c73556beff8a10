package macro

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/textstorm/internal/input/key"
)

// ActionKind identifies the type of a post-insertion action.
type ActionKind uint8

const (
	// ActionKey presses a key.
	ActionKey ActionKind = iota
	// ActionWait pauses playback.
	ActionWait
)

// Action is one step of a Macro.
type Action struct {
	Kind ActionKind
	Key  key.Event
	Wait time.Duration
}

// Press returns an action that presses ev.
func Press(ev key.Event) Action {
	return Action{Kind: ActionKey, Key: ev}
}

// Wait returns an action that pauses for d.
func Wait(d time.Duration) Action {
	return Action{Kind: ActionWait, Wait: d}
}

// String returns "key(Enter)" or "wait(200ms)".
func (a Action) String() string {
	switch a.Kind {
	case ActionKey:
		return fmt.Sprintf("key(%s)", a.Key)
	case ActionWait:
		return fmt.Sprintf("wait(%s)", a.Wait)
	}
	return "unknown"
}

// Macro is an ordered list of actions.
type Macro []Action

// Keys returns only the key presses, in order.
func (m Macro) Keys() []key.Event {
	var out []key.Event
	for _, a := range m {
		if a.Kind == ActionKey {
			out = append(out, a.Key)
		}
	}
	return out
}

// String joins the actions with spaces.
func (m Macro) String() string {
	parts := make([]string, len(m))
	for i, a := range m {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
