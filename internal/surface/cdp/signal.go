package cdp

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

var errBadPayload = errors.New("malformed binding payload")

// message is one decoded binding call from the page script.
type message struct {
	Type surface.SignalType
	ID   string
	Key  key.Event
}

// parseMessage decodes a binding payload such as
// {"type":"keydown","id":"ts-1","key":"b","shift":false,...}.
func parseMessage(payload string) (message, error) {
	if !gjson.Valid(payload) {
		return message{}, errBadPayload
	}
	res := gjson.Parse(payload)
	id := res.Get("id").String()
	if id == "" {
		return message{}, fmt.Errorf("%w: missing id", errBadPayload)
	}

	switch t := res.Get("type").String(); t {
	case "input":
		return message{Type: surface.SignalInput, ID: id}, nil
	case "removed":
		return message{Type: surface.SignalRemoved, ID: id}, nil
	case "keydown":
		var mods key.Modifier
		if res.Get("shift").Bool() {
			mods = mods.With(key.ModShift)
		}
		if res.Get("ctrl").Bool() {
			mods = mods.With(key.ModCtrl)
		}
		if res.Get("alt").Bool() {
			mods = mods.With(key.ModAlt)
		}
		if res.Get("meta").Bool() {
			mods = mods.With(key.ModMeta)
		}
		return message{Type: surface.SignalKeyDown, ID: id, Key: domKey(res.Get("key").String(), mods)}, nil
	default:
		return message{}, fmt.Errorf("%w: unknown type %q", errBadPayload, t)
	}
}

// domKey maps a KeyboardEvent.key value to a key event. Printable keys
// carry their character; named keys map through key.FromName.
func domKey(name string, mods key.Modifier) key.Event {
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return key.NewRuneEvent(r, mods)
	}
	return key.NewSpecialEvent(key.FromName(name), mods)
}
