package cdp

import (
	"context"

	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

// Element is an editable element tagged by the agent script. It
// implements every surface capability.
type Element struct {
	page *Page
	id   string
}

var (
	_ surface.Element         = (*Element)(nil)
	_ surface.ValueSetter     = (*Element)(nil)
	_ surface.NativeSetter    = (*Element)(nil)
	_ surface.Selector        = (*Element)(nil)
	_ surface.CommandExecutor = (*Element)(nil)
	_ surface.EventDispatcher = (*Element)(nil)
	_ surface.Keyboard        = (*Element)(nil)
	_ surface.ModelEditor     = (*Element)(nil)
	_ surface.Clipboard       = (*Element)(nil)
)

// ID implements surface.Element.
func (e *Element) ID() string { return e.id }

// Connected implements surface.Element.
func (e *Element) Connected(ctx context.Context) bool {
	res, err := e.page.call(ctx, "connected", e.id)
	return err == nil && res.Bool()
}

// Profile implements surface.Element.
func (e *Element) Profile(ctx context.Context) (surface.Profile, error) {
	res, err := e.page.call(ctx, "profile", e.id)
	if err != nil {
		return surface.Profile{}, err
	}
	return profileFrom(res), nil
}

// profileFrom decodes the agent's profile object.
func profileFrom(res gjson.Result) surface.Profile {
	p := surface.Profile{
		Tag:             res.Get("tag").String(),
		Type:            res.Get("type").String(),
		ContentEditable: res.Get("contentEditable").Bool(),
		Hostname:        res.Get("hostname").String(),
		ValueTracker:    res.Get("valueTracker").Bool(),
		VueModel:        res.Get("vueModel").Bool(),
		CKEditor:        res.Get("ckeditor").Bool(),
		DocsIframe:      res.Get("docsIframe").Bool(),
	}
	for _, c := range res.Get("classes").Array() {
		p.Classes = append(p.Classes, c.String())
	}
	return p
}

// state returns the element text and its caret in runes.
func (e *Element) state(ctx context.Context) (string, int, error) {
	res, err := e.page.call(ctx, "state", e.id)
	if err != nil {
		return "", -1, err
	}
	text := res.Get("text").String()
	return text, toRunes(text, int(res.Get("caret").Int())), nil
}

// Text implements surface.Element.
func (e *Element) Text(ctx context.Context) (string, error) {
	text, _, err := e.state(ctx)
	return text, err
}

// Caret implements surface.Element.
func (e *Element) Caret(ctx context.Context) (int, error) {
	_, caret, err := e.state(ctx)
	return caret, err
}

// SetValue implements surface.ValueSetter.
func (e *Element) SetValue(ctx context.Context, value string, caret int) error {
	_, err := e.page.call(ctx, "setValue", e.id, value, toUnits(value, caret))
	return err
}

// SetNativeValue implements surface.NativeSetter.
func (e *Element) SetNativeValue(ctx context.Context, value string, caret int) error {
	res, err := e.page.call(ctx, "setNative", e.id, value, toUnits(value, caret))
	if err != nil {
		return err
	}
	if !res.Bool() {
		return surface.ErrUnsupported
	}
	return nil
}

// ResetValueTracker implements surface.NativeSetter.
func (e *Element) ResetValueTracker(ctx context.Context) error {
	_, err := e.page.call(ctx, "resetTracker", e.id)
	return err
}

// Focus implements surface.Selector.
func (e *Element) Focus(ctx context.Context) error {
	_, err := e.page.call(ctx, "focus", e.id)
	return err
}

// Select implements surface.Selector.
func (e *Element) Select(ctx context.Context, start, end int) error {
	text, _, err := e.state(ctx)
	if err != nil {
		return err
	}
	_, err = e.page.call(ctx, "select", e.id, toUnits(text, start), toUnits(text, end))
	return err
}

// ExecCommand implements surface.CommandExecutor.
func (e *Element) ExecCommand(ctx context.Context, name, arg string) (bool, error) {
	res, err := e.page.call(ctx, "exec", e.id, name, arg)
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}

// Dispatch implements surface.EventDispatcher.
func (e *Element) Dispatch(ctx context.Context, event string) error {
	_, err := e.page.call(ctx, "dispatch", e.id, event)
	return err
}

// Press implements surface.Keyboard with trusted CDP key events.
func (e *Element) Press(ctx context.Context, ev key.Event) error {
	page := e.page.page.Context(ctx)
	down := proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventTypeKeyDown,
		Modifiers:             int(ev.Modifiers),
		Key:                   ev.DOMKey(),
		Code:                  ev.DOMCode(),
		Text:                  ev.Text(),
		WindowsVirtualKeyCode: ev.KeyCode(),
	}
	if down.Text == "" {
		down.Type = proto.InputDispatchKeyEventTypeRawKeyDown
	}
	if err := down.Call(page); err != nil {
		return err
	}
	up := down
	up.Type = proto.InputDispatchKeyEventTypeKeyUp
	up.Text = ""
	return up.Call(page)
}

// DeleteBackward implements surface.ModelEditor by pressing Backspace in
// the focused editor.
func (e *Element) DeleteBackward(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := e.Press(ctx, key.Backspace); err != nil {
			return err
		}
	}
	return nil
}

// InsertText implements surface.ModelEditor. The text goes through the
// editor's own input pipeline as if composed by an IME.
func (e *Element) InsertText(ctx context.Context, text string) error {
	return proto.InputInsertText{Text: text}.Call(e.page.page.Context(ctx))
}

// ReadClipboard implements surface.Clipboard.
func (e *Element) ReadClipboard(ctx context.Context) (string, error) {
	res, err := e.page.call(ctx, "readClipboard")
	if err != nil {
		return "", err
	}
	if res.Get("blocked").Bool() {
		return "", surface.ErrBlocked
	}
	return res.Get("text").String(), nil
}

// WriteClipboard implements surface.Clipboard.
func (e *Element) WriteClipboard(ctx context.Context, text string) error {
	res, err := e.page.call(ctx, "writeClipboard", text)
	if err != nil {
		return err
	}
	if res.Get("blocked").Bool() {
		return surface.ErrBlocked
	}
	return nil
}
