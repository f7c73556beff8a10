package memdom

import (
	"context"
	"unicode"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

// Knobs change how an Element reacts to writes.
type Knobs struct {
	// Framework emulates a React controlled input: an input event commits
	// the value only if it differs from the tracker, otherwise the value is
	// reverted to the last committed state.
	Framework bool

	// IgnoreSetValue makes SetValue report success without changing text.
	IgnoreSetValue bool

	// BlockSetValue makes SetValue fail.
	BlockSetValue bool

	// BlockNativeSetter makes SetNativeValue fail.
	BlockNativeSetter bool

	// BlockExecCommand makes ExecCommand return false.
	BlockExecCommand bool

	// IgnoreExecCommand makes ExecCommand report success without changing
	// text.
	IgnoreExecCommand bool

	// BlockKeyboard makes Press fail.
	BlockKeyboard bool

	// ModelDeleteMisses is the number of DeleteBackward calls that are
	// silently dropped.
	ModelDeleteMisses int

	// BlockModel makes the model editor methods fail.
	BlockModel bool

	// PanicOn names a method that panics when called.
	PanicOn string
}

// Element is an editable node. It implements every capability interface in
// package surface.
type Element struct {
	doc       *Document
	id        string
	profile   surface.Profile
	value     []rune
	committed []rune
	tracker   string
	caret     int
	selStart  int
	selEnd    int
	connected bool
	focused   bool
	knobs     Knobs
	events    []string
	pressed   []key.Event
	calls     map[string]int
	mutations int
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

// SetKnobs replaces the element's knobs.
func (e *Element) SetKnobs(k Knobs) {
	e.doc.mu.Lock()
	e.knobs = k
	e.doc.mu.Unlock()
}

// Knobs returns the current knobs.
func (e *Element) Knobs() Knobs {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.knobs
}

// Detach removes the element from the document without a signal.
func (e *Element) Detach() {
	e.doc.mu.Lock()
	e.connected = false
	e.doc.mu.Unlock()
}

// Value returns the current text.
func (e *Element) Value() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return string(e.value)
}

// CaretPos returns the caret position.
func (e *Element) CaretPos() int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.caret
}

// SetCaret moves the caret.
func (e *Element) SetCaret(pos int) {
	e.doc.mu.Lock()
	e.collapse(pos)
	e.doc.mu.Unlock()
}

// Events returns the names of dispatched DOM events, in order.
func (e *Element) Events() []string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return append([]string(nil), e.events...)
}

// Pressed returns the synthetic keystrokes received, in order.
func (e *Element) Pressed() []key.Event {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return append([]key.Event(nil), e.pressed...)
}

// Calls returns how many times a capability method was invoked.
func (e *Element) Calls(method string) int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.calls[method]
}

// Mutations returns how many times the text changed.
func (e *Element) Mutations() int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.mutations
}

// Focused reports whether Focus was called.
func (e *Element) Focused() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.focused
}

// ID implements surface.Element.
func (e *Element) ID() string { return e.id }

// Connected implements surface.Element.
func (e *Element) Connected(context.Context) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.connected
}

// Profile implements surface.Element.
func (e *Element) Profile(context.Context) (surface.Profile, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.connected {
		return surface.Profile{}, surface.ErrDetached
	}
	return e.profile, nil
}

// Text implements surface.Element.
func (e *Element) Text(context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.connected {
		return "", surface.ErrDetached
	}
	return string(e.value), nil
}

// Caret implements surface.Element.
func (e *Element) Caret(context.Context) (int, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.connected {
		return 0, surface.ErrDetached
	}
	return e.caret, nil
}

// SetValue implements surface.ValueSetter.
func (e *Element) SetValue(_ context.Context, value string, caret int) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("SetValue"); err != nil {
		return err
	}
	if e.knobs.BlockSetValue {
		return surface.ErrBlocked
	}
	if e.knobs.IgnoreSetValue {
		return nil
	}
	e.setText([]rune(value))
	e.tracker = value
	e.collapse(caret)
	return nil
}

// SetNativeValue implements surface.NativeSetter.
func (e *Element) SetNativeValue(_ context.Context, value string, caret int) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("SetNativeValue"); err != nil {
		return err
	}
	if e.knobs.BlockNativeSetter {
		return surface.ErrBlocked
	}
	e.setText([]rune(value))
	e.collapse(caret)
	return nil
}

// ResetValueTracker implements surface.NativeSetter.
func (e *Element) ResetValueTracker(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("ResetValueTracker"); err != nil {
		return err
	}
	e.tracker = "\x00stale"
	return nil
}

// Focus implements surface.Selector.
func (e *Element) Focus(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("Focus"); err != nil {
		return err
	}
	e.focused = true
	return nil
}

// Select implements surface.Selector.
func (e *Element) Select(_ context.Context, start, end int) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("Select"); err != nil {
		return err
	}
	start, end = e.clamp(start), e.clamp(end)
	if start > end {
		start, end = end, start
	}
	e.selStart, e.selEnd, e.caret = start, end, end
	return nil
}

// ExecCommand implements surface.CommandExecutor. Supported commands are
// delete, insertText and paste.
func (e *Element) ExecCommand(_ context.Context, name, arg string) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("ExecCommand"); err != nil {
		return false, err
	}
	if e.knobs.BlockExecCommand {
		return false, nil
	}
	if e.knobs.IgnoreExecCommand {
		return true, nil
	}
	switch name {
	case "delete":
		if e.selStart == e.selEnd {
			if e.caret == 0 {
				return true, nil
			}
			e.selStart = e.caret - 1
		}
		e.replaceSelection(nil)
	case "insertText":
		e.replaceSelection([]rune(arg))
	case "paste":
		clip, err := e.doc.readClipboard()
		if err != nil {
			return false, nil
		}
		e.replaceSelection([]rune(clip))
	default:
		return false, nil
	}
	e.commit()
	return true, nil
}

// Dispatch implements surface.EventDispatcher.
func (e *Element) Dispatch(_ context.Context, event string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("Dispatch"); err != nil {
		return err
	}
	e.events = append(e.events, event)
	if event == surface.EventInput && e.knobs.Framework {
		if string(e.value) != e.tracker {
			e.commit()
		} else if string(e.value) != string(e.committed) {
			e.setText(append([]rune(nil), e.committed...))
			e.tracker = string(e.committed)
			e.collapse(len(e.value))
		}
	}
	return nil
}

// Press implements surface.Keyboard.
func (e *Element) Press(_ context.Context, ev key.Event) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("Press"); err != nil {
		return err
	}
	if e.knobs.BlockKeyboard {
		return surface.ErrBlocked
	}
	e.events = append(e.events, surface.EventKeyDown, surface.EventKeyPress, surface.EventKeyUp)
	e.applyKey(ev)
	return nil
}

// DeleteBackward implements surface.ModelEditor.
func (e *Element) DeleteBackward(_ context.Context, n int) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("DeleteBackward"); err != nil {
		return err
	}
	if e.knobs.BlockModel {
		return surface.ErrBlocked
	}
	if e.knobs.ModelDeleteMisses > 0 {
		e.knobs.ModelDeleteMisses--
		return nil
	}
	start := e.caret - n
	if start < 0 {
		start = 0
	}
	e.selStart, e.selEnd = start, e.caret
	e.replaceSelection(nil)
	e.commit()
	return nil
}

// InsertText implements surface.ModelEditor.
func (e *Element) InsertText(_ context.Context, text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("InsertText"); err != nil {
		return err
	}
	if e.knobs.BlockModel {
		return surface.ErrBlocked
	}
	e.selStart, e.selEnd = e.caret, e.caret
	e.replaceSelection([]rune(text))
	e.commit()
	return nil
}

// ReadClipboard implements surface.Clipboard.
func (e *Element) ReadClipboard(context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("ReadClipboard"); err != nil {
		return "", err
	}
	return e.doc.readClipboard()
}

// WriteClipboard implements surface.Clipboard.
func (e *Element) WriteClipboard(_ context.Context, text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.enter("WriteClipboard"); err != nil {
		return err
	}
	return e.doc.writeClipboard(text)
}

// enter records a call and checks the element is usable. Callers hold
// doc.mu.
func (e *Element) enter(method string) error {
	e.calls[method]++
	if e.knobs.PanicOn == method {
		panic("memdom: " + method)
	}
	if !e.connected {
		return surface.ErrDetached
	}
	return nil
}

// applyKey edits the text the way a trusted keystroke would and commits
// framework state.
func (e *Element) applyKey(ev key.Event) {
	e.pressed = append(e.pressed, ev)
	switch {
	case ev.Key == key.KeyBackspace:
		if e.selStart == e.selEnd {
			if e.caret == 0 {
				return
			}
			e.selStart, e.selEnd = e.caret-1, e.caret
		}
		e.replaceSelection(nil)
	case ev.Key == key.KeyDelete:
		if e.selStart == e.selEnd {
			if e.caret >= len(e.value) {
				return
			}
			e.selStart, e.selEnd = e.caret, e.caret+1
		}
		e.replaceSelection(nil)
	case ev.Key == key.KeyEnter:
		if e.multiline() {
			e.replaceSelection([]rune{'\n'})
		}
	case ev.Key == key.KeyLeft:
		e.collapse(e.caret - 1)
	case ev.Key == key.KeyRight:
		e.collapse(e.caret + 1)
	case ev.Key == key.KeyHome:
		e.collapse(0)
	case ev.Key == key.KeyEnd:
		e.collapse(len(e.value))
	case ev.IsChar():
		r := ev.Rune
		if ev.Modifiers.Has(key.ModShift) {
			r = unicode.ToUpper(r)
		}
		e.replaceSelection([]rune{r})
	}
	e.commit()
}

func (e *Element) multiline() bool {
	return e.profile.Tag == "textarea" || e.profile.ContentEditable
}

func (e *Element) replaceSelection(with []rune) {
	s, t := e.clamp(e.selStart), e.clamp(e.selEnd)
	if s > t {
		s, t = t, s
	}
	next := make([]rune, 0, len(e.value)-(t-s)+len(with))
	next = append(next, e.value[:s]...)
	next = append(next, with...)
	next = append(next, e.value[t:]...)
	e.setText(next)
	e.collapse(s + len(with))
}

func (e *Element) setText(v []rune) {
	if string(v) != string(e.value) {
		e.mutations++
	}
	e.value = v
}

// commit records the current text as framework state.
func (e *Element) commit() {
	e.committed = append(e.committed[:0], e.value...)
	e.tracker = string(e.value)
}

func (e *Element) clamp(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(e.value) {
		return len(e.value)
	}
	return pos
}

func (e *Element) collapse(pos int) {
	pos = e.clamp(pos)
	e.caret, e.selStart, e.selEnd = pos, pos, pos
}
