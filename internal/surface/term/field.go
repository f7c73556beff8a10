package term

import (
	"context"
	"strconv"
	"sync"
	"unicode"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

// Hostname is the host name terminal fields report.
const Hostname = "terminal"

var fieldIDs struct {
	sync.Mutex
	next int
}

// Field is a multi-line text field edited in the terminal. It behaves like
// a plain textarea with an in-process clipboard.
type Field struct {
	id string

	mu        sync.Mutex
	value     []rune
	caret     int
	selStart  int
	selEnd    int
	clipboard string
	events    []string
	connected bool
	onChange  func()
}

var (
	_ surface.Element         = (*Field)(nil)
	_ surface.ValueSetter     = (*Field)(nil)
	_ surface.Selector        = (*Field)(nil)
	_ surface.EventDispatcher = (*Field)(nil)
	_ surface.Keyboard        = (*Field)(nil)
	_ surface.Clipboard       = (*Field)(nil)
)

// NewField creates a connected field holding text with the caret at the
// end.
func NewField(text string) *Field {
	fieldIDs.Lock()
	fieldIDs.next++
	id := "term-" + strconv.Itoa(fieldIDs.next)
	fieldIDs.Unlock()

	v := []rune(text)
	return &Field{id: id, value: v, caret: len(v), selStart: len(v), selEnd: len(v), connected: true}
}

// OnChange sets a callback run after every change to the text or caret.
func (f *Field) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Value returns the current text.
func (f *Field) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.value)
}

// Events returns the names of dispatched events.
func (f *Field) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// Close disconnects the field.
func (f *Field) Close() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

// ID implements surface.Element.
func (f *Field) ID() string { return f.id }

// Connected implements surface.Element.
func (f *Field) Connected(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Profile implements surface.Element.
func (f *Field) Profile(context.Context) (surface.Profile, error) {
	if err := f.check(); err != nil {
		return surface.Profile{}, err
	}
	return surface.Profile{Tag: "textarea", Hostname: Hostname}, nil
}

// Text implements surface.Element.
func (f *Field) Text(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", surface.ErrDetached
	}
	return string(f.value), nil
}

// Caret implements surface.Element.
func (f *Field) Caret(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return 0, surface.ErrDetached
	}
	if f.selStart != f.selEnd {
		return -1, nil
	}
	return f.caret, nil
}

// SetValue implements surface.ValueSetter.
func (f *Field) SetValue(_ context.Context, value string, caret int) error {
	return f.edit(func() {
		f.value = []rune(value)
		f.collapse(caret)
	})
}

// Focus implements surface.Selector.
func (f *Field) Focus(context.Context) error {
	return f.check()
}

// Select implements surface.Selector.
func (f *Field) Select(_ context.Context, start, end int) error {
	return f.edit(func() {
		f.selStart, f.selEnd = f.clamp(start), f.clamp(end)
		f.caret = f.selEnd
	})
}

// Dispatch implements surface.EventDispatcher. Terminal fields have no
// listeners; the event is only recorded.
func (f *Field) Dispatch(_ context.Context, event string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return surface.ErrDetached
	}
	f.events = append(f.events, event)
	return nil
}

// Press implements surface.Keyboard.
func (f *Field) Press(_ context.Context, ev key.Event) error {
	return f.edit(func() { f.apply(ev) })
}

// ReadClipboard implements surface.Clipboard.
func (f *Field) ReadClipboard(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clipboard, nil
}

// WriteClipboard implements surface.Clipboard.
func (f *Field) WriteClipboard(_ context.Context, text string) error {
	f.mu.Lock()
	f.clipboard = text
	f.mu.Unlock()
	return nil
}

// Type applies a key typed by the user. It reports whether the key
// changed the field.
func (f *Field) Type(ev key.Event) bool {
	f.mu.Lock()
	before, caret := string(f.value), f.caret
	f.apply(ev)
	changed := string(f.value) != before || f.caret != caret
	fn := f.onChange
	f.mu.Unlock()
	if changed && fn != nil {
		fn()
	}
	return changed
}

// Lines returns the text split into lines and the caret's row and column.
func (f *Field) Lines() (lines [][]rune, row, col int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines = [][]rune{{}}
	for i, r := range f.value {
		if i == f.caret {
			row, col = len(lines)-1, len(lines[len(lines)-1])
		}
		if r == '\n' {
			lines = append(lines, []rune{})
			continue
		}
		lines[len(lines)-1] = append(lines[len(lines)-1], r)
	}
	if f.caret >= len(f.value) {
		row, col = len(lines)-1, len(lines[len(lines)-1])
	}
	return lines, row, col
}

func (f *Field) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return surface.ErrDetached
	}
	return nil
}

// edit runs fn under the lock on a connected field and reports the change.
func (f *Field) edit(fn func()) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return surface.ErrDetached
	}
	fn()
	cb := f.onChange
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (f *Field) apply(ev key.Event) {
	switch {
	case ev.Key == key.KeyBackspace:
		if f.selStart == f.selEnd {
			if f.caret == 0 {
				return
			}
			f.selStart, f.selEnd = f.caret-1, f.caret
		}
		f.replaceSelection(nil)
	case ev.Key == key.KeyDelete:
		if f.selStart == f.selEnd {
			if f.caret >= len(f.value) {
				return
			}
			f.selStart, f.selEnd = f.caret, f.caret+1
		}
		f.replaceSelection(nil)
	case ev.Key == key.KeyEnter && ev.Modifiers == key.ModNone:
		f.replaceSelection([]rune{'\n'})
	case ev.Key == key.KeyTab && ev.Modifiers == key.ModNone:
		f.replaceSelection([]rune{'\t'})
	case ev.Key == key.KeyLeft:
		f.collapse(f.caret - 1)
	case ev.Key == key.KeyRight:
		f.collapse(f.caret + 1)
	case ev.Key == key.KeyHome:
		f.collapse(f.lineStart())
	case ev.Key == key.KeyEnd:
		f.collapse(f.lineEnd())
	case ev.IsChar():
		r := ev.Rune
		if ev.Modifiers.Has(key.ModShift) {
			r = unicode.ToUpper(r)
		}
		f.replaceSelection([]rune{r})
	}
}

func (f *Field) lineStart() int {
	i := f.caret
	for i > 0 && f.value[i-1] != '\n' {
		i--
	}
	return i
}

func (f *Field) lineEnd() int {
	i := f.caret
	for i < len(f.value) && f.value[i] != '\n' {
		i++
	}
	return i
}

func (f *Field) replaceSelection(with []rune) {
	s, t := f.clamp(f.selStart), f.clamp(f.selEnd)
	if s > t {
		s, t = t, s
	}
	next := make([]rune, 0, len(f.value)-(t-s)+len(with))
	next = append(next, f.value[:s]...)
	next = append(next, with...)
	next = append(next, f.value[t:]...)
	f.value = next
	f.collapse(s + len(with))
}

func (f *Field) clamp(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(f.value) {
		return len(f.value)
	}
	return pos
}

func (f *Field) collapse(pos int) {
	pos = f.clamp(pos)
	f.caret, f.selStart, f.selEnd = pos, pos, pos
}
