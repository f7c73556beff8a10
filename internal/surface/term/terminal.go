// Package term is a terminal playground for textstorm: one text field
// drawn with tcell whose keystrokes drive the same controller a browser
// page does.
package term

import (
	"context"
	"sync"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

// Terminal owns the screen and the field. It implements surface.Host.
type Terminal struct {
	screen tcell.Screen
	field  *Field

	signals chan surface.Signal
	ready   chan struct{}
	once    sync.Once

	mu     sync.Mutex
	status string
}

// New creates a terminal around screen. A nil screen opens the real
// terminal.
func New(screen tcell.Screen) (*Terminal, error) {
	if screen == nil {
		var err error
		screen, err = tcell.NewScreen()
		if err != nil {
			return nil, err
		}
	}
	t := &Terminal{
		screen:  screen,
		field:   NewField(""),
		signals: make(chan surface.Signal, 256),
		ready:   make(chan struct{}),
	}
	t.field.OnChange(t.redraw)
	return t, nil
}

// Name implements surface.Host.
func (t *Terminal) Name() string { return Hostname }

// Signals implements surface.Host.
func (t *Terminal) Signals() <-chan surface.Signal { return t.signals }

// Ready is closed once the screen is initialized.
func (t *Terminal) Ready() <-chan struct{} { return t.ready }

// Field returns the edited field.
func (t *Terminal) Field() *Field { return t.field }

// SetStatus replaces the status line.
func (t *Terminal) SetStatus(msg string) {
	t.mu.Lock()
	t.status = msg
	t.mu.Unlock()
	t.redraw()
}

// redraw asks the event loop to draw.
func (t *Terminal) redraw() {
	_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil)) // best effort; a full queue draws later anyway
}

// Run initializes the screen and processes terminal events until Escape,
// Ctrl+C or ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	if err := t.screen.Init(); err != nil {
		return err
	}
	defer t.screen.Fini()
	defer t.once.Do(func() { close(t.signals) })
	defer t.field.Close()

	t.screen.EnablePaste()
	close(t.ready)
	go func() {
		<-ctx.Done()
		_ = t.screen.PostEvent(tcell.NewEventInterrupt(ctx))
	}()

	t.draw()
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return nil
		}
		switch e := ev.(type) {
		case *tcell.EventKey:
			if e.Key() == tcell.KeyEscape || e.Key() == tcell.KeyCtrlC {
				return nil
			}
			t.handleKey(e)
		case *tcell.EventInterrupt:
			if err := ctx.Err(); err != nil {
				return nil
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
		t.draw()
	}
}

// handleKey applies a key to the field and reports it the way a browser
// textarea does: keydown always, input when the text changed.
func (t *Terminal) handleKey(e *tcell.EventKey) {
	ev, ok := fromTcell(e)
	if !ok {
		return
	}
	before := t.field.Value()
	t.field.Type(ev)
	t.emit(surface.Signal{Type: surface.SignalKeyDown, Element: t.field, Key: ev})
	if t.field.Value() != before {
		t.emit(surface.Signal{Type: surface.SignalInput, Element: t.field})
	}
}

func (t *Terminal) emit(s surface.Signal) {
	select {
	case t.signals <- s:
	default:
	}
}

func (t *Terminal) draw() {
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()

	t.screen.Clear()
	width, height := t.screen.Size()
	if width <= 0 || height <= 1 {
		t.screen.Show()
		return
	}

	lines, row, col := t.field.Lines()
	body := height - 1
	top := 0
	if row >= body {
		top = row - body + 1
	}
	plain := tcell.StyleDefault
	for y := 0; y < body && top+y < len(lines); y++ {
		x := 0
		for _, r := range lines[top+y] {
			if r == '\t' {
				x += 4 - x%4
				continue
			}
			if x >= width {
				break
			}
			t.screen.SetContent(x, y, r, nil, plain)
			x++
		}
	}

	bar := tcell.StyleDefault.Reverse(true)
	text := []rune(status)
	for x := 0; x < width; x++ {
		r := ' '
		if x < len(text) {
			r = text[x]
		}
		t.screen.SetContent(x, height-1, r, nil, bar)
	}

	t.screen.ShowCursor(displayCol(lines[row], col), row-top)
	t.screen.Show()
}

// displayCol is the screen column of rune col in line, with tabs
// expanded to four-column stops.
func displayCol(line []rune, col int) int {
	x := 0
	for i := 0; i < col && i < len(line); i++ {
		if line[i] == '\t' {
			x += 4 - x%4
		} else {
			x++
		}
	}
	return x
}

// fromTcell converts a tcell key event. Keys textstorm has no use for
// report false.
func fromTcell(e *tcell.EventKey) (key.Event, bool) {
	var mods key.Modifier
	m := e.Modifiers()
	if m&tcell.ModShift != 0 {
		mods = mods.With(key.ModShift)
	}
	if m&tcell.ModCtrl != 0 {
		mods = mods.With(key.ModCtrl)
	}
	if m&tcell.ModAlt != 0 {
		mods = mods.With(key.ModAlt)
	}
	if m&tcell.ModMeta != 0 {
		mods = mods.With(key.ModMeta)
	}

	switch k := e.Key(); k {
	case tcell.KeyRune:
		r := e.Rune()
		if unicode.IsUpper(r) {
			mods = mods.With(key.ModShift)
		} else {
			mods &^= key.ModShift
		}
		return key.NewRuneEvent(r, mods), true
	case tcell.KeyEnter:
		return key.NewSpecialEvent(key.KeyEnter, mods), true
	case tcell.KeyTab:
		return key.NewSpecialEvent(key.KeyTab, mods), true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return key.NewSpecialEvent(key.KeyBackspace, mods&^key.ModCtrl), true
	case tcell.KeyDelete:
		return key.NewSpecialEvent(key.KeyDelete, mods), true
	case tcell.KeyHome:
		return key.NewSpecialEvent(key.KeyHome, mods), true
	case tcell.KeyEnd:
		return key.NewSpecialEvent(key.KeyEnd, mods), true
	case tcell.KeyPgUp:
		return key.NewSpecialEvent(key.KeyPageUp, mods), true
	case tcell.KeyPgDn:
		return key.NewSpecialEvent(key.KeyPageDown, mods), true
	case tcell.KeyUp:
		return key.NewSpecialEvent(key.KeyUp, mods), true
	case tcell.KeyDown:
		return key.NewSpecialEvent(key.KeyDown, mods), true
	case tcell.KeyLeft:
		return key.NewSpecialEvent(key.KeyLeft, mods), true
	case tcell.KeyRight:
		return key.NewSpecialEvent(key.KeyRight, mods), true
	default:
		if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
			return key.NewRuneEvent(rune('a'+int(k-tcell.KeyCtrlA)), mods.With(key.ModCtrl)), true
		}
	}
	return key.Event{}, false
}
