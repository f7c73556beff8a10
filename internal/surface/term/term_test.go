package term

import (
	"context"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

func TestField_Editing(t *testing.T) {
	ctx := context.Background()
	f := NewField("hello")

	caret, err := f.Caret(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, caret)

	f.Type(key.NewRuneEvent('!', key.ModNone))
	f.Type(key.NewSpecialEvent(key.KeyLeft, key.ModNone))
	f.Type(key.Backspace)
	assert.Equal(t, "hell!", f.Value())

	require.NoError(t, f.Select(ctx, 0, 4))
	caret, _ = f.Caret(ctx)
	assert.Equal(t, -1, caret, "caret unknown with a selection")
	f.Type(key.NewRuneEvent('y', key.ModShift))
	assert.Equal(t, "Y!", f.Value())

	require.NoError(t, f.SetValue(ctx, "a\nbc", 4))
	f.Type(key.NewSpecialEvent(key.KeyHome, key.ModNone))
	caret, _ = f.Caret(ctx)
	assert.Equal(t, 2, caret)

	text, err := surface.TextBeforeCaret(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "a\n", text)
}

func TestField_Lines(t *testing.T) {
	f := NewField("ab\ncd")
	lines, row, col := f.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "cd", string(lines[1]))
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, col)

	require.NoError(t, f.Select(context.Background(), 1, 1))
	_, row, col = f.Lines()
	assert.Equal(t, 0, row)
	assert.Equal(t, 1, col)
}

func TestField_CapabilitiesAndClose(t *testing.T) {
	ctx := context.Background()
	f := NewField("x")
	changes := 0
	f.OnChange(func() { changes++ })

	require.NoError(t, f.Press(ctx, key.NewRuneEvent('y', key.ModNone)))
	require.NoError(t, f.Dispatch(ctx, surface.EventInput))
	require.NoError(t, f.WriteClipboard(ctx, "clip"))
	clip, err := f.ReadClipboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "clip", clip)
	assert.Equal(t, "xy", f.Value())
	assert.Equal(t, []string{"input"}, f.Events())
	assert.Equal(t, 1, changes)

	p, err := f.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, surface.KindTextarea, surface.Classify(p))

	f.Close()
	assert.False(t, f.Connected(ctx))
	_, err = f.Text(ctx)
	assert.ErrorIs(t, err, surface.ErrDetached)
	assert.ErrorIs(t, f.SetValue(ctx, "z", 1), surface.ErrDetached)
	assert.NotEqual(t, f.ID(), NewField("").ID())
}

func TestFromTcell(t *testing.T) {
	tests := []struct {
		name string
		in   *tcell.EventKey
		want key.Event
	}{
		{"rune", tcell.NewEventKey(tcell.KeyRune, 'b', tcell.ModNone), key.NewRuneEvent('b', key.ModNone)},
		{"upper", tcell.NewEventKey(tcell.KeyRune, 'B', tcell.ModNone), key.NewRuneEvent('B', key.ModShift)},
		{"enter", tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), key.NewSpecialEvent(key.KeyEnter, key.ModNone)},
		{"backspace", tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone), key.Backspace},
		{"ctrl-v", tcell.NewEventKey(tcell.KeyCtrlV, 0, tcell.ModCtrl), key.NewRuneEvent('v', key.ModCtrl)},
		{"left", tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), key.NewSpecialEvent(key.KeyLeft, key.ModNone)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fromTcell(tt.in)
			require.True(t, ok)
			assert.True(t, got.Equals(tt.want), "got %#v", got)
		})
	}

	_, ok := fromTcell(tcell.NewEventKey(tcell.KeyF5, 0, tcell.ModNone))
	assert.False(t, ok)
}

func TestDisplayCol(t *testing.T) {
	assert.Equal(t, 0, displayCol([]rune("ab"), 0))
	assert.Equal(t, 4, displayCol([]rune("\tx"), 1))
	assert.Equal(t, 5, displayCol([]rune("\tx"), 2))
}

func TestTerminal_Run(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	term, err := New(screen)
	require.NoError(t, err)
	assert.Equal(t, Hostname, term.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- term.Run(ctx) }()

	select {
	case <-term.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("screen never initialized")
	}

	require.NoError(t, screen.PostEvent(tcell.NewEventKey(tcell.KeyRune, 'h', tcell.ModNone)))
	require.NoError(t, screen.PostEvent(tcell.NewEventKey(tcell.KeyRune, 'i', tcell.ModNone)))

	var got []surface.SignalType
	timeout := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case sig := <-term.Signals():
			got = append(got, sig.Type)
			assert.Equal(t, term.Field().ID(), sig.Element.ID())
		case <-timeout:
			t.Fatalf("signals: %v", got)
		}
	}
	assert.Equal(t, []surface.SignalType{
		surface.SignalKeyDown, surface.SignalInput,
		surface.SignalKeyDown, surface.SignalInput,
	}, got)
	assert.Equal(t, "hi", term.Field().Value())

	require.NoError(t, term.Field().SetValue(ctx, "ok", 2))
	assert.Eventually(t, func() bool {
		r, _, _, _ := screen.GetContent(0, 0)
		return r == 'o'
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, screen.PostEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal did not exit")
	}
	_, open := <-term.Signals()
	assert.False(t, open)
}
