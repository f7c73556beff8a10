package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec string
		want Event
	}{
		{"a", NewRuneEvent('a', ModNone)},
		{"A", NewRuneEvent('A', ModShift)},
		{"Enter", NewSpecialEvent(KeyEnter, ModNone)},
		{"<CR>", NewSpecialEvent(KeyEnter, ModNone)},
		{"tab", NewSpecialEvent(KeyTab, ModNone)},
		{"Shift+Tab", NewSpecialEvent(KeyTab, ModShift)},
		{"<S-Tab>", NewSpecialEvent(KeyTab, ModShift)},
		{"Ctrl+A", NewRuneEvent('a', ModCtrl)},
		{"<C-a>", NewRuneEvent('a', ModCtrl)},
		{"Space", NewRuneEvent(' ', ModNone)},
		{"ArrowLeft", NewSpecialEvent(KeyLeft, ModNone)},
		{"+", NewRuneEvent('+', ModNone)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Parse(tt.spec)
			require.NoError(t, err)
			assert.True(t, got.Equals(tt.want), "got %#v want %#v", got, tt.want)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("  ")
	assert.ErrorIs(t, err, ErrEmptySpec)

	_, err = Parse("Hyper+a")
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = Parse("notakey")
	assert.ErrorIs(t, err, ErrInvalidSpec)

	assert.Panics(t, func() { MustParse("") })
}

func TestEvent_Text(t *testing.T) {
	assert.Equal(t, "x", NewRuneEvent('x', ModNone).Text())
	assert.Equal(t, "X", NewRuneEvent('X', ModShift).Text())
	assert.Equal(t, "", NewRuneEvent('x', ModCtrl).Text())
	assert.Equal(t, "\t", NewSpecialEvent(KeyTab, ModNone).Text())
	assert.Equal(t, "", NewSpecialEvent(KeyLeft, ModNone).Text())
}

func TestEvent_DOMNames(t *testing.T) {
	e := NewRuneEvent('b', ModNone)
	assert.Equal(t, "b", e.DOMKey())
	assert.Equal(t, "KeyB", e.DOMCode())
	assert.Equal(t, 66, e.KeyCode())

	assert.Equal(t, "Backspace", Backspace.DOMKey())
	assert.Equal(t, 8, Backspace.KeyCode())
	assert.Equal(t, "ArrowUp", NewSpecialEvent(KeyUp, ModNone).DOMKey())
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "Ctrl+a", NewRuneEvent('a', ModCtrl).String())
	assert.Equal(t, "A", NewRuneEvent('A', ModShift).String())
	assert.Equal(t, "Space", NewRuneEvent(' ', ModNone).String())
	assert.Equal(t, "Shift+Tab", NewSpecialEvent(KeyTab, ModShift).String())
}

func TestEventsForText(t *testing.T) {
	events := EventsForText("Hi\r\nx\t")
	require.Len(t, events, 5)
	assert.True(t, events[0].Equals(NewRuneEvent('H', ModShift)))
	assert.Equal(t, KeyEnter, events[2].Key)
	assert.Equal(t, KeyTab, events[4].Key)
}

func TestKeyFromName(t *testing.T) {
	assert.Equal(t, KeyEscape, FromName("esc"))
	assert.Equal(t, KeyNone, FromName("hyper"))
	assert.True(t, KeyHome.IsNavigation())
	assert.False(t, KeyEnter.IsNavigation())
}
