package memdom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

func TestType_EmitsSignals(t *testing.T) {
	doc := NewDocument("example.com")
	el := doc.Textarea("")
	doc.Type(el, "hi")

	assert.Equal(t, "hi", el.Value())
	assert.Equal(t, 2, el.CaretPos())

	var types []surface.SignalType
	for len(doc.Signals()) > 0 {
		types = append(types, (<-doc.Signals()).Type)
	}
	assert.Equal(t, []surface.SignalType{
		surface.SignalKeyDown, surface.SignalInput,
		surface.SignalKeyDown, surface.SignalInput,
	}, types)
}

func TestType_RichEditorSkipsInput(t *testing.T) {
	doc := NewDocument("example.com")
	el := doc.CKEditor("")
	doc.Type(el, "a")
	require.Len(t, doc.Signals(), 1)
	assert.Equal(t, surface.SignalKeyDown, (<-doc.Signals()).Type)
}

func TestControlled_RevertsDirectWrites(t *testing.T) {
	ctx := context.Background()
	doc := NewDocument("example.com")
	el := doc.Controlled("brb")

	require.NoError(t, el.SetValue(ctx, "be right back", 13))
	assert.Equal(t, "be right back", el.Value())
	require.NoError(t, el.Dispatch(ctx, surface.EventInput))
	assert.Equal(t, "brb", el.Value(), "framework re-render restores state")

	require.NoError(t, el.SetNativeValue(ctx, "be right back", 13))
	require.NoError(t, el.ResetValueTracker(ctx))
	require.NoError(t, el.Dispatch(ctx, surface.EventInput))
	assert.Equal(t, "be right back", el.Value())
}

func TestExecCommand(t *testing.T) {
	ctx := context.Background()
	doc := NewDocument("example.com")
	el := doc.ContentEditable("say brb")

	require.NoError(t, el.Select(ctx, 4, 7))
	ok, err := el.ExecCommand(ctx, "delete", "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = el.ExecCommand(ctx, "insertText", "be right back")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "say be right back", el.Value())

	ok, _ = el.ExecCommand(ctx, "bold", "")
	assert.False(t, ok)
}

func TestPaste(t *testing.T) {
	ctx := context.Background()
	doc := NewDocument("example.com")
	doc.SetClipboard("pasted")
	el := doc.Input("x brb")

	require.NoError(t, el.Select(ctx, 2, 5))
	ok, err := el.ExecCommand(ctx, "paste", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x pasted", el.Value())

	doc.BlockClipboard(true)
	_, err = el.ReadClipboard(ctx)
	assert.ErrorIs(t, err, surface.ErrBlocked)
}

func TestPress(t *testing.T) {
	ctx := context.Background()
	doc := NewDocument("example.com")
	el := doc.Textarea("ab")

	require.NoError(t, el.Press(ctx, key.Backspace))
	require.NoError(t, el.Press(ctx, key.NewRuneEvent('c', key.ModNone)))
	require.NoError(t, el.Press(ctx, key.NewSpecialEvent(key.KeyEnter, key.ModNone)))
	assert.Equal(t, "ac\n", el.Value())
	assert.Len(t, el.Pressed(), 3)
	assert.Equal(t, []string{"keydown", "keypress", "keyup"}, el.Events()[:3])
}

func TestModelEditor_Misses(t *testing.T) {
	ctx := context.Background()
	doc := NewDocument("docs.google.com")
	el := doc.GoogleDocs("note brb")
	el.SetKnobs(Knobs{ModelDeleteMisses: 1})

	require.NoError(t, el.DeleteBackward(ctx, 3))
	assert.Equal(t, "note brb", el.Value())
	require.NoError(t, el.DeleteBackward(ctx, 3))
	assert.Equal(t, "note ", el.Value())
	require.NoError(t, el.InsertText(ctx, "be right back"))
	assert.Equal(t, "note be right back", el.Value())
}

func TestDetached(t *testing.T) {
	ctx := context.Background()
	doc := NewDocument("example.com")
	el := doc.Textarea("brb")
	doc.Remove(el)

	assert.False(t, el.Connected(ctx))
	_, err := el.Text(ctx)
	assert.ErrorIs(t, err, surface.ErrDetached)
	assert.ErrorIs(t, el.SetValue(ctx, "x", 1), surface.ErrDetached)
	assert.Equal(t, 0, el.Mutations())
	assert.Equal(t, surface.SignalRemoved, (<-doc.Signals()).Type)
}
