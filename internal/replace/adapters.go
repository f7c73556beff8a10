package replace

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/textstorm/internal/surface"
)

var errAdapterAborted = errors.New("editor adapter could not delete trigger")

// googleDocs edits through the Docs text event target.
func (e *Engine) googleDocs(ctx context.Context, el surface.Element, trigger, expansion string) error {
	return e.modelReplace(ctx, TierGoogleDocs, el, trigger, expansion)
}

// ckeditor edits through the CKEditor model.
func (e *Engine) ckeditor(ctx context.Context, el surface.Element, trigger, expansion string) error {
	return e.modelReplace(ctx, TierCKEditor, el, trigger, expansion)
}

// modelReplace deletes the trigger through the editor model, verifying
// after each attempt, then inserts the expansion. It gives up after
// AdapterAttempts deletions that leave the text unchanged.
func (e *Engine) modelReplace(ctx context.Context, t Tier, el surface.Element, trigger, expansion string) error {
	model, ok := el.(surface.ModelEditor)
	if !ok {
		return unsupported(t, "ModelEditor")
	}
	before, err := surface.TextBeforeCaret(ctx, el)
	if err != nil {
		return err
	}
	runes := []rune(before)
	n := len([]rune(trigger))
	if n > len(runes) || string(runes[len(runes)-n:]) != trigger {
		return errNotAdjacent
	}
	want := string(runes[:len(runes)-n])

	attempts := e.cfg.AdapterAttempts
	if attempts < 1 {
		attempts = 1
	}
	deleted := false
	for i := 0; i < attempts && !deleted; i++ {
		if err := model.DeleteBackward(ctx, n); err != nil {
			return err
		}
		if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
			return err
		}
		if !el.Connected(ctx) {
			return surface.ErrDetached
		}
		got, err := surface.TextBeforeCaret(ctx, el)
		if err != nil {
			return err
		}
		deleted = got == want
		if !deleted && len([]rune(got)) < len(runes) {
			return fmt.Errorf("%s: partial delete: %w", t, errAdapterAborted)
		}
		if !deleted {
			e.logger.Debug("%s adapter: trigger still present after delete %d/%d", t, i+1, attempts)
		}
	}
	if !deleted {
		return fmt.Errorf("%s: %w", t, errAdapterAborted)
	}
	return model.InsertText(ctx, expansion)
}
