package replace

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

var (
	errNotFound    = errors.New("trigger not found in element text")
	errNotAdjacent = errors.New("trigger does not end at the caret")
	errRejected    = errors.New("command rejected by host")
)

func unsupported(t Tier, capability string) error {
	return fmt.Errorf("%s tier needs %s: %w", t, capability, surface.ErrUnsupported)
}

// snapshot reads the text and caret together.
func snapshot(ctx context.Context, el surface.Element) (string, int, error) {
	text, err := el.Text(ctx)
	if err != nil {
		return "", 0, err
	}
	caret, err := el.Caret(ctx)
	if err != nil {
		return "", 0, err
	}
	return text, caret, nil
}

// direct splices the value and dispatches input.
func (e *Engine) direct(ctx context.Context, el surface.Element, trigger, expansion string) error {
	setter, ok := el.(surface.ValueSetter)
	if !ok {
		return unsupported(TierDirect, "ValueSetter")
	}
	text, caret, err := snapshot(ctx, el)
	if err != nil {
		return err
	}
	start, ok := locate(text, trigger, caret)
	if !ok {
		return errNotFound
	}
	n := len([]rune(trigger))
	next := splice(text, start, n, expansion)
	if err := setter.SetValue(ctx, next, start+len([]rune(expansion))); err != nil {
		return err
	}
	if d, ok := el.(surface.EventDispatcher); ok {
		return d.Dispatch(ctx, surface.EventInput)
	}
	return nil
}

// execCommand selects the trigger and rewrites it with the browser's
// editing commands.
func (e *Engine) execCommand(ctx context.Context, el surface.Element, trigger, expansion string) (err error) {
	sel, ok := el.(surface.Selector)
	if !ok {
		return unsupported(TierExecCommand, "Selector")
	}
	cmd, ok := el.(surface.CommandExecutor)
	if !ok {
		return unsupported(TierExecCommand, "CommandExecutor")
	}
	text, caret, err := snapshot(ctx, el)
	if err != nil {
		return err
	}
	if caret < 0 || !endsAtCaret(text, trigger, caret) {
		return errNotAdjacent
	}
	n := len([]rune(trigger))
	if err := sel.Select(ctx, caret-n, caret); err != nil {
		return err
	}
	defer e.collapseOnError(ctx, sel, caret, &err)
	if ok, err := cmd.ExecCommand(ctx, "delete", ""); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("delete: %w", errRejected)
	}
	if ok, err := cmd.ExecCommand(ctx, "insertText", expansion); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("insertText: %w", errRejected)
	}
	if d, ok := el.(surface.EventDispatcher); ok {
		return d.Dispatch(ctx, surface.EventInput)
	}
	return nil
}

// aggressive writes through the native setter, invalidates the framework
// value tracker and dispatches the events a framework listens to.
func (e *Engine) aggressive(ctx context.Context, el surface.Element, trigger, expansion string) error {
	native, ok := el.(surface.NativeSetter)
	if !ok {
		return unsupported(TierAggressive, "NativeSetter")
	}
	d, ok := el.(surface.EventDispatcher)
	if !ok {
		return unsupported(TierAggressive, "EventDispatcher")
	}
	text, caret, err := snapshot(ctx, el)
	if err != nil {
		return err
	}
	start, ok := locate(text, trigger, caret)
	if !ok {
		return errNotFound
	}
	next := splice(text, start, len([]rune(trigger)), expansion)
	if err := native.SetNativeValue(ctx, next, start+len([]rune(expansion))); err != nil {
		return err
	}
	if err := native.ResetValueTracker(ctx); err != nil {
		return err
	}
	for _, ev := range []string{surface.EventInput, surface.EventChange, surface.EventKeyUp} {
		if err := d.Dispatch(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// clipboard pastes the expansion over the selected trigger. The previous
// clipboard contents are restored on a best-effort basis.
func (e *Engine) clipboard(ctx context.Context, el surface.Element, trigger, expansion string) (err error) {
	clip, ok := el.(surface.Clipboard)
	if !ok {
		return unsupported(TierClipboard, "Clipboard")
	}
	sel, ok := el.(surface.Selector)
	if !ok {
		return unsupported(TierClipboard, "Selector")
	}
	cmd, ok := el.(surface.CommandExecutor)
	if !ok {
		return unsupported(TierClipboard, "CommandExecutor")
	}
	text, caret, err := snapshot(ctx, el)
	if err != nil {
		return err
	}
	start, ok := locate(text, trigger, caret)
	if !ok {
		return errNotFound
	}

	saved, readErr := clip.ReadClipboard(ctx)
	if err := clip.WriteClipboard(ctx, expansion); err != nil {
		return err
	}
	defer func() {
		if readErr != nil {
			e.logger.Debug("clipboard was unreadable, not restoring: %v", readErr)
			return
		}
		if err := clip.WriteClipboard(ctx, saved); err != nil {
			e.logger.Warn("failed to restore clipboard: %v", err)
		}
	}()

	if err := sel.Select(ctx, start, start+len([]rune(trigger))); err != nil {
		return err
	}
	defer e.collapseOnError(ctx, sel, caret, &err)
	ok, err = cmd.ExecCommand(ctx, "paste", "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("paste: %w", errRejected)
	}
	return nil
}

// keystrokes deletes the trigger with Backspace and types the expansion.
func (e *Engine) keystrokes(ctx context.Context, el surface.Element, trigger, expansion string) error {
	kb, ok := el.(surface.Keyboard)
	if !ok {
		return unsupported(TierKeystrokes, "Keyboard")
	}
	text, caret, err := snapshot(ctx, el)
	if err != nil {
		return err
	}
	if !endsAtCaret(text, trigger, caret) {
		return errNotAdjacent
	}
	if sel, ok := el.(surface.Selector); ok {
		if err := sel.Focus(ctx); err != nil {
			return err
		}
		// Backspace must remove one rune, not a selection left by an
		// earlier tier.
		if err := sel.Select(ctx, caret, caret); err != nil {
			return err
		}
	}

	press := func(ev key.Event) error {
		if !el.Connected(ctx) {
			return surface.ErrDetached
		}
		if err := kb.Press(ctx, ev); err != nil {
			return err
		}
		return e.sleep(ctx, e.cfg.KeyDelay)
	}
	for range []rune(trigger) {
		if err := press(key.Backspace); err != nil {
			return err
		}
	}
	for _, ev := range key.EventsForText(expansion) {
		if err := press(ev); err != nil {
			return err
		}
	}
	return nil
}

// collapseOnError puts the caret back at caret when the tier failed after
// selecting the trigger, so the next tier starts from a collapsed
// selection.
func (e *Engine) collapseOnError(ctx context.Context, sel surface.Selector, caret int, err *error) {
	if *err == nil {
		return
	}
	if cerr := sel.Select(ctx, caret, caret); cerr != nil {
		e.logger.Debug("collapsing selection failed: %v", cerr)
	}
}
