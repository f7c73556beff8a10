package expand

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dshills/textstorm/internal/command"
	"github.com/dshills/textstorm/internal/form"
	"github.com/dshills/textstorm/internal/llm"
	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/replace"
	"github.com/dshills/textstorm/internal/snippet"
	"github.com/dshills/textstorm/internal/surface"
)

// usageTimeout bounds one usage update.
const usageTimeout = 5 * time.Second

var (
	errCanceled = errors.New("expansion canceled")
	errDetached = errors.New("element detached")
)

// Marker formats the inline text inserted when an expansion cannot
// produce its real output.
func Marker(reason string) string {
	return fmt.Sprintf("[textstorm: %s]", reason)
}

// rendered is an expansion ready for the engine.
type rendered struct {
	text string
	opts replace.Options

	// genuine is false for fallbacks and error markers, which do not
	// count as uses of the snippet.
	genuine bool
}

// expand runs the locked part of an expansion.
func (c *Controller) expand(ctx context.Context, el surface.Element, kind surface.Kind, m match, cfg Config) {
	s := m.Snippet
	id := el.ID()
	fields := c.resolver.Fields(s.Expansion)

	branch := branchStatic
	switch {
	case s.IsDynamic():
		branch = branchDynamic
	case len(fields) > 0:
		branch = branchForm
	}

	cooldown := cfg.LockCooldown
	if branch != branchStatic && cfg.HoldCooldown > cooldown {
		cooldown = cfg.HoldCooldown
	}
	if !c.locks.Lock(id, cooldown) {
		c.logger.Debug("element %s busy, dropping %q", id, m.Trigger())
		recordExpansion(branch, resultContended)
		return
	}

	log := c.logger.WithFields(map[string]any{"element": id, "snippet": s.ID, "kind": kind})
	out, err := c.render(ctx, el, m, fields, log)
	if err == nil && !el.Connected(ctx) {
		err = errDetached
	}
	switch {
	case errors.Is(err, errDetached):
		log.Debug("element detached before replacement")
		c.forget(id)
		recordExpansion(branch, resultDetached)
		return
	case err != nil:
		log.Debug("expansion canceled: %v", err)
		c.locks.Unlock(id)
		recordExpansion(branch, resultCanceled)
		return
	}

	ok := c.replacer.Replace(ctx, el, m.Typed, out.text+m.Delimiter, out.opts)
	c.finish(id)
	if !ok {
		log.Warn("replacement of %q failed", m.Trigger())
		c.locks.MarkFailed(id)
		recordExpansion(branch, resultFailure)
		return
	}
	c.locks.Unlock(id)
	recordExpansion(branch, resultSuccess)
	if out.genuine {
		c.recordUsage(s.ID)
	}
}

// render produces the replacement text for m. It returns errCanceled when
// the user dismisses a form and errDetached when the element goes away
// during a suspension.
func (c *Controller) render(ctx context.Context, el surface.Element, m match, fields []form.Field, log *logging.Logger) (rendered, error) {
	s := m.Snippet
	resolver := c.resolver
	if cb, ok := el.(surface.Clipboard); ok {
		resolver = resolver.WithClipboardFrom(cb.ReadClipboard)
	}

	var values map[string]string
	if len(fields) > 0 {
		got, err := c.prompter.Prompt(ctx, fields)
		if err != nil {
			if !errors.Is(err, form.ErrCanceled) {
				log.Warn("form prompt failed: %v", err)
			}
			return rendered{}, errCanceled
		}
		if !el.Connected(ctx) {
			return rendered{}, errDetached
		}
		values = form.Fill(fields, got)
	}

	res, err := resolver.Resolve(ctx, s.Expansion, values)
	if err != nil {
		log.Warn("resolving %q: %v", s.Trigger, err)
		return rendered{text: Marker(resolveReason(err))}, nil
	}

	if !s.IsDynamic() {
		text, opts := applyCase(s, m.Trigger(), res.Text, res.Options())
		return rendered{text: text, opts: opts, genuine: true}, nil
	}

	if !el.Connected(ctx) {
		return rendered{}, errDetached
	}
	text, genuine := c.complete(ctx, s, res.Text, log)
	if !el.Connected(ctx) {
		return rendered{}, errDetached
	}
	return rendered{text: text, genuine: genuine}, nil
}

// complete asks the LLM for the expansion of a dynamic snippet. Failures
// produce the snippet's fallback or an inline marker.
func (c *Controller) complete(ctx context.Context, s *snippet.Snippet, prompt string, log *logging.Logger) (string, bool) {
	d := s.Dynamic
	var err error
	if c.completer == nil {
		err = llm.ErrNoProvider(d.Provider)
	} else {
		var resp llm.Response
		resp, err = c.completer.Complete(ctx, d.Provider, llm.Request{
			Prompt:      prompt,
			Model:       d.Model,
			MaxTokens:   d.MaxTokens,
			Temperature: d.Temperature,
		})
		if err == nil {
			return strings.TrimSpace(resp.Text), true
		}
	}
	log.Warn("completion for %q failed: %v", s.Trigger, err)
	if d.Fallback != "" {
		return d.Fallback, false
	}
	return Marker(llm.Reason(err)), false
}

func resolveReason(err error) string {
	switch {
	case errors.Is(err, command.ErrCycle):
		return "snippet cycle"
	case errors.Is(err, command.ErrMaxDepth):
		return "snippets nested too deep"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return "template error"
}

// recordUsage bumps the snippet's usage count in the background.
func (c *Controller) recordUsage(id string) {
	if c.usage == nil {
		return
	}
	c.usageWG.Add(1)
	go func() {
		defer c.usageWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
		defer cancel()
		if err := c.usage.IncrementUsage(ctx, id); err != nil {
			c.logger.Warn("recording usage of %s: %v", id, err)
		}
	}()
}

var upper = cases.Upper(language.Und)

// applyCase mirrors the casing of the typed trigger onto the expansion of
// a case-insensitive snippet: an all-caps trigger upper-cases the whole
// expansion and a capitalized one capitalizes its first letter. The cursor
// offset is dropped if the transform changes the rune count.
func applyCase(s *snippet.Snippet, typed, text string, opts replace.Options) (string, replace.Options) {
	if s.CaseSensitive || typed == s.Trigger || text == "" {
		return text, opts
	}
	var out string
	switch {
	case isAllCaps(typed):
		out = upper.String(text)
	case startsUpper(typed) && !startsUpper(s.Trigger):
		first, size := utf8.DecodeRuneInString(text)
		out = upper.String(string(first)) + text[size:]
	default:
		return text, opts
	}
	if utf8.RuneCountInString(out) != utf8.RuneCountInString(text) {
		opts.MoveCursor = false
	}
	return out, opts
}

// isAllCaps reports whether s has at least two letters and all of them
// are upper case.
func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
