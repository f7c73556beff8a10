package replace

import (
	"context"
	"time"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/input/macro"
	"github.com/dshills/textstorm/internal/lock"
	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/surface"
)

// maxPasses bounds the full walks through a plan: the first pass and one
// retry.
const maxPasses = 2

// Config holds engine timing.
type Config struct {
	// SettleDelay is waited after a tier reports success and before the
	// element is re-read for verification.
	SettleDelay time.Duration

	// RetryDelay is waited between the first and second pass.
	RetryDelay time.Duration

	// KeyDelay is waited between synthetic keystrokes.
	KeyDelay time.Duration

	// AdapterAttempts bounds the editor adapters' deletion retries.
	AdapterAttempts int
}

// DefaultConfig returns the default engine timing.
func DefaultConfig() Config {
	return Config{
		SettleDelay:     50 * time.Millisecond,
		RetryDelay:      200 * time.Millisecond,
		KeyDelay:        10 * time.Millisecond,
		AdapterAttempts: 3,
	}
}

// Options carries the post-insertion work resolved from the template.
type Options struct {
	// MoveCursor requests that the caret end up at CursorOffset instead of
	// after the expansion.
	MoveCursor bool

	// CursorOffset is a rune offset inside the expansion.
	CursorOffset int

	// Actions are replayed after the text lands.
	Actions macro.Macro
}

// Engine replaces triggers with expansions.
type Engine struct {
	cfg    Config
	logger *logging.Logger
	prober *surface.Prober
	plans  map[surface.Kind]Plan
	tiers  map[Tier]TierFunc
	sleep  func(ctx context.Context, d time.Duration) error
	player *macro.Player
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine timing.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithProber shares a kind cache with other components.
func WithProber(p *surface.Prober) Option {
	return func(e *Engine) {
		e.prober = p
	}
}

// WithSleep replaces the delay implementation.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// WithTier overrides the implementation of one tier.
func WithTier(t Tier, fn TierFunc) Option {
	return func(e *Engine) {
		e.tiers[t] = fn
	}
}

// WithPlan overrides the tier order for one editor kind.
func WithPlan(k surface.Kind, p Plan) Option {
	return func(e *Engine) {
		e.plans[k] = p
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:    DefaultConfig(),
		logger: logging.Nop(),
		prober: surface.NewProber(),
		plans:  DefaultPlans(),
		sleep:  macro.Sleep,
	}
	e.tiers = map[Tier]TierFunc{
		TierGoogleDocs:  e.googleDocs,
		TierCKEditor:    e.ckeditor,
		TierDirect:      e.direct,
		TierExecCommand: e.execCommand,
		TierAggressive:  e.aggressive,
		TierClipboard:   e.clipboard,
		TierKeystrokes:  e.keystrokes,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("replace")
	e.player = macro.NewPlayer().WithSleep(e.sleep)
	return e
}

// Prober returns the engine's kind cache.
func (e *Engine) Prober() *surface.Prober {
	return e.prober
}

// Config returns the engine timing.
func (e *Engine) Config() Config {
	return e.cfg
}

// Replace swaps the trigger immediately before the caret of el for
// expansion. It reports whether a tier succeeded and passed verification.
func (e *Engine) Replace(ctx context.Context, el surface.Element, trigger, expansion string, opts Options) bool {
	if el == nil || trigger == "" {
		return false
	}
	kind := e.prober.Probe(ctx, el)
	log := e.logger.WithFields(map[string]any{"element": el.ID(), "kind": kind})

	ok := e.run(ctx, el, kind, trigger, expansion, log)
	recordReplacement(kind, ok)
	if !ok {
		return false
	}
	e.afterInsert(ctx, el, expansion, opts, log)
	return true
}

func (e *Engine) run(ctx context.Context, el surface.Element, kind surface.Kind, trigger, expansion string, log *logging.Logger) bool {
	plan := e.plans[kind]
	if len(plan) == 0 {
		plan = e.plans[surface.KindUnknown]
	}

	for pass := 0; pass < maxPasses; pass++ {
		if pass > 0 {
			if !el.Connected(ctx) {
				log.Debug("element detached, not retrying")
				return false
			}
			log.Debug("all tiers failed, retrying in %s", e.cfg.RetryDelay)
			if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
				return false
			}
		}
		if !el.Connected(ctx) {
			log.Debug("element detached")
			return false
		}
		for _, t := range plan {
			if ctx.Err() != nil {
				return false
			}
			if e.attempt(ctx, el, t, trigger, expansion, log) {
				log.Debug("replaced %q using %s tier (pass %d)", trigger, t, pass+1)
				return true
			}
			if !el.Connected(ctx) {
				log.Debug("element detached during %s tier", t)
				return false
			}
		}
	}
	log.Info("replacement of %q failed after %d passes", trigger, maxPasses)
	return false
}

// attempt runs one tier and verifies its result. Panics are contained.
func (e *Engine) attempt(ctx context.Context, el surface.Element, t Tier, trigger, expansion string, log *logging.Logger) (ok bool) {
	fn := e.tiers[t]
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("%s tier panicked: %v", t, r)
			ok = false
		}
		recordTier(t, ok)
	}()

	current, caret, err := snapshot(ctx, el)
	if err != nil {
		log.Debug("%s tier: read failed: %v", t, err)
		return false
	}
	before, found := textBefore(current, trigger, caret)
	if !found {
		log.Debug("%s tier: trigger no longer in the element", t)
		return false
	}

	if err := fn(ctx, el, trigger, expansion); err != nil {
		log.Debug("%s tier failed: %v", t, err)
		return false
	}
	if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
		return false
	}
	if !el.Connected(ctx) {
		return false
	}
	text, err := el.Text(ctx)
	if err != nil {
		log.Debug("%s tier: re-read failed: %v", t, err)
		return false
	}
	if !Verify(before, text, trigger, expansion) {
		log.Debug("%s tier reported success but verification failed", t)
		return false
	}
	return true
}

// afterInsert moves the caret to the requested offset and replays the
// post-insertion actions. Failures are logged only.
func (e *Engine) afterInsert(ctx context.Context, el surface.Element, expansion string, opts Options, log *logging.Logger) {
	n := len([]rune(expansion))
	if opts.MoveCursor && opts.CursorOffset >= 0 && opts.CursorOffset < n {
		if err := e.moveCaret(ctx, el, n-opts.CursorOffset); err != nil {
			log.Debug("cursor positioning failed: %v", err)
		}
	}
	if len(opts.Actions) == 0 {
		return
	}
	kb, ok := el.(surface.Keyboard)
	if !ok {
		log.Debug("element has no keyboard, dropping %d actions", len(opts.Actions))
		return
	}
	err := e.player.Play(ctx, opts.Actions, func(ctx context.Context, ev key.Event) error {
		if !el.Connected(ctx) {
			return surface.ErrDetached
		}
		return kb.Press(ctx, ev)
	})
	if err != nil {
		log.Debug("keyboard actions stopped: %v", err)
	}
}

// moveCaret moves the caret back by n runes.
func (e *Engine) moveCaret(ctx context.Context, el surface.Element, back int) error {
	if sel, ok := el.(surface.Selector); ok {
		if caret, err := el.Caret(ctx); err == nil && caret >= back {
			return sel.Select(ctx, caret-back, caret-back)
		}
	}
	kb, ok := el.(surface.Keyboard)
	if !ok {
		return surface.ErrUnsupported
	}
	left := key.NewSpecialEvent(key.KeyLeft, key.ModNone)
	for i := 0; i < back; i++ {
		if err := kb.Press(ctx, left); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceExclusive runs Replace while holding the element's lock. A
// contended lock returns false without touching the element. Success
// unlocks; failure marks the element failed.
func (e *Engine) ReplaceExclusive(ctx context.Context, locks *lock.Table, el surface.Element, trigger, expansion string, opts Options) bool {
	if el == nil {
		return false
	}
	id := el.ID()
	if !locks.Lock(id, lock.DefaultCooldown) {
		e.logger.Debug("element %s locked, dropping replacement", id)
		return false
	}
	if e.Replace(ctx, el, trigger, expansion, opts) {
		locks.Unlock(id)
		return true
	}
	locks.MarkFailed(id)
	return false
}
