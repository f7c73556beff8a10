package expand

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/dshills/textstorm/internal/command"
	"github.com/dshills/textstorm/internal/form"
	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/llm"
	"github.com/dshills/textstorm/internal/lock"
	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/replace"
	"github.com/dshills/textstorm/internal/surface"
	"github.com/dshills/textstorm/internal/trigger"
)

// Controller errors.
var (
	ErrRunning = errors.New("controller already running")
)

// DefaultBufferLimit caps the keydown buffer kept for rich editors.
const DefaultBufferLimit = 200

// Config holds the controller policy. It is replaced as a whole when
// settings change.
type Config struct {
	// Enabled turns expansion on for this host.
	Enabled bool

	// LockCooldown bounds how long a static expansion may hold an element.
	LockCooldown time.Duration

	// HoldCooldown bounds how long an expansion waiting on a form prompt
	// or an LLM completion may hold an element.
	HoldCooldown time.Duration

	// SuppressionWindow ignores signals on an element for this long after
	// an expansion finished on it, so the engine's own synthetic events
	// are not taken for typing.
	SuppressionWindow time.Duration

	// DedupeWindow drops a repeat of the same trigger on the same element.
	DedupeWindow time.Duration

	// BufferLimit caps the keydown buffer in runes.
	BufferLimit int
}

// DefaultConfig returns the default controller policy.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		LockCooldown:      lock.DefaultCooldown,
		HoldCooldown:      time.Minute,
		SuppressionWindow: 300 * time.Millisecond,
		DedupeWindow:      time.Second,
		BufferLimit:       DefaultBufferLimit,
	}
}

// Matcher finds the trigger at the end of a buffer.
type Matcher interface {
	FindMatch(buffer string) (trigger.Match, bool)
}

// Replacer swaps a trigger for its expansion.
type Replacer interface {
	Replace(ctx context.Context, el surface.Element, trigger, expansion string, opts replace.Options) bool
}

// UsageRecorder counts successful expansions.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, id string) error
}

// Event is one queued signal.
type Event = surface.Signal

// Controller drives expansion for one host.
type Controller struct {
	matcher   Matcher
	replacer  Replacer
	locks     *lock.Table
	prober    *surface.Prober
	resolver  *command.Resolver
	prompter  form.Prompter
	completer llm.Completer
	usage     UsageRecorder
	logger    *logging.Logger
	now       func() time.Time
	cfg       atomic.Pointer[Config]

	queue     chan Event
	queueSize int
	closeOnce sync.Once
	closed    chan struct{}
	running   atomic.Bool
	done      chan struct{}
	usageWG   sync.WaitGroup

	mu       sync.Mutex
	buffers  map[string][]rune
	finished map[string]time.Time
	fired    map[string]time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig sets the initial policy.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg.Store(&cfg)
	}
}

// WithResolver sets the command resolver. The default resolves the
// built-in commands without nested snippets or Lua.
func WithResolver(r *command.Resolver) Option {
	return func(c *Controller) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithPrompter sets the form prompter. Without one, form snippets are
// canceled.
func WithPrompter(p form.Prompter) Option {
	return func(c *Controller) {
		if p != nil {
			c.prompter = p
		}
	}
}

// WithCompleter enables dynamic snippets.
func WithCompleter(cp llm.Completer) Option {
	return func(c *Controller) {
		c.completer = cp
	}
}

// WithUsage records usage counts.
func WithUsage(u UsageRecorder) Option {
	return func(c *Controller) {
		c.usage = u
	}
}

// WithProber shares a kind cache, normally the engine's.
func WithProber(p *surface.Prober) Option {
	return func(c *Controller) {
		if p != nil {
			c.prober = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithQueueSize sets the signal queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// New creates a Controller.
func New(matcher Matcher, replacer Replacer, locks *lock.Table, opts ...Option) *Controller {
	c := &Controller{
		matcher:   matcher,
		replacer:  replacer,
		locks:     locks,
		prober:    surface.NewProber(),
		resolver:  command.NewResolver(),
		prompter:  form.Cancel,
		logger:    logging.Nop(),
		now:       time.Now,
		queueSize: 64,
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		buffers:   make(map[string][]rune),
		finished:  make(map[string]time.Time),
		fired:     make(map[string]time.Time),
	}
	def := DefaultConfig()
	c.cfg.Store(&def)
	for _, opt := range opts {
		opt(c)
	}
	c.queue = make(chan Event, c.queueSize)
	c.logger = c.logger.WithComponent("expand")
	return c
}

// Config returns the current policy.
func (c *Controller) Config() Config {
	return *c.cfg.Load()
}

// SetConfig replaces the policy.
func (c *Controller) SetConfig(cfg Config) {
	c.cfg.Store(&cfg)
}

// HandleInput queues an input signal for el.
func (c *Controller) HandleInput(el surface.Element) bool {
	return c.enqueue(Event{Type: surface.SignalInput, Element: el})
}

// HandleKeyDown queues a keydown signal for el.
func (c *Controller) HandleKeyDown(el surface.Element, ev key.Event) bool {
	return c.enqueue(Event{Type: surface.SignalKeyDown, Element: el, Key: ev})
}

// HandleRemoved queues a removal signal for el.
func (c *Controller) HandleRemoved(el surface.Element) bool {
	return c.enqueue(Event{Type: surface.SignalRemoved, Element: el})
}

// enqueue adds ev to the queue without blocking the host. It reports
// false when the controller is closed or the queue is full.
func (c *Controller) enqueue(ev Event) bool {
	if ev.Element == nil {
		return false
	}
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.queue <- ev:
		return true
	default:
		metricDropped.Inc()
		c.logger.Warn("queue full, dropping %s signal for %s", ev.Type, ev.Element.ID())
		return false
	}
}

// Start runs the worker loop until ctx is done or Close is called. Queued
// signals are processed in order, one at a time.
func (c *Controller) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			c.drain(ctx)
			return nil
		case ev := <-c.queue:
			c.Process(ctx, ev)
		}
	}
}

// drain processes whatever was queued before Close.
func (c *Controller) drain(ctx context.Context) {
	for {
		select {
		case ev := <-c.queue:
			c.Process(ctx, ev)
		default:
			return
		}
	}
}

// Run feeds the signals of host into the controller until the host closes
// its channel or ctx is done. It does not start the worker.
func (c *Controller) Run(ctx context.Context, host surface.Host) error {
	signals := host.Signals()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			c.enqueue(sig)
		}
	}
}

// Close stops accepting signals. A running worker finishes the queued
// ones and returns.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Wait blocks until the worker started by Start has returned and every
// usage update has finished.
func (c *Controller) Wait() {
	if c.running.Load() {
		<-c.done
	}
	c.usageWG.Wait()
}

// Process handles one signal synchronously.
func (c *Controller) Process(ctx context.Context, ev Event) {
	el := ev.Element
	if el == nil {
		return
	}
	if ev.Type == surface.SignalRemoved {
		c.forget(el.ID())
		return
	}

	cfg := c.Config()
	if !cfg.Enabled {
		return
	}
	id := el.ID()
	if c.suppressed(id, cfg) {
		return
	}

	kind := c.prober.Probe(ctx, el)
	var text string
	switch ev.Type {
	case surface.SignalInput:
		if kind.IsRich() {
			return
		}
		var err error
		text, err = surface.TextBeforeCaret(ctx, el)
		if err != nil {
			if errors.Is(err, surface.ErrDetached) {
				c.forget(id)
			}
			return
		}
		text = tail(text, cfg.BufferLimit)
	case surface.SignalKeyDown:
		if !kind.IsRich() {
			return
		}
		var changed bool
		text, changed = c.feed(id, ev.Key, cfg.BufferLimit)
		if !changed {
			return
		}
	default:
		return
	}

	m, ok := c.match(text)
	if !ok {
		return
	}
	if c.duplicate(id, m.Snippet.ID, cfg) {
		c.logger.Debug("duplicate %q on %s dropped", m.Typed, id)
		return
	}
	c.expand(ctx, el, kind, m, cfg)
}

// suppressed reports whether an expansion finished on id within the
// suppression window.
func (c *Controller) suppressed(id string, cfg Config) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.finished[id]
	return ok && c.now().Sub(at) < cfg.SuppressionWindow
}

// duplicate records a firing of snippetID on id and reports whether the
// same pair fired within the dedupe window.
func (c *Controller) duplicate(id, snippetID string, cfg Config) bool {
	k := id + "\x00" + snippetID
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if at, ok := c.fired[k]; ok && now.Sub(at) < cfg.DedupeWindow {
		return true
	}
	c.fired[k] = now
	if len(c.fired) > 256 {
		for key, at := range c.fired {
			if now.Sub(at) >= cfg.DedupeWindow {
				delete(c.fired, key)
			}
		}
	}
	return false
}

// finish records the end of an expansion on id and clears its buffer.
func (c *Controller) finish(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[id] = c.now()
	delete(c.buffers, id)
}

// forget drops all state for an element that left its document.
func (c *Controller) forget(id string) {
	c.mu.Lock()
	delete(c.buffers, id)
	delete(c.finished, id)
	for k := range c.fired {
		if len(k) > len(id) && k[:len(id)] == id && k[len(id)] == 0 {
			delete(c.fired, k)
		}
	}
	c.mu.Unlock()
	c.locks.Forget(id)
	c.prober.Forget(id)
}

// Buffer returns the keydown buffer of an element.
func (c *Controller) Buffer(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buffers[id])
}

// feed applies a keydown to the element's buffer. It reports the new
// buffer and whether a character was added, which is the only change
// that can complete a trigger.
func (c *Controller) feed(id string, ev key.Event, limit int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := c.buffers[id]
	added := false
	switch {
	case ev.IsChar():
		r := ev.Rune
		if ev.Modifiers.Has(key.ModShift) {
			r = unicode.ToUpper(r)
		}
		buf = append(buf, r)
		added = true
	case ev.Key == key.KeyEnter && ev.Modifiers == key.ModNone:
		buf = append(buf, '\n')
		added = true
	case ev.Key == key.KeyTab && ev.Modifiers == key.ModNone:
		buf = append(buf, '\t')
		added = true
	case ev.Key == key.KeyBackspace:
		if len(buf) > 0 {
			buf = buf[:len(buf)-1]
		}
	case ev.Key.IsNavigation(), ev.Key == key.KeyEscape, ev.Key == key.KeyDelete:
		buf = nil
	case ev.Modifiers.Has(key.ModCtrl) || ev.Modifiers.Has(key.ModMeta):
		// Shortcuts such as paste or undo move text the buffer cannot see.
		buf = nil
	}
	if limit > 0 && len(buf) > limit {
		buf = append([]rune(nil), buf[len(buf)-limit:]...)
	}
	c.buffers[id] = buf
	return string(buf), added
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
