// Package app wires the textstorm runtime: the snippet store, the live
// trigger index, the element locks, the replacement engine and one
// expansion controller per attached host.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/textstorm/internal/command"
	"github.com/dshills/textstorm/internal/config"
	"github.com/dshills/textstorm/internal/expand"
	"github.com/dshills/textstorm/internal/llm"
	"github.com/dshills/textstorm/internal/lock"
	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/metrics"
	"github.com/dshills/textstorm/internal/notify"
	"github.com/dshills/textstorm/internal/replace"
	"github.com/dshills/textstorm/internal/script"
	"github.com/dshills/textstorm/internal/snippet"
	"github.com/dshills/textstorm/internal/store"
	"github.com/dshills/textstorm/internal/surface"
	"github.com/dshills/textstorm/internal/trigger"
)

// reloadTimeout bounds one index rebuild triggered by a store change.
const reloadTimeout = 10 * time.Second

// Options configures a Runtime.
type Options struct {
	// Settings supplies the settings snapshot. Required.
	Settings *config.Manager

	// Store overrides the store the settings select.
	Store store.Store

	// Completer overrides the LLM registry built from the settings.
	Completer llm.Completer

	// Sleep overrides the engine's waits, for tests.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *logging.Logger
	Clock  func() time.Time
}

// Runtime is the process-wide expansion runtime.
type Runtime struct {
	settings  *config.Manager
	store     store.Store
	ownStore  bool
	index     *trigger.Atomic
	snippets  atomic.Pointer[snippet.Set]
	locks     *lock.Table
	engine    *replace.Engine
	resolver  *command.Resolver
	scripts   *script.State
	registry  *llm.Registry
	completer llm.Completer
	logger    *logging.Logger
	now       func() time.Time

	reloadMu sync.Mutex
	subs     []*notify.Subscription
	running  atomic.Bool

	mu          sync.Mutex
	controllers map[*expand.Controller]string
	closed      bool
}

// New builds a runtime and loads the initial index.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Settings == nil {
		opts.Settings = config.NewStaticManager(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	s := opts.Settings.Settings()

	r := &Runtime{
		settings:    opts.Settings,
		store:       opts.Store,
		index:       trigger.NewAtomic(trigger.WithCaseSensitive(s.CaseSensitive)),
		logger:      logger.WithComponent("runtime"),
		now:         opts.Clock,
		controllers: make(map[*expand.Controller]string),
	}
	empty := make(snippet.Set)
	r.snippets.Store(&empty)

	if r.store == nil {
		st, err := OpenStore(s, logger)
		if err != nil {
			return nil, &InitError{Component: "store", Err: err}
		}
		r.store = st
		r.ownStore = true
	}

	r.locks = lock.New(lockOptions(s, opts.Clock)...)

	engineOpts := []replace.Option{
		replace.WithConfig(engineConfig(s)),
		replace.WithLogger(logger),
	}
	if opts.Sleep != nil {
		engineOpts = append(engineOpts, replace.WithSleep(opts.Sleep))
	}
	r.engine = replace.New(engineOpts...)

	r.completer = opts.Completer
	if r.completer == nil {
		r.registry = newRegistry(s, logger)
		r.completer = r.registry
	}

	scriptOpts := []script.StateOption{}
	resolverOpts := []command.Option{
		command.WithLookup(r.lookup),
		command.WithLogger(logger),
	}
	if opts.Clock != nil {
		scriptOpts = append(scriptOpts, script.WithClock(opts.Clock))
		resolverOpts = append(resolverOpts, command.WithClock(opts.Clock))
	}
	r.scripts = script.NewState(scriptOpts...)
	r.resolver = command.NewResolver(append(resolverOpts, command.WithEvaluator(r.scripts))...)

	if err := r.Reload(ctx); err != nil {
		r.Close()
		return nil, &InitError{Component: "index", Err: err}
	}

	r.subs = append(r.subs,
		r.store.Subscribe(r.onStoreChange),
		r.settings.Subscribe(r.onSettingsChange),
	)
	return r, nil
}

// Store returns the snippet store.
func (r *Runtime) Store() store.Store { return r.store }

// Index returns the live trigger index.
func (r *Runtime) Index() *trigger.Atomic { return r.index }

// Locks returns the element lock table.
func (r *Runtime) Locks() *lock.Table { return r.locks }

// Engine returns the replacement engine.
func (r *Runtime) Engine() *replace.Engine { return r.engine }

// Settings returns the current settings snapshot.
func (r *Runtime) Settings() *config.Settings { return r.settings.Settings() }

// Snippets returns the snapshot the index was last built from.
func (r *Runtime) Snippets() snippet.Set { return *r.snippets.Load() }

func (r *Runtime) lookup(trig string) *snippet.Snippet {
	return r.Snippets().ByTrigger(trig)
}

// Reload rebuilds the trigger index from the store and swaps it in.
// Matching in flight keeps using the index it loaded.
func (r *Runtime) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	set, err := r.store.Snippets(ctx)
	if err != nil {
		return err
	}
	s := r.settings.Settings()
	ix := r.index.Rebuild(set, trigger.WithCaseSensitive(s.CaseSensitive))
	r.snippets.Store(&set)
	metrics.SetSnippets(ix.Size())
	r.logger.Debug("index rebuilt with %d triggers", ix.Size())
	return nil
}

// NewController creates a controller for host, configured from the current
// settings and kept in sync with them until Detach.
func (r *Runtime) NewController(host string, opts ...expand.Option) (*expand.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	s := r.settings.Settings()
	base := []expand.Option{
		expand.WithConfig(controllerConfig(s, host)),
		expand.WithResolver(r.resolver),
		expand.WithCompleter(r.completer),
		expand.WithUsage(r.store),
		expand.WithProber(r.engine.Prober()),
		expand.WithLogger(r.logger.WithField("host", host)),
		expand.WithQueueSize(s.Expand.QueueSize),
	}
	if r.now != nil {
		base = append(base, expand.WithClock(r.now))
	}
	c := expand.New(r.index, r.engine, r.locks, append(base, opts...)...)
	r.controllers[c] = host
	metrics.HostAttached(1)
	return c, nil
}

// Detach stops tracking c. It does not close it.
func (r *Runtime) Detach(c *expand.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.controllers[c]; ok {
		delete(r.controllers, c)
		metrics.HostAttached(-1)
	}
}

// Attach runs a controller for host until the host closes its signal
// channel or ctx is done.
func (r *Runtime) Attach(ctx context.Context, host surface.Host, opts ...expand.Option) error {
	c, err := r.NewController(host.Name(), opts...)
	if err != nil {
		return err
	}
	defer r.Detach(c)
	r.logger.Info("attached to %s", host.Name())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Start(gctx)
	})
	g.Go(func() error {
		defer c.Close()
		return c.Run(gctx, host)
	})
	err = g.Wait()
	c.Wait()
	r.logger.Info("detached from %s", host.Name())
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Controllers returns the number of attached controllers.
func (r *Runtime) Controllers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Close releases the store subscriptions, the script state and, when the
// runtime opened it, the store.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	var err error
	if r.scripts != nil {
		err = r.scripts.Close()
	}
	if r.ownStore {
		if cerr := r.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
