package llm

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/textstorm/internal/logging"
)

// DefaultTimeout bounds a single completion.
const DefaultTimeout = 30 * time.Second

// Registry maps provider names to providers and implements Completer.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	timeout   time.Duration
	logger    *logging.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		timeout:   DefaultTimeout,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("llm")
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.providers[strings.ToLower(p.Name())] = p
	r.mu.Unlock()
}

// SetTimeout changes the per-call timeout.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Complete implements Completer.
func (r *Registry) Complete(ctx context.Context, provider string, req Request) (Response, error) {
	p, ok := r.Get(provider)
	if !ok {
		return Response{}, ErrNoProvider(provider)
	}

	r.mu.RLock()
	timeout := r.timeout
	r.mu.RUnlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = ErrEmptyResponse(p.Name())
	}
	if err != nil {
		r.logger.Warn("completion via %s failed after %s: %v", p.Name(), time.Since(start).Round(time.Millisecond), err)
		return Response{}, err
	}
	r.logger.Debug("completion via %s took %s", p.Name(), time.Since(start).Round(time.Millisecond))
	return resp, nil
}
