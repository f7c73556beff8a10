package store

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/textstorm/internal/notify"
	"github.com/dshills/textstorm/internal/snippet"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	snippets snippet.Set
	notifier *notify.Notifier
	now      func() time.Time
	closed   bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryClock sets the clock used for timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates a Memory store seeded with the given snippets.
func NewMemory(seed []*snippet.Snippet, opts ...MemoryOption) (*Memory, error) {
	m := &Memory{
		snippets: make(snippet.Set),
		notifier: notify.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range seed {
		c := s.Clone()
		if err := prepare(c, m.snippets, m.now()); err != nil {
			return nil, err
		}
		m.snippets[c.ID] = c
	}
	return m, nil
}

// Snippets implements Store.
func (m *Memory) Snippets(ctx context.Context) (snippet.Set, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.snippets.Clone(), nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, id string) (*snippet.Snippet, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	s, ok := m.snippets[id]
	if !ok {
		return nil, newOpError("get", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, s *snippet.Snippet) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := prepare(s, m.snippets, m.now()); err != nil {
		m.mu.Unlock()
		return err
	}
	m.snippets[s.ID] = s.Clone()
	m.mu.Unlock()

	m.notifier.NotifySet(snippetPath(s.ID), s.Clone(), "memory")
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.snippets[id]; !ok {
		m.mu.Unlock()
		return newOpError("delete", id, ErrNotFound)
	}
	delete(m.snippets, id)
	m.mu.Unlock()

	m.notifier.NotifyDelete(snippetPath(id), "memory")
	return nil
}

// IncrementUsage implements Store. Usage changes are not published.
func (m *Memory) IncrementUsage(ctx context.Context, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	s, ok := m.snippets[id]
	if !ok {
		return newOpError("increment usage", id, ErrNotFound)
	}
	s.UsageCount++
	return nil
}

// Subscribe implements Store.
func (m *Memory) Subscribe(observer notify.Observer) *notify.Subscription {
	return m.notifier.SubscribePath(notify.PathSnippets, observer)
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.notifier.Close()
	return nil
}
