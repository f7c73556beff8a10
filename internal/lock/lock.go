// Package lock provides per-element mutual exclusion for expansions.
//
// Entries are keyed by an element identity token rather than by the element
// value, so the table never keeps a host element alive. Every entry expires
// after its cooldown; Sweep and Forget drop entries so the table stays
// bounded by the number of recently expanded elements.
package lock

import (
	"sync"
	"time"
)

// Default cooldowns.
const (
	DefaultCooldown        = 500 * time.Millisecond
	DefaultSettle          = 100 * time.Millisecond
	DefaultFailureCooldown = 5 * time.Second
)

type entry struct {
	locked   bool
	unlockAt time.Time
	failed   bool
}

// active reports whether the entry still blocks a new lock at now.
func (e *entry) active(now time.Time) bool {
	return e.locked && now.Before(e.unlockAt)
}

// Table is the element lock table. The zero value is not usable; use New.
type Table struct {
	mu              sync.Mutex
	entries         map[string]*entry
	now             func() time.Time
	settle          time.Duration
	failureCooldown time.Duration
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		if now != nil {
			t.now = now
		}
	}
}

// WithSettle sets how long an unlocked element stays blocked.
func WithSettle(d time.Duration) Option {
	return func(t *Table) {
		if d >= 0 {
			t.settle = d
		}
	}
}

// WithFailureCooldown sets the cooldown applied by MarkFailed.
func WithFailureCooldown(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.failureCooldown = d
		}
	}
}

// New creates an empty lock table.
func New(opts ...Option) *Table {
	t := &Table{
		entries:         make(map[string]*entry),
		now:             time.Now,
		settle:          DefaultSettle,
		failureCooldown: DefaultFailureCooldown,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lock acquires the lock for id. It returns false, changing nothing, when
// the element is already locked. A held lock releases itself after cooldown.
func (t *Table) Lock(id string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if e, ok := t.entries[id]; ok && e.active(now) {
		return false
	}
	t.entries[id] = &entry{locked: true, unlockAt: now.Add(cooldown)}
	return true
}

// IsLocked reports whether id holds an unexpired lock.
func (t *Table) IsLocked(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	return ok && e.active(t.now())
}

// Failed reports whether id is in a failure cooldown.
func (t *Table) Failed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	return ok && e.failed && e.active(t.now())
}

// Unlock releases id after the settle window, absorbing trailing side
// effects of the mutation that could read as new keystrokes.
func (t *Table) Unlock(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return
	}
	if e.failed && e.active(t.now()) {
		return
	}
	if t.settle <= 0 {
		delete(t.entries, id)
		return
	}
	e.locked = true
	e.unlockAt = t.now().Add(t.settle)
}

// MarkFailed blocks id for the failure cooldown.
func (t *Table) MarkFailed(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[id] = &entry{
		locked:   true,
		failed:   true,
		unlockAt: t.now().Add(t.failureCooldown),
	}
}

// Forget drops the entry for id, typically once the element has been
// removed from its document.
func (t *Table) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Sweep drops every expired entry and returns how many were removed.
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for id, e := range t.entries {
		if !e.active(now) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries, expired ones included.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
