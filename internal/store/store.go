// Package store persists snippets and publishes changes to them.
//
// Three backends share the Store interface: Memory for tests and
// one-shot runs, SQLite for the default on-disk database, and File for a
// hand-edited YAML file that is reloaded when it changes on disk.
// Every mutation is published on a notify.Notifier under the
// notify.PathSnippets root so that the trigger index can be rebuilt.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/textstorm/internal/notify"
	"github.com/dshills/textstorm/internal/snippet"
)

// Store errors.
var (
	// ErrNotFound indicates no snippet has the requested ID.
	ErrNotFound = errors.New("snippet not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")

	// ErrDuplicateTrigger indicates another enabled snippet already uses the trigger.
	ErrDuplicateTrigger = errors.New("duplicate trigger")
)

// Store is a snippet repository.
type Store interface {
	// Snippets returns a copy of every snippet keyed by ID.
	Snippets(ctx context.Context) (snippet.Set, error)

	// Get returns a copy of one snippet.
	Get(ctx context.Context, id string) (*snippet.Snippet, error)

	// Put creates or replaces a snippet. An empty ID is assigned.
	Put(ctx context.Context, s *snippet.Snippet) error

	// Delete removes a snippet.
	Delete(ctx context.Context, id string) error

	// IncrementUsage bumps the usage counter of a snippet.
	IncrementUsage(ctx context.Context, id string) error

	// Subscribe registers an observer for snippet changes.
	Subscribe(observer notify.Observer) *notify.Subscription

	// Close releases resources.
	Close() error
}

// OperationError records the store operation and snippet that failed.
type OperationError struct {
	Op     string // Operation name (e.g., "put", "delete")
	Target string // Snippet ID or trigger
	Err    error  // Underlying error
}

func newOpError(op, target string, err error) *OperationError {
	return &OperationError{Op: op, Target: target, Err: err}
}

func (e *OperationError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("store: %s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// prepare validates s and fills in its ID and timestamps. existing is the
// current set, used to reject duplicate enabled triggers.
func prepare(s *snippet.Snippet, existing snippet.Set, now time.Time) error {
	if s == nil {
		return newOpError("put", "", errors.New("nil snippet"))
	}
	if s.TriggerMode == "" {
		s.TriggerMode = snippet.ModeWord
	}
	if err := s.Validate(); err != nil {
		return newOpError("put", s.Trigger, err)
	}
	if s.Enabled {
		for id, other := range existing {
			if id != s.ID && other.Enabled && other.Trigger == s.Trigger {
				return newOpError("put", s.Trigger, ErrDuplicateTrigger)
			}
		}
	}
	if s.ID == "" {
		s.ID = snippet.NewID()
	}
	if prev, ok := existing[s.ID]; ok && s.CreatedAt.IsZero() {
		s.CreatedAt = prev.CreatedAt
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return nil
}

func snippetPath(id string) string {
	return notify.Join(notify.PathSnippets, id)
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
