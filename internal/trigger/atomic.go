package trigger

import (
	"sync/atomic"

	"github.com/dshills/textstorm/internal/snippet"
)

// Atomic holds the current index. Rebuilds construct a new index and swap
// it in, so a lookup sees either the old or the new trie, never a partial one.
type Atomic struct {
	p atomic.Pointer[Index]
}

// NewAtomic creates a holder with an empty index.
func NewAtomic(opts ...Option) *Atomic {
	a := &Atomic{}
	a.p.Store(New(opts...))
	return a
}

// Load returns the current index.
func (a *Atomic) Load() *Index {
	return a.p.Load()
}

// Swap installs ix and returns the previous index.
func (a *Atomic) Swap(ix *Index) *Index {
	return a.p.Swap(ix)
}

// Rebuild builds a fresh index from snippets and swaps it in.
func (a *Atomic) Rebuild(snippets map[string]*snippet.Snippet, opts ...Option) *Index {
	ix := Build(snippets, opts...)
	a.p.Store(ix)
	return ix
}

// FindMatch queries the current index.
func (a *Atomic) FindMatch(buffer string) (Match, bool) {
	return a.Load().FindMatch(buffer)
}
