// Package trigger provides the trigger index: a rune trie mapping enabled
// triggers to snippets, queried by the longest trigger ending at the caret.
package trigger

import (
	"sync"
	"unicode"

	"github.com/dshills/textstorm/internal/snippet"
)

// Match is the result of a suffix lookup.
type Match struct {
	// Snippet is the snippet whose trigger matched.
	Snippet *snippet.Snippet
	// Length is the number of trailing runes of the buffer that matched.
	Length int
}

// node is a trie node keyed by rune.
type node struct {
	children map[rune]*node
	snippet  *snippet.Snippet
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Index is a thread-safe trigger trie.
//
// Case-sensitive snippets live in an exact trie and case-insensitive ones in
// a folded trie. An index built case-insensitive folds every snippet.
type Index struct {
	mu            sync.RWMutex
	exact         *node
	folded        *node
	caseSensitive bool
	size          int
}

// Option configures an Index.
type Option func(*Index)

// WithCaseSensitive sets the index-level case policy. When false, every
// trigger is folded regardless of the snippet's own flag.
func WithCaseSensitive(enabled bool) Option {
	return func(ix *Index) {
		ix.caseSensitive = enabled
	}
}

// New creates an empty index. The default policy is case-sensitive, which
// lets each snippet's CaseSensitive flag decide.
func New(opts ...Option) *Index {
	ix := &Index{
		exact:         newNode(),
		folded:        newNode(),
		caseSensitive: true,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Build creates an index populated from snippets.
func Build(snippets map[string]*snippet.Snippet, opts ...Option) *Index {
	ix := New(opts...)
	ix.Rebuild(snippets)
	return ix
}

// fold maps r to its canonical case.
func fold(r rune) rune {
	return unicode.ToLower(r)
}

// foldsFor reports whether s is indexed folded.
func (ix *Index) foldsFor(s *snippet.Snippet) bool {
	return !ix.caseSensitive || !s.CaseSensitive
}

// Insert adds an enabled snippet. Disabled snippets and empty triggers are
// ignored. A later insert with the same trigger identity replaces the
// earlier one.
func (ix *Index) Insert(s *snippet.Snippet) {
	if s == nil || !s.Enabled || s.Trigger == "" {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(s)
}

func (ix *Index) insertLocked(s *snippet.Snippet) {
	folds := ix.foldsFor(s)
	n := ix.exact
	if folds {
		n = ix.folded
	}
	for _, r := range s.Trigger {
		if folds {
			r = fold(r)
		}
		child := n.children[r]
		if child == nil {
			child = newNode()
			n.children[r] = child
		}
		n = child
	}
	if n.snippet == nil {
		ix.size++
	}
	n.snippet = s
}

// Rebuild discards the trie and reinserts every enabled snippet.
func (ix *Index) Rebuild(snippets map[string]*snippet.Snippet) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.exact = newNode()
	ix.folded = newNode()
	ix.size = 0
	for _, s := range snippets {
		if s == nil || !s.Enabled || s.Trigger == "" {
			continue
		}
		ix.insertLocked(s)
	}
}

// Search returns the snippet whose trigger equals text exactly, or nil.
func (ix *Index) Search(text string) *snippet.Snippet {
	if text == "" {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	runes := []rune(text)
	if s := lookup(ix.exact, runes, false); s != nil {
		return s
	}
	return lookup(ix.folded, runes, true)
}

// FindMatch returns the longest suffix of buffer that is an indexed trigger.
// Every suffix is tried from longest to shortest, so when "br" and "brb"
// are both indexed a buffer ending in "brb" matches "brb".
func (ix *Index) FindMatch(buffer string) (Match, bool) {
	if buffer == "" {
		return Match{}, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.size == 0 {
		return Match{}, false
	}

	runes := []rune(buffer)
	for start := 0; start < len(runes); start++ {
		suffix := runes[start:]
		if s := lookup(ix.exact, suffix, false); s != nil {
			return Match{Snippet: s, Length: len(suffix)}, true
		}
		if s := lookup(ix.folded, suffix, true); s != nil {
			return Match{Snippet: s, Length: len(suffix)}, true
		}
	}
	return Match{}, false
}

func lookup(root *node, runes []rune, folded bool) *snippet.Snippet {
	n := root
	for _, r := range runes {
		if folded {
			r = fold(r)
		}
		n = n.children[r]
		if n == nil {
			return nil
		}
	}
	return n.snippet
}

// Size returns the number of indexed triggers.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}

// CaseSensitive reports the index-level case policy.
func (ix *Index) CaseSensitive() bool {
	return ix.caseSensitive
}

// NodeCount returns the total number of trie nodes, roots included.
func (ix *Index) NodeCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return countNodes(ix.exact) + countNodes(ix.folded)
}

func countNodes(n *node) int {
	if n == nil {
		return 0
	}
	count := 1
	for _, child := range n.children {
		count += countNodes(child)
	}
	return count
}
