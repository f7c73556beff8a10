package trigger

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/textstorm/internal/snippet"
)

func snip(trigger string, enabled, caseSensitive bool) *snippet.Snippet {
	s := snippet.New(trigger, "x:"+trigger)
	s.Enabled = enabled
	s.CaseSensitive = caseSensitive
	return s
}

func set(snips ...*snippet.Snippet) map[string]*snippet.Snippet {
	m := make(map[string]*snippet.Snippet, len(snips))
	for _, s := range snips {
		m[s.ID] = s
	}
	return m
}

func TestFindMatch_LongestWins(t *testing.T) {
	br := snip("br", true, false)
	brb := snip("brb", true, false)
	ix := Build(set(br, brb))

	m, ok := ix.FindMatch("say brb")
	require.True(t, ok)
	assert.Same(t, brb, m.Snippet)
	assert.Equal(t, 3, m.Length)

	m, ok = ix.FindMatch("say br")
	require.True(t, ok)
	assert.Same(t, br, m.Snippet)
	assert.Equal(t, 2, m.Length)
}

func TestFindMatch_AnchoredAtEnd(t *testing.T) {
	ix := Build(set(snip("brb", true, false)))

	_, ok := ix.FindMatch("brb later")
	assert.False(t, ok)

	m, ok := ix.FindMatch("hello brb")
	require.True(t, ok)
	assert.Equal(t, 3, m.Length)
}

func TestFindMatch_LengthInRunes(t *testing.T) {
	ix := Build(set(snip("→→", true, true)))

	m, ok := ix.FindMatch("go →→")
	require.True(t, ok)
	assert.Equal(t, 2, m.Length)
}

func TestDisabledNeverMatches(t *testing.T) {
	off := snip("brb", false, false)
	on := snip("rb", true, false)
	ix := Build(set(off, on))

	m, ok := ix.FindMatch("brb")
	require.True(t, ok)
	assert.Same(t, on, m.Snippet, "disabled longer trigger must not shadow")
	assert.Nil(t, ix.Search("brb"))

	ix.Insert(snip("zzz", false, false))
	_, ok = ix.FindMatch("zzz")
	assert.False(t, ok)
}

func TestSearch_CaseFoldIdempotence(t *testing.T) {
	for _, trig := range []string{"brb", "BRB", "BrB", "sig@Work"} {
		s := snip(trig, true, true)
		ix := Build(set(s), WithCaseSensitive(false))

		assert.Same(t, s, ix.Search(trig))
		assert.Same(t, s, ix.Search(strings.ToUpper(trig)))
		assert.Same(t, s, ix.Search(strings.ToLower(trig)))
	}
}

func TestPerSnippetCaseSensitivity(t *testing.T) {
	exact := snip("Addr", true, true)
	loose := snip("sig", true, false)
	ix := Build(set(exact, loose))

	assert.Same(t, exact, ix.Search("Addr"))
	assert.Nil(t, ix.Search("addr"))
	assert.Same(t, loose, ix.Search("SIG"))

	_, ok := ix.FindMatch("my addr")
	assert.False(t, ok)
	m, ok := ix.FindMatch("my Addr")
	require.True(t, ok)
	assert.Same(t, exact, m.Snippet)
}

func TestInsert_LastWriteWins(t *testing.T) {
	first := snip("brb", true, false)
	second := snip("BRB", true, false)
	ix := New()
	ix.Insert(first)
	ix.Insert(second)

	assert.Same(t, second, ix.Search("brb"))
	assert.Equal(t, 1, ix.Size())
}

func TestRebuild_DiscardsOldTriggers(t *testing.T) {
	ix := Build(set(snip("old", true, false)))
	require.NotNil(t, ix.Search("old"))

	ix.Rebuild(set(snip("new", true, false)))
	assert.Nil(t, ix.Search("old"))
	assert.NotNil(t, ix.Search("new"))
	assert.Equal(t, 1, ix.Size())
}

func TestEmptyInputs(t *testing.T) {
	ix := New()
	_, ok := ix.FindMatch("")
	assert.False(t, ok)
	_, ok = ix.FindMatch("anything")
	assert.False(t, ok)
	assert.Nil(t, ix.Search(""))
	ix.Insert(nil)
	assert.Equal(t, 2, ix.NodeCount())
}

func TestAtomic_SwapIsWholesale(t *testing.T) {
	a := NewAtomic()
	first := snip("one", true, false)
	a.Rebuild(set(first))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ix := a.Load()
			// A loaded index always holds exactly one trigger.
			if ix.Size() != 1 {
				t.Errorf("observed partial index of size %d", ix.Size())
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		a.Rebuild(set(snip("two", true, false)))
		a.Rebuild(set(first))
	}
	close(stop)
	wg.Wait()

	m, ok := a.FindMatch("say one")
	require.True(t, ok)
	assert.Same(t, first, m.Snippet)
}
