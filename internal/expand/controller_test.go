package expand

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/textstorm/internal/form"
	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/llm"
	"github.com/dshills/textstorm/internal/lock"
	"github.com/dshills/textstorm/internal/replace"
	"github.com/dshills/textstorm/internal/snippet"
	"github.com/dshills/textstorm/internal/surface"
	"github.com/dshills/textstorm/internal/surface/memdom"
	"github.com/dshills/textstorm/internal/trigger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type usageRecorder struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (u *usageRecorder) IncrementUsage(_ context.Context, id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids = append(u.ids, id)
	return u.err
}

func (u *usageRecorder) calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.ids...)
}

// countingReplacer reports success without touching the element.
type countingReplacer struct {
	mu    sync.Mutex
	calls []string
	ok    bool
}

func (r *countingReplacer) Replace(_ context.Context, _ surface.Element, trig, expansion string, _ replace.Options) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, trig+"->"+expansion)
	return r.ok
}

func (r *countingReplacer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type harness struct {
	doc      *memdom.Document
	index    *trigger.Atomic
	locks    *lock.Table
	clock    *fakeClock
	usage    *usageRecorder
	ctrl     *Controller
	snippets snippet.Set
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newHarness(t *testing.T, snippets []*snippet.Snippet, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		doc:      memdom.NewDocument("example.com"),
		index:    trigger.NewAtomic(),
		clock:    newFakeClock(),
		usage:    &usageRecorder{},
		snippets: make(snippet.Set),
	}
	for _, s := range snippets {
		h.snippets[s.ID] = s
	}
	h.index.Rebuild(h.snippets)
	h.locks = lock.New(lock.WithClock(h.clock.Now))

	engine := replace.New(replace.WithSleep(noSleep))
	base := []Option{
		WithClock(h.clock.Now),
		WithUsage(h.usage),
		WithProber(engine.Prober()),
	}
	h.ctrl = New(h.index, engine, h.locks, append(base, opts...)...)
	return h
}

// pump processes every signal the document has emitted so far.
func (h *harness) pump(ctx context.Context) {
	for {
		select {
		case sig := <-h.doc.Signals():
			h.ctrl.Process(ctx, sig)
		default:
			return
		}
	}
}

func TestController_ScenarioA(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.Textarea("hello ")
	h.doc.Type(el, "brb")
	h.pump(context.Background())
	h.ctrl.Wait()

	assert.Equal(t, "hello be right back", el.Value())
	assert.Equal(t, len([]rune("hello be right back")), el.CaretPos())
	assert.Len(t, h.usage.callsAfterWait(h.ctrl), 1)
}

func TestController_ScenarioB(t *testing.T) {
	s := snippet.New("brb", "be right back")
	s.TriggerMode = snippet.ModeWordBoth
	h := newHarness(t, []*snippet.Snippet{s})

	el := h.doc.Input("")
	h.doc.Type(el, "xbrb")
	h.pump(context.Background())
	assert.Equal(t, "xbrb", el.Value())
	typed := el.Mutations()

	h.doc.Type(el, " ")
	h.pump(context.Background())
	assert.Equal(t, "xbrb ", el.Value(), "no leading boundary")
	assert.Equal(t, typed+1, el.Mutations())
}

func TestController_WordBothFiresOnDelimiter(t *testing.T) {
	s := snippet.New("brb", "be right back")
	s.TriggerMode = snippet.ModeWordBoth
	h := newHarness(t, []*snippet.Snippet{s})

	el := h.doc.Textarea("hello ")
	h.doc.Type(el, "brb")
	h.pump(context.Background())
	assert.Equal(t, "hello brb", el.Value(), "nothing typed after the trigger yet")

	h.doc.Type(el, ",")
	h.pump(context.Background())
	assert.Equal(t, "hello be right back,", el.Value())
	assert.Equal(t, len([]rune("hello be right back,")), el.CaretPos())
}

func TestController_ScenarioC(t *testing.T) {
	br := snippet.New("br", "best regards")
	brb := snippet.New("brb", "be right back")
	h := newHarness(t, []*snippet.Snippet{br, brb})

	el := h.doc.Textarea("say brb")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "say be right back", el.Value())
	assert.Equal(t, []string{brb.ID}, h.usage.callsAfterWait(h.ctrl))
}

func (u *usageRecorder) callsAfterWait(c *Controller) []string {
	c.Wait()
	return u.calls()
}

func TestController_NoMatchLeavesElement(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.Textarea("hello br")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "hello br", el.Value())
	assert.Zero(t, el.Mutations())
}

func TestController_LockContended(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.Textarea("hello brb")
	require.True(t, h.locks.Lock(el.ID(), time.Second))

	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "hello brb", el.Value())
	assert.Zero(t, el.Mutations())
	assert.Empty(t, h.usage.callsAfterWait(h.ctrl))
}

func TestController_DedupeAndSuppression(t *testing.T) {
	s := snippet.New("brb", "be right back")
	rep := &countingReplacer{ok: true}
	h := newHarness(t, []*snippet.Snippet{s})
	cfg := DefaultConfig()
	cfg.SuppressionWindow = 0
	h.ctrl = New(h.index, rep, h.locks, WithClock(h.clock.Now), WithConfig(cfg))

	el := h.doc.Textarea("hello brb")
	ev := Event{Type: surface.SignalInput, Element: el}
	ctx := context.Background()

	h.ctrl.Process(ctx, ev)
	h.clock.Advance(200 * time.Millisecond)
	h.ctrl.Process(ctx, ev)
	assert.Equal(t, 1, rep.count(), "same trigger on same element within the dedupe window")

	h.clock.Advance(2 * time.Second)
	h.ctrl.Process(ctx, ev)
	assert.Equal(t, 2, rep.count())

	cfg.SuppressionWindow = 300 * time.Millisecond
	cfg.DedupeWindow = 0
	h.ctrl.SetConfig(cfg)
	h.clock.Advance(2 * time.Second)
	h.ctrl.Process(ctx, ev)
	assert.Equal(t, 3, rep.count())
	h.clock.Advance(100 * time.Millisecond)
	h.ctrl.Process(ctx, ev)
	assert.Equal(t, 3, rep.count(), "suppressed right after an expansion")
}

func TestController_FailureMarksElement(t *testing.T) {
	rep := &countingReplacer{ok: false}
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	h.ctrl = New(h.index, rep, h.locks, WithClock(h.clock.Now), WithUsage(h.usage))

	el := h.doc.Textarea("hello brb")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.True(t, h.locks.Failed(el.ID()))
	assert.Empty(t, h.usage.callsAfterWait(h.ctrl))
}

func TestController_Disabled(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	cfg := DefaultConfig()
	cfg.Enabled = false
	h.ctrl.SetConfig(cfg)

	el := h.doc.Textarea("hello brb")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "hello brb", el.Value())
}

func TestController_DetachedElement(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.Textarea("hello brb")
	el.Detach()

	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Zero(t, el.Mutations())
	assert.False(t, h.locks.IsLocked(el.ID()))
}

func TestController_RemovedSignalForgetsState(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.GoogleDocs("")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalKeyDown, Element: el, Key: key.NewRuneEvent('b', key.ModNone)})
	require.Equal(t, "b", h.ctrl.Buffer(el.ID()))
	require.True(t, h.locks.Lock(el.ID(), time.Minute))

	h.doc.Remove(el)
	h.pump(context.Background())
	assert.Empty(t, h.ctrl.Buffer(el.ID()))
	assert.Zero(t, h.locks.Len())
}

func TestController_FormBranch(t *testing.T) {
	s := snippet.New("sig", "Thanks, {form:name}")
	h := newHarness(t, []*snippet.Snippet{s}, WithPrompter(form.Static{"name": "Ada"}))

	el := h.doc.Textarea("ok sig")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "ok Thanks, Ada", el.Value())
}

func TestController_FormCanceled(t *testing.T) {
	s := snippet.New("sig", "Thanks, {form:name}")
	h := newHarness(t, []*snippet.Snippet{s}, WithPrompter(form.Cancel))

	el := h.doc.Textarea("ok sig")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "ok sig", el.Value())
	assert.Zero(t, el.Mutations())
	assert.False(t, h.locks.Failed(el.ID()))
	assert.Empty(t, h.usage.callsAfterWait(h.ctrl))
}

func TestController_FormDetachedWhilePrompting(t *testing.T) {
	s := snippet.New("sig", "Thanks, {form:name}")
	var el *memdom.Element
	prompter := form.Func(func(context.Context, []form.Field) (map[string]string, error) {
		el.Detach()
		return map[string]string{"name": "Ada"}, nil
	})
	h := newHarness(t, []*snippet.Snippet{s}, WithPrompter(prompter))
	el = h.doc.Textarea("ok sig")

	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Zero(t, el.Mutations())
	assert.Zero(t, h.locks.Len())
}

type stubCompleter struct {
	resp llm.Response
	err  error
	req  llm.Request
	prov string
}

func (s *stubCompleter) Complete(_ context.Context, provider string, req llm.Request) (llm.Response, error) {
	s.prov, s.req = provider, req
	return s.resp, s.err
}

func dynamicSnippet(fallback string) *snippet.Snippet {
	s := snippet.New("tldr", "Summarize: {clipboard}")
	s.Dynamic = &snippet.Dynamic{Provider: "openai", MaxTokens: 50, Temperature: 0.2, Fallback: fallback}
	return s
}

func TestController_DynamicBranch(t *testing.T) {
	s := dynamicSnippet("")
	comp := &stubCompleter{resp: llm.Response{Text: "  short version \n"}}
	h := newHarness(t, []*snippet.Snippet{s}, WithCompleter(comp))
	h.doc.SetClipboard("long text")

	el := h.doc.Textarea("tldr")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "short version", el.Value())
	assert.Equal(t, "openai", comp.prov)
	assert.Equal(t, "Summarize: long text", comp.req.Prompt)
	assert.Equal(t, 50, comp.req.MaxTokens)
	assert.Len(t, h.usage.callsAfterWait(h.ctrl), 1)
}

func TestController_DynamicFallback(t *testing.T) {
	s := dynamicSnippet("(summary unavailable)")
	comp := &stubCompleter{err: errors.New("boom")}
	h := newHarness(t, []*snippet.Snippet{s}, WithCompleter(comp))

	el := h.doc.Textarea("tldr")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "(summary unavailable)", el.Value())
	assert.Empty(t, h.usage.callsAfterWait(h.ctrl), "fallbacks are not counted as uses")
}

func TestController_DynamicErrorMarker(t *testing.T) {
	s := dynamicSnippet("")
	comp := &stubCompleter{err: &llm.Error{Category: llm.CategoryTimeout, Provider: "openai", Err: context.DeadlineExceeded}}
	h := newHarness(t, []*snippet.Snippet{s}, WithCompleter(comp))

	el := h.doc.Textarea("tldr")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "[textstorm: openai timed out]", el.Value())
}

func TestController_DynamicWithoutCompleter(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{dynamicSnippet("")})
	el := h.doc.Textarea("tldr")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "[textstorm: unknown provider openai]", el.Value())
}

func TestController_CaseTransform(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	ctx := context.Background()

	upper := h.doc.Textarea("BRB")
	h.ctrl.Process(ctx, Event{Type: surface.SignalInput, Element: upper})
	assert.Equal(t, "BE RIGHT BACK", upper.Value())

	title := h.doc.Textarea("ok. Brb")
	h.ctrl.Process(ctx, Event{Type: surface.SignalInput, Element: title})
	assert.Equal(t, "ok. Be right back", title.Value())
}

func TestController_Cursor(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("fn", "func {cursor}() {}")})
	el := h.doc.Textarea("fn")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "func () {}", el.Value())
	assert.Equal(t, 5, el.CaretPos())
}

func TestController_RichEditorBuffer(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.GoogleDocs("")
	h.doc.Type(el, "hi brb")
	h.pump(context.Background())

	assert.Equal(t, "hi be right back", el.Value())
	assert.Empty(t, h.ctrl.Buffer(el.ID()), "buffer cleared after expansion")
}

func TestController_InputIgnoredForRichEditors(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.CKEditor("hello brb")
	h.ctrl.Process(context.Background(), Event{Type: surface.SignalInput, Element: el})
	assert.Equal(t, "hello brb", el.Value())
}

func TestController_Feed(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ctrl
	id := "el"

	for _, r := range "abc" {
		_, added := c.feed(id, key.NewRuneEvent(r, key.ModNone), 200)
		assert.True(t, added)
	}
	buf, added := c.feed(id, key.Backspace, 200)
	assert.False(t, added)
	assert.Equal(t, "ab", buf)

	buf, _ = c.feed(id, key.NewRuneEvent('x', key.ModShift), 200)
	assert.Equal(t, "abX", buf)

	buf, _ = c.feed(id, key.NewRuneEvent('v', key.ModCtrl), 200)
	assert.Empty(t, buf, "shortcuts reset the buffer")

	for _, r := range "123456" {
		buf, _ = c.feed(id, key.NewRuneEvent(r, key.ModNone), 4)
	}
	assert.Equal(t, "3456", buf)

	buf, _ = c.feed(id, key.NewSpecialEvent(key.KeyLeft, key.ModNone), 4)
	assert.Empty(t, buf)
}

func TestController_StartProcessesQueueInOrder(t *testing.T) {
	rep := &countingReplacer{ok: true}
	br := snippet.New("brb", "be right back")
	omw := snippet.New("omw", "on my way")
	h := newHarness(t, []*snippet.Snippet{br, omw})
	h.ctrl = New(h.index, rep, h.locks, WithClock(h.clock.Now), WithQueueSize(8))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Start(ctx) }()

	a := h.doc.Textarea("x brb")
	b := h.doc.Textarea("x omw")
	assert.True(t, h.ctrl.HandleInput(a))
	assert.True(t, h.ctrl.HandleInput(b))
	h.ctrl.Close()
	assert.False(t, h.ctrl.HandleInput(a), "closed controllers reject signals")

	require.NoError(t, <-errc)
	h.ctrl.Wait()
	assert.Equal(t, []string{"brb->be right back", "omw->on my way"}, rep.calls)
	assert.ErrorIs(t, h.ctrl.Start(ctx), ErrRunning)
}

func TestController_QueueFullDrops(t *testing.T) {
	h := newHarness(t, nil, WithQueueSize(1))
	el := h.doc.Textarea("")
	assert.True(t, h.ctrl.HandleInput(el))
	assert.False(t, h.ctrl.HandleInput(el))
	assert.False(t, h.ctrl.HandleInput(nil))
}

func TestController_RunFeedsHostSignals(t *testing.T) {
	h := newHarness(t, []*snippet.Snippet{snippet.New("brb", "be right back")})
	el := h.doc.Textarea("hi ")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.ctrl.Start(ctx)
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, h.doc) }()

	h.doc.Type(el, "brb")
	assert.Eventually(t, func() bool { return el.Value() == "hi be right back" }, 2*time.Second, 10*time.Millisecond)

	h.doc.Close()
	require.NoError(t, <-done)
}

func TestApplyCase(t *testing.T) {
	s := snippet.New("addr", "1 main st")
	opts := replace.Options{MoveCursor: true, CursorOffset: 2}

	text, o := applyCase(s, "addr", "1 main st", opts)
	assert.Equal(t, "1 main st", text)
	assert.True(t, o.MoveCursor)

	text, _ = applyCase(s, "ADDR", "1 main st", opts)
	assert.Equal(t, "1 MAIN ST", text)

	text, o = applyCase(s, "ADDR", "straße", opts)
	assert.Equal(t, "STRASSE", text)
	assert.False(t, o.MoveCursor, "rune count changed")

	text, _ = applyCase(s, "Addr", "main st", opts)
	assert.Equal(t, "Main st", text)

	s.CaseSensitive = true
	text, _ = applyCase(s, "ADDR", "main", opts)
	assert.Equal(t, "main", text)
}

func TestMarker(t *testing.T) {
	assert.Equal(t, "[textstorm: no API key for gemini]", Marker(llm.Reason(llm.ErrNoAPIKey("gemini"))))
}
