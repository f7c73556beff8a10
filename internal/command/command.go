package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"github.com/dshills/textstorm/internal/form"
	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/input/macro"
	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/replace"
	"github.com/dshills/textstorm/internal/snippet"
)

// Default layouts for the date commands.
const (
	DefaultDateLayout     = "%Y-%m-%d"
	DefaultTimeLayout     = "%H:%M"
	DefaultDateTimeLayout = "%Y-%m-%d %H:%M"

	// DefaultMaxDepth limits nested {snippet:...} expansion.
	DefaultMaxDepth = 8
)

// Errors returned by Resolve.
var (
	ErrCycle    = errors.New("snippet cycle")
	ErrMaxDepth = errors.New("snippet nesting too deep")
)

// Result is a resolved template.
type Result struct {
	// Text is the substituted expansion.
	Text string

	// CursorOffset is the rune offset of {cursor} in Text, or -1.
	CursorOffset int

	// Actions are the key presses and waits to replay after insertion.
	Actions macro.Macro
}

// Options converts the result into replacement options.
func (r Result) Options() replace.Options {
	return replace.Options{
		MoveCursor:   r.CursorOffset >= 0,
		CursorOffset: r.CursorOffset,
		Actions:      r.Actions,
	}
}

// Lookup finds a snippet by trigger for nested expansion.
type Lookup func(trigger string) *snippet.Snippet

// Evaluator runs {lua:...} expressions.
type Evaluator interface {
	Eval(ctx context.Context, expr string, vars map[string]string) (string, error)
}

// Resolver substitutes commands in templates.
type Resolver struct {
	now       func() time.Time
	clipboard func(ctx context.Context) (string, error)
	lookup    Lookup
	eval      Evaluator
	maxDepth  int
	logger    *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithClipboard sets the clipboard reader used by {clipboard}.
func WithClipboard(fn func(ctx context.Context) (string, error)) Option {
	return func(r *Resolver) { r.clipboard = fn }
}

// WithLookup enables {snippet:...}.
func WithLookup(fn Lookup) Option {
	return func(r *Resolver) { r.lookup = fn }
}

// WithEvaluator enables {lua:...}.
func WithEvaluator(e Evaluator) Option {
	return func(r *Resolver) { r.eval = e }
}

// WithMaxDepth sets the nested snippet limit.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) { r.maxDepth = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		now:      time.Now,
		maxDepth: DefaultMaxDepth,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("command")
	return r
}

// WithClipboardFrom returns a copy of r that reads {clipboard} through fn.
// The controller uses it to read the clipboard of the page being edited.
func (r *Resolver) WithClipboardFrom(fn func(ctx context.Context) (string, error)) *Resolver {
	cp := *r
	cp.clipboard = fn
	return &cp
}

// Resolve substitutes every command in template. values supplies the
// {form:...} fields.
func (r *Resolver) Resolve(ctx context.Context, template string, values map[string]string) (Result, error) {
	st := &state{
		values:   values,
		cursor:   -1,
		visiting: make(map[string]bool),
	}
	if err := r.resolve(ctx, template, st, 0); err != nil {
		return Result{}, err
	}
	return Result{Text: st.out.String(), CursorOffset: st.cursor, Actions: st.actions}, nil
}

type state struct {
	out      strings.Builder
	runes    int
	cursor   int
	actions  macro.Macro
	values   map[string]string
	visiting map[string]bool
	stack    []string
}

func (st *state) write(s string) {
	st.out.WriteString(s)
	st.runes += len([]rune(s))
}

func (r *Resolver) resolve(ctx context.Context, template string, st *state, depth int) error {
	for _, seg := range parse(template) {
		if !seg.isCommand() {
			st.write(seg.literal)
			continue
		}
		if err := r.apply(ctx, seg, st, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) apply(ctx context.Context, seg segment, st *state, depth int) error {
	switch seg.name {
	case "date":
		st.write(strftime.Format(layout(seg, DefaultDateLayout), r.now()))
	case "time":
		st.write(strftime.Format(layout(seg, DefaultTimeLayout), r.now()))
	case "datetime":
		st.write(strftime.Format(layout(seg, DefaultDateTimeLayout), r.now()))
	case "clipboard":
		if r.clipboard == nil {
			return nil
		}
		text, err := r.clipboard(ctx)
		if err != nil {
			r.logger.Debug("clipboard read failed: %v", err)
			return nil
		}
		st.write(text)
	case "cursor":
		if st.cursor < 0 {
			st.cursor = st.runes
		}
	case "uuid":
		st.write(uuid.NewString())
	case "enter":
		st.actions = append(st.actions, macro.Press(key.NewSpecialEvent(key.KeyEnter, key.ModNone)))
	case "tab":
		st.actions = append(st.actions, macro.Press(key.NewSpecialEvent(key.KeyTab, key.ModNone)))
	case "key":
		ev, err := key.Parse(seg.arg)
		if err != nil {
			r.logger.Debug("ignoring %s: %v", seg.raw, err)
			st.write(seg.raw)
			return nil
		}
		st.actions = append(st.actions, macro.Press(ev))
	case "wait":
		ms, err := strconv.Atoi(strings.TrimSpace(seg.arg))
		if err != nil || ms < 0 {
			st.write(seg.raw)
			return nil
		}
		st.actions = append(st.actions, macro.Wait(time.Duration(ms)*time.Millisecond))
	case "form":
		f := parseField(seg.arg)
		if v, ok := st.values[f.Name]; ok {
			st.write(v)
		} else {
			st.write(f.Default)
		}
	case "lua":
		if r.eval == nil {
			st.write(seg.raw)
			return nil
		}
		out, err := r.eval.Eval(ctx, seg.arg, st.values)
		if err != nil {
			return fmt.Errorf("%s: %w", seg.raw, err)
		}
		st.write(out)
	case "snippet":
		return r.nested(ctx, strings.TrimSpace(seg.arg), seg, st, depth)
	default:
		st.write(seg.raw)
	}
	return nil
}

// nested expands another snippet in place, guarding against cycles and
// runaway depth.
func (r *Resolver) nested(ctx context.Context, trigger string, seg segment, st *state, depth int) error {
	if r.lookup == nil {
		st.write(seg.raw)
		return nil
	}
	s := r.lookup(trigger)
	if s == nil || !s.Enabled {
		st.write(seg.raw)
		return nil
	}
	if depth+1 > r.maxDepth {
		return fmt.Errorf("%w (%d) at %q", ErrMaxDepth, r.maxDepth, trigger)
	}
	if st.visiting[trigger] {
		chain := append(append([]string(nil), st.stack...), trigger)
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(chain, " -> "))
	}
	st.visiting[trigger] = true
	st.stack = append(st.stack, trigger)
	err := r.resolve(ctx, s.Expansion, st, depth+1)
	st.stack = st.stack[:len(st.stack)-1]
	st.visiting[trigger] = false
	return err
}

func layout(seg segment, def string) string {
	if seg.hasArg && strings.TrimSpace(seg.arg) != "" {
		return seg.arg
	}
	return def
}

func parseField(arg string) form.Field {
	name, def, _ := strings.Cut(arg, "=")
	return form.Field{Name: strings.TrimSpace(name), Default: def}
}

// Fields returns the distinct {form:...} fields of template, in order of
// first appearance.
func Fields(template string) []form.Field {
	var fields []form.Field
	seen := make(map[string]bool)
	for _, seg := range parse(template) {
		if seg.name != "form" {
			continue
		}
		f := parseField(seg.arg)
		if f.Name == "" || seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		fields = append(fields, f)
	}
	return fields
}

// HasForm reports whether template asks for form input.
func HasForm(template string) bool {
	return len(Fields(template)) > 0
}

// Fields returns the form fields of template, including those of nested
// snippets.
func (r *Resolver) Fields(template string) []form.Field {
	var fields []form.Field
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	var walk func(t string, depth int)
	walk = func(t string, depth int) {
		for _, seg := range parse(t) {
			switch seg.name {
			case "form":
				f := parseField(seg.arg)
				if f.Name != "" && !seen[f.Name] {
					seen[f.Name] = true
					fields = append(fields, f)
				}
			case "snippet":
				trigger := strings.TrimSpace(seg.arg)
				if r.lookup == nil || visited[trigger] || depth >= r.maxDepth {
					continue
				}
				visited[trigger] = true
				if s := r.lookup(trigger); s != nil && s.Enabled {
					walk(s.Expansion, depth+1)
				}
			}
		}
	}
	walk(template, 0)
	return fields
}
