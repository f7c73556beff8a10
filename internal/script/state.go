// Package script evaluates the Lua expressions embedded in snippet
// templates ({lua:...}) inside a restricted interpreter.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ncruces/go-strftime"
	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds one evaluation.
const DefaultExecutionTimeout = 2 * time.Second

// ErrStateClosed is returned when evaluating on a closed state.
var ErrStateClosed = errors.New("lua state is closed")

// State wraps a sandboxed gopher-lua interpreter.
//
// gopher-lua's LState is not goroutine-safe; the mutex serializes Eval.
type State struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	now     func() time.Time
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the per-evaluation timeout.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.timeout = d
	}
}

// WithClock sets the time source used by the date helpers.
func WithClock(now func() time.Time) StateOption {
	return func(s *State) {
		s.now = now
	}
}

// NewState creates a sandboxed interpreter.
func NewState(opts ...StateOption) *State {
	s := &State{
		timeout: DefaultExecutionTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	installSandbox(L)
	s.L = L
	s.installHelpers()
	return s
}

// openSafeLibraries opens only the base, table, string and math
// libraries. io, os, debug and package stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// installHelpers exposes date formatting to templates.
func (s *State) installHelpers() {
	s.L.SetGlobal("strftime", s.L.NewFunction(func(L *lua.LState) int {
		layout := L.OptString(1, "%Y-%m-%d")
		L.Push(lua.LString(strftime.Format(layout, s.now())))
		return 1
	}))
}

// Eval evaluates expr and returns its result as a string. expr may be
// an expression or a chunk with its own return statement. vars is exposed
// as the global table vars.
func (s *State) Eval(ctx context.Context, expr string, vars map[string]string) (out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStateClosed
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	L := s.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	tbl := s.L.NewTable()
	for k, v := range vars {
		tbl.RawSetString(k, lua.LString(v))
	}
	s.L.SetGlobal("vars", tbl)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
		if err != nil {
			s.reset()
		}
	}()

	code := strings.TrimSpace(expr)
	fn, err := s.L.LoadString("return " + code)
	if err != nil {
		fn, err = s.L.LoadString(code)
		if err != nil {
			return "", fmt.Errorf("lua: %w", err)
		}
	}

	top := s.L.GetTop()
	defer s.L.SetTop(top)
	s.L.Push(fn)
	if err := s.L.PCall(0, 1, nil); err != nil {
		return "", fmt.Errorf("lua: %w", err)
	}
	v := s.L.Get(-1)
	if v == lua.LNil {
		return "", nil
	}
	return v.String(), nil
}

// reset replaces the interpreter after a failed evaluation, which may have
// left it mid-call or canceled.
func (s *State) reset() {
	s.L.Close()
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	installSandbox(L)
	s.L = L
	s.installHelpers()
}

// Close releases the interpreter.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
