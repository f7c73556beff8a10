package macro

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dshills/textstorm/internal/input/key"
)

// ErrAlreadyPlaying is returned when Play is called during another playback.
var ErrAlreadyPlaying = errors.New("already playing a macro")

// KeyHandler receives each replayed key press.
type KeyHandler func(ctx context.Context, ev key.Event) error

// Player replays macros.
type Player struct {
	playing atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPlayer creates a new macro player.
func NewPlayer() *Player {
	return &Player{sleep: Sleep}
}

// WithSleep replaces the wait implementation. Tests use it to avoid real
// delays.
func (p *Player) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Player {
	p.sleep = fn
	return p
}

// Play runs m synchronously. It stops at the first handler error or when
// ctx is canceled.
func (p *Player) Play(ctx context.Context, m Macro, handler KeyHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if len(m) == 0 {
		return nil
	}
	if !p.playing.CompareAndSwap(false, true) {
		return ErrAlreadyPlaying
	}
	defer p.playing.Store(false)

	for _, a := range m {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch a.Kind {
		case ActionKey:
			if err := handler(ctx, a.Key); err != nil {
				return err
			}
		case ActionWait:
			if err := p.sleep(ctx, a.Wait); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsPlaying returns true if a macro is currently being played.
func (p *Player) IsPlaying() bool {
	return p.playing.Load()
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
