package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/textstorm/internal/metrics"
	"github.com/dshills/textstorm/internal/store"
)

// fileWatcher and pollWatcher are implemented by stores that pick up
// changes made outside the process.
type fileWatcher interface {
	Watch() error
}

type pollWatcher interface {
	Watch(ctx context.Context, interval time.Duration) error
}

// Run starts the background work until ctx is done: the lock sweep, the
// store and settings watchers and, when configured, the metrics endpoint.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s := r.settings.Settings()

	if err := r.settings.Watch(); err != nil {
		r.logger.Warn("not watching settings: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.sweep(gctx, s.Lock.SweepInterval.Std())
		return nil
	})

	switch st := r.store.(type) {
	case fileWatcher:
		if err := st.Watch(); err != nil {
			r.logger.Warn("not watching snippet file: %v", err)
		}
	case pollWatcher:
		interval := s.Store.PollInterval.Std()
		g.Go(func() error {
			if err := st.Watch(gctx, interval); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	if s.Metrics.Addr != "" {
		srv, err := metrics.Listen(s.Metrics.Addr, r.logger)
		if err != nil {
			return &InitError{Component: "metrics", Err: err}
		}
		g.Go(func() error { return srv.Serve(gctx) })
	}

	return g.Wait()
}

// sweep drops expired lock entries every interval.
func (r *Runtime) sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.locks.Sweep(); n > 0 {
				r.logger.Debug("swept %d expired locks", n)
			}
			metrics.SetLocks(r.locks.Len())
		}
	}
}

var (
	_ fileWatcher = (*store.File)(nil)
	_ pollWatcher = (*store.SQLite)(nil)
)
