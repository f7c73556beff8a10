package app

import (
	"context"

	"github.com/dshills/textstorm/internal/config"
	"github.com/dshills/textstorm/internal/metrics"
	"github.com/dshills/textstorm/internal/notify"
)

// onStoreChange rebuilds the index after any snippet change.
func (r *Runtime) onStoreChange(change notify.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	if err := r.Reload(ctx); err != nil {
		r.logger.Warn("rebuilding index after %s %s: %v", change.Type, change.Path, err)
		return
	}
	metrics.Reloaded("store")
}

// onSettingsChange pushes a new settings snapshot to every component
// that can take it live. Engine, lock and log settings apply from the
// next start.
func (r *Runtime) onSettingsChange(change notify.Change) {
	s, ok := change.Value.(*config.Settings)
	if !ok || s == nil {
		return
	}
	if r.registry != nil {
		r.registry.SetTimeout(s.LLM.Timeout.Std())
	}

	r.mu.Lock()
	for c, host := range r.controllers {
		c.SetConfig(controllerConfig(s, host))
	}
	r.mu.Unlock()

	if r.index.Load().CaseSensitive() != s.CaseSensitive {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := r.Reload(ctx); err != nil {
			r.logger.Warn("rebuilding index after settings change: %v", err)
		}
	}
	metrics.Reloaded("settings")
	r.logger.Info("settings applied from %s", change.Source)
}
