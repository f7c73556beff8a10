package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/textstorm/internal/config"
	"github.com/dshills/textstorm/internal/expand"
	"github.com/dshills/textstorm/internal/llm"
	"github.com/dshills/textstorm/internal/llm/providers"
	"github.com/dshills/textstorm/internal/lock"
	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/replace"
	"github.com/dshills/textstorm/internal/store"
)

// OpenStore opens the snippet store the settings select.
func OpenStore(s *config.Settings, logger *logging.Logger) (store.Store, error) {
	path := config.ExpandPath(s.Store.Path)
	switch s.Store.Driver {
	case config.DriverMemory:
		return store.NewMemory(nil)
	case config.DriverFile:
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		return store.OpenFile(path, store.WithFileLogger(logger))
	case config.DriverSQLite, "":
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		return store.OpenSQLite(path, store.WithSQLiteLogger(logger))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.Store.Driver)
	}
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// lockOptions maps lock settings onto the lock table.
func lockOptions(s *config.Settings, now func() time.Time) []lock.Option {
	opts := []lock.Option{
		lock.WithSettle(s.Lock.Settle.Std()),
		lock.WithFailureCooldown(s.Lock.FailureCooldown.Std()),
	}
	if now != nil {
		opts = append(opts, lock.WithClock(now))
	}
	return opts
}

// engineConfig maps replace settings onto the engine.
func engineConfig(s *config.Settings) replace.Config {
	cfg := replace.DefaultConfig()
	cfg.SettleDelay = s.Replace.SettleDelay.Std()
	cfg.RetryDelay = s.Replace.RetryDelay.Std()
	cfg.KeyDelay = s.Replace.KeyDelay.Std()
	if s.Replace.AdapterAttempts > 0 {
		cfg.AdapterAttempts = s.Replace.AdapterAttempts
	}
	return cfg
}

// controllerConfig derives the controller policy for one host.
func controllerConfig(s *config.Settings, host string) expand.Config {
	cfg := expand.DefaultConfig()
	cfg.Enabled = s.Enabled && !s.HostExcluded(host)
	if d := s.Lock.Cooldown.Std(); d > 0 {
		cfg.LockCooldown = d
	}
	cfg.SuppressionWindow = s.Expand.SuppressionWindow.Std()
	cfg.DedupeWindow = s.Expand.DedupeWindow.Std()
	return cfg
}

// providerConfigs maps LLM settings onto provider configs.
func providerConfigs(s *config.Settings) map[string]providers.Config {
	out := make(map[string]providers.Config, len(s.LLM.Providers))
	for name, p := range s.LLM.Providers {
		out[name] = providers.Config{
			APIKey:    p.APIKey,
			BaseURL:   p.BaseURL,
			Model:     p.Model,
			MaxTokens: p.MaxTokens,
		}
	}
	return out
}

// newRegistry builds the LLM registry with every known provider.
func newRegistry(s *config.Settings, logger *logging.Logger) *llm.Registry {
	r := llm.NewRegistry(llm.WithTimeout(s.LLM.Timeout.Std()), llm.WithLogger(logger))
	providers.Register(r, providerConfigs(s))
	return r
}
