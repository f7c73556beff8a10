package config

import (
	"sync"
	"sync/atomic"

	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/notify"
	"github.com/dshills/textstorm/internal/watch"
)

// Manager owns the current settings snapshot.
type Manager struct {
	path     string
	current  atomic.Pointer[Settings]
	notifier *notify.Notifier
	logger   *logging.Logger

	mu      sync.Mutex
	watcher *watch.Watcher
	closed  bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager loads the settings at path. An empty path uses defaults and
// the environment only.
func NewManager(path string, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		path:     path,
		notifier: notify.New(),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	m.current.Store(s)
	return m, nil
}

// NewStaticManager wraps fixed settings, for tests and one-shot commands.
func NewStaticManager(s *Settings) *Manager {
	m := &Manager{notifier: notify.New(), logger: logging.Nop()}
	if s == nil {
		s = Defaults()
	}
	m.current.Store(s)
	return m
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return m.path
}

// Settings returns the current snapshot. Callers must not modify it.
func (m *Manager) Settings() *Settings {
	return m.current.Load()
}

// Subscribe registers an observer for new snapshots. The change value is
// the new *Settings.
func (m *Manager) Subscribe(observer notify.Observer) *notify.Subscription {
	return m.notifier.SubscribePath(notify.PathSettings, observer)
}

// Update applies fn to a copy of the current settings and publishes the
// result if it validates.
func (m *Manager) Update(fn func(*Settings)) error {
	next := m.Settings().Clone()
	fn(next)
	if err := next.Validate(); err != nil {
		return err
	}
	m.swap(next, "update")
	return nil
}

// Reload re-reads the file. On error the current snapshot is kept.
func (m *Manager) Reload() error {
	s, err := Load(m.path)
	if err != nil {
		m.logger.Warn("config reload failed, keeping previous settings: %v", err)
		return err
	}
	m.swap(s, "file")
	m.logger.Info("reloaded settings from %s", m.path)
	return nil
}

func (m *Manager) swap(s *Settings, source string) {
	m.current.Store(s)
	m.notifier.Notify(notify.Change{
		Path:   notify.PathSettings,
		Type:   notify.ChangeReload,
		Value:  s,
		Source: source,
	})
}

// Watch reloads the settings whenever the file changes.
func (m *Manager) Watch() error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.watcher != nil {
		return nil
	}
	w, err := watch.New(watch.WithErrorHandler(func(err error) {
		m.logger.Warn("config watch: %v", err)
	}))
	if err != nil {
		return err
	}
	if err := w.Add(m.path); err != nil {
		w.Close()
		return err
	}
	w.OnChange(func(watch.Event) { _ = m.Reload() })
	m.watcher = w
	return nil
}

// Close stops watching and releases subscribers.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	w := m.watcher
	m.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	m.notifier.Close()
	return err
}
