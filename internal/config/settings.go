package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Duration is a time.Duration that reads and writes as a Go duration
// string such as "250ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings is one immutable configuration snapshot.
type Settings struct {
	// Enabled is the global expansion switch.
	Enabled bool `toml:"enabled"`

	// ExcludedHosts lists hosts where nothing expands. "*.example.com"
	// matches every subdomain of example.com.
	ExcludedHosts []string `toml:"excludedHosts"`

	// CaseSensitive is the trigger index policy.
	CaseSensitive bool `toml:"caseSensitive"`

	Log     LogSettings     `toml:"log"`
	Lock    LockSettings    `toml:"lock"`
	Expand  ExpandSettings  `toml:"expand"`
	Replace ReplaceSettings `toml:"replace"`
	LLM     LLMSettings     `toml:"llm"`
	Store   StoreSettings   `toml:"store"`
	Metrics MetricsSettings `toml:"metrics"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level string `toml:"level"`
}

// LockSettings configures the element lock table.
type LockSettings struct {
	Cooldown        Duration `toml:"cooldown"`
	Settle          Duration `toml:"settle"`
	FailureCooldown Duration `toml:"failureCooldown"`
	SweepInterval   Duration `toml:"sweepInterval"`
}

// ExpandSettings configures the expansion controller.
type ExpandSettings struct {
	SuppressionWindow Duration `toml:"suppressionWindow"`
	DedupeWindow      Duration `toml:"dedupeWindow"`
	QueueSize         int      `toml:"queueSize"`
}

// ReplaceSettings configures the replacement engine.
type ReplaceSettings struct {
	SettleDelay     Duration `toml:"settleDelay"`
	RetryDelay      Duration `toml:"retryDelay"`
	KeyDelay        Duration `toml:"keyDelay"`
	AdapterAttempts int      `toml:"adapterAttempts"`
}

// LLMSettings configures dynamic snippets.
type LLMSettings struct {
	Timeout   Duration                    `toml:"timeout"`
	Providers map[string]ProviderSettings `toml:"providers"`
}

// ProviderSettings configures one LLM provider. An empty APIKey falls
// back to the provider's usual environment variable.
type ProviderSettings struct {
	APIKey    string `toml:"apiKey"`
	BaseURL   string `toml:"baseURL"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"maxTokens"`
}

// StoreSettings selects the snippet store.
type StoreSettings struct {
	// Driver is "sqlite", "file" or "memory".
	Driver string `toml:"driver"`
	// Path is the database or YAML file. "~/" expands to the home directory.
	Path string `toml:"path"`
	// PollInterval is how often the sqlite store checks for writes made by
	// other processes.
	PollInterval Duration `toml:"pollInterval"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	// Addr is the listen address; empty disables the endpoint.
	Addr string `toml:"addr"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// Defaults returns the built-in settings.
func Defaults() *Settings {
	return &Settings{
		Enabled: true,
		Log:     LogSettings{Level: "info"},
		Lock: LockSettings{
			Cooldown:        Duration(500 * time.Millisecond),
			Settle:          Duration(100 * time.Millisecond),
			FailureCooldown: Duration(5 * time.Second),
			SweepInterval:   Duration(30 * time.Second),
		},
		Expand: ExpandSettings{
			SuppressionWindow: Duration(300 * time.Millisecond),
			DedupeWindow:      Duration(time.Second),
			QueueSize:         64,
		},
		Replace: ReplaceSettings{
			SettleDelay:     Duration(50 * time.Millisecond),
			RetryDelay:      Duration(200 * time.Millisecond),
			KeyDelay:        Duration(10 * time.Millisecond),
			AdapterAttempts: 3,
		},
		LLM: LLMSettings{
			Timeout:   Duration(30 * time.Second),
			Providers: map[string]ProviderSettings{},
		},
		Store: StoreSettings{
			Driver:       DriverSQLite,
			Path:         filepath.Join(defaultDir(), "textstorm.db"),
			PollInterval: Duration(2 * time.Second),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.toml")
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".textstorm"
	}
	return filepath.Join(dir, "textstorm")
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.ExcludedHosts = append([]string(nil), s.ExcludedHosts...)
	c.LLM.Providers = make(map[string]ProviderSettings, len(s.LLM.Providers))
	for k, v := range s.LLM.Providers {
		c.LLM.Providers[k] = v
	}
	return &c
}

// Validate checks the settings for unusable values.
func (s *Settings) Validate() error {
	durations := []struct {
		name string
		d    Duration
	}{
		{"lock.cooldown", s.Lock.Cooldown},
		{"lock.settle", s.Lock.Settle},
		{"lock.failureCooldown", s.Lock.FailureCooldown},
		{"lock.sweepInterval", s.Lock.SweepInterval},
		{"expand.suppressionWindow", s.Expand.SuppressionWindow},
		{"expand.dedupeWindow", s.Expand.DedupeWindow},
		{"replace.settleDelay", s.Replace.SettleDelay},
		{"replace.retryDelay", s.Replace.RetryDelay},
		{"replace.keyDelay", s.Replace.KeyDelay},
		{"llm.timeout", s.LLM.Timeout},
		{"store.pollInterval", s.Store.PollInterval},
	}
	for _, d := range durations {
		if d.d < 0 {
			return &ValidationError{Setting: d.name, Message: "must not be negative"}
		}
	}
	if s.Lock.Cooldown == 0 {
		return &ValidationError{Setting: "lock.cooldown", Message: "must be positive"}
	}
	if s.Replace.AdapterAttempts < 1 {
		return &ValidationError{Setting: "replace.adapterAttempts", Message: "must be at least 1"}
	}
	if s.Expand.QueueSize < 1 {
		return &ValidationError{Setting: "expand.queueSize", Message: "must be at least 1"}
	}
	switch s.Store.Driver {
	case DriverSQLite, DriverFile:
		if strings.TrimSpace(s.Store.Path) == "" {
			return &ValidationError{Setting: "store.path", Message: "required for driver " + s.Store.Driver}
		}
	case DriverMemory:
	default:
		return &ValidationError{Setting: "store.driver", Message: fmt.Sprintf("unknown driver %q", s.Store.Driver)}
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Setting: "log.level", Message: fmt.Sprintf("unknown level %q", s.Log.Level)}
	}
	return nil
}

// HostExcluded reports whether expansion is disabled on host.
func (s *Settings) HostExcluded(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, pattern := range s.ExcludedHosts {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}

// ExpandPath replaces a leading "~/" with the home directory.
func ExpandPath(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}
