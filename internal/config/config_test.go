package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/textstorm/internal/notify"
)

func TestDefaults_Validate(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.Validate())
	assert.True(t, s.Enabled)
	assert.Equal(t, 500*time.Millisecond, s.Lock.Cooldown.Std())
	assert.Equal(t, 5*time.Second, s.Lock.FailureCooldown.Std())
	assert.Equal(t, 200*time.Millisecond, s.Replace.RetryDelay.Std())
	assert.Equal(t, 3, s.Replace.AdapterAttempts)
}

func TestParse_OverridesDefaults(t *testing.T) {
	s, err := Parse([]byte(`
excludedHosts = ["bank.example.com"]

[lock]
cooldown = "750ms"

[llm.providers.openai]
model = "gpt-4o"
maxTokens = 100

[store]
driver = "file"
path = "/tmp/snippets.yaml"
`))
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, s.Lock.Cooldown.Std())
	assert.Equal(t, 100*time.Millisecond, s.Lock.Settle.Std(), "untouched keys keep defaults")
	assert.Equal(t, "gpt-4o", s.LLM.Providers["openai"].Model)
	assert.Equal(t, DriverFile, s.Store.Driver)
	assert.Equal(t, []string{"bank.example.com"}, s.ExcludedHosts)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("enabled = \n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)

	_, err = Parse([]byte("enabeld = true\n"))
	assert.ErrorIs(t, err, ErrUnknownSetting)

	_, err = Parse([]byte("[lock]\ncooldown = \"soon\"\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("[store]\ndriver = \"postgres\"\n"))
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = Parse([]byte("[replace]\nretryDelay = \"-1s\"\n"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "replace.retryDelay", verr.Setting)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TEXTSTORM_ENABLED":        "false",
		"TEXTSTORM_EXCLUDED_HOSTS": "a.com, *.b.com ,",
		"TEXTSTORM_LOCK_COOLDOWN":  "1s",
		"TEXTSTORM_LOG_LEVEL":      "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	s := Defaults()
	require.NoError(t, ApplyEnv(s, lookup))
	assert.False(t, s.Enabled)
	assert.Equal(t, []string{"a.com", "*.b.com"}, s.ExcludedHosts)
	assert.Equal(t, time.Second, s.Lock.Cooldown.Std())
	assert.Equal(t, "debug", s.Log.Level)

	env["TEXTSTORM_REPLACE_ADAPTER_ATTEMPTS"] = "many"
	assert.Error(t, ApplyEnv(Defaults(), lookup))
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("caseSensitive = true\n[log]\nlevel = \"warn\"\n"), 0o600))
	t.Setenv("TEXTSTORM_LOG_LEVEL", "error")

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.CaseSensitive)
	assert.Equal(t, "error", s.Log.Level, "environment wins over file")

	s, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.False(t, s.CaseSensitive)
}

func TestEncode_RoundTrip(t *testing.T) {
	s := Defaults()
	s.ExcludedHosts = []string{"x.com"}
	data, err := Encode(s)
	require.NoError(t, err)
	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, s.Lock, back.Lock)
	assert.Equal(t, s.ExcludedHosts, back.ExcludedHosts)
}

func TestSettings_HostExcluded(t *testing.T) {
	s := Defaults()
	s.ExcludedHosts = []string{"Bank.example.com", "*.corp.net"}
	assert.True(t, s.HostExcluded("bank.example.com"))
	assert.True(t, s.HostExcluded("corp.net"))
	assert.True(t, s.HostExcluded("mail.corp.net"))
	assert.False(t, s.HostExcluded("example.com"))
	assert.False(t, s.HostExcluded("notcorp.net"))
	assert.False(t, s.HostExcluded(""))
}

func TestSettings_Clone(t *testing.T) {
	s := Defaults()
	s.LLM.Providers["openai"] = ProviderSettings{Model: "a"}
	c := s.Clone()
	c.LLM.Providers["openai"] = ProviderSettings{Model: "b"}
	c.ExcludedHosts = append(c.ExcludedHosts, "x")
	assert.Equal(t, "a", s.LLM.Providers["openai"].Model)
	assert.Empty(t, s.ExcludedHosts)
}

func TestManager_UpdateAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("enabled = true\n"), 0o600))

	m, err := NewManager(path)
	require.NoError(t, err)
	defer m.Close()

	var got []*Settings
	m.Subscribe(func(c notify.Change) {
		got = append(got, c.Value.(*Settings))
	})

	require.NoError(t, m.Update(func(s *Settings) { s.Enabled = false }))
	assert.False(t, m.Settings().Enabled)

	assert.Error(t, m.Update(func(s *Settings) { s.Replace.AdapterAttempts = 0 }))
	assert.False(t, m.Settings().Enabled, "rejected update leaves snapshot")

	require.NoError(t, os.WriteFile(path, []byte("enabled = true\ncaseSensitive = true\n"), 0o600))
	require.NoError(t, m.Reload())
	assert.True(t, m.Settings().CaseSensitive)

	require.NoError(t, os.WriteFile(path, []byte("enabled = = true\n"), 0o600))
	assert.Error(t, m.Reload())
	assert.True(t, m.Settings().CaseSensitive)

	require.Len(t, got, 2)
	assert.False(t, got[0].Enabled)
	assert.True(t, got[1].CaseSensitive)
}

func TestManager_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("enabled = true\n"), 0o600))
	m, err := NewManager(path)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Watch())

	require.NoError(t, os.WriteFile(path, []byte("enabled = false\n"), 0o600))
	assert.Eventually(t, func() bool { return !m.Settings().Enabled }, 2*time.Second, 20*time.Millisecond)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x.db"), ExpandPath("~/x.db"))
	assert.Equal(t, "/abs/x.db", ExpandPath("/abs/x.db"))
}
