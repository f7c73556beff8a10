package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TEXTSTORM_"

// Load builds settings from defaults, the TOML file at path and the
// environment. A missing file is not an error.
func Load(path string) (*Settings, error) {
	s := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := decodeTOML(path, data, s); err != nil {
				return nil, err
			}
		}
	}
	if err := ApplyEnv(s, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse decodes TOML data over the defaults without consulting the
// environment.
func Parse(data []byte) (*Settings, error) {
	s := Defaults()
	if err := decodeTOML("<data>", data, s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeTOML decodes data onto s. Unknown keys are rejected so typos in
// the file are reported instead of silently ignored.
func decodeTOML(source string, data []byte, s *Settings) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(s)
	if err == nil {
		return nil
	}

	perr := &ParseError{Path: source, Message: err.Error(), Err: err}
	var decErr *toml.DecodeError
	if errors.As(err, &decErr) {
		perr.Line, perr.Column = decErr.Position()
	}
	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		perr.Message = strictErr.String()
		perr.Err = fmt.Errorf("%w: %v", ErrUnknownSetting, err)
	}
	return perr
}

// Encode writes s as TOML.
func Encode(s *Settings) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment value.
type envSetter func(s *Settings, value string) error

func durationSetter(field func(*Settings) *Duration) envSetter {
	return func(s *Settings, v string) error {
		return field(s).UnmarshalText([]byte(v))
	}
}

func intSetter(field func(*Settings) *int) envSetter {
	return func(s *Settings, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(s) = n
		return nil
	}
}

func boolSetter(field func(*Settings) *bool) envSetter {
	return func(s *Settings, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		*field(s) = b
		return nil
	}
}

func stringSetter(field func(*Settings) *string) envSetter {
	return func(s *Settings, v string) error {
		*field(s) = v
		return nil
	}
}

// envMapping maps TEXTSTORM_<NAME> to the setting it overrides.
var envMapping = map[string]envSetter{
	"ENABLED":        boolSetter(func(s *Settings) *bool { return &s.Enabled }),
	"CASE_SENSITIVE": boolSetter(func(s *Settings) *bool { return &s.CaseSensitive }),
	"EXCLUDED_HOSTS": func(s *Settings, v string) error {
		s.ExcludedHosts = splitList(v)
		return nil
	},
	"LOG_LEVEL":                 stringSetter(func(s *Settings) *string { return &s.Log.Level }),
	"LOCK_COOLDOWN":             durationSetter(func(s *Settings) *Duration { return &s.Lock.Cooldown }),
	"LOCK_SETTLE":               durationSetter(func(s *Settings) *Duration { return &s.Lock.Settle }),
	"LOCK_FAILURE_COOLDOWN":     durationSetter(func(s *Settings) *Duration { return &s.Lock.FailureCooldown }),
	"EXPAND_SUPPRESSION_WINDOW": durationSetter(func(s *Settings) *Duration { return &s.Expand.SuppressionWindow }),
	"EXPAND_DEDUPE_WINDOW":      durationSetter(func(s *Settings) *Duration { return &s.Expand.DedupeWindow }),
	"REPLACE_SETTLE_DELAY":      durationSetter(func(s *Settings) *Duration { return &s.Replace.SettleDelay }),
	"REPLACE_RETRY_DELAY":       durationSetter(func(s *Settings) *Duration { return &s.Replace.RetryDelay }),
	"REPLACE_KEY_DELAY":         durationSetter(func(s *Settings) *Duration { return &s.Replace.KeyDelay }),
	"REPLACE_ADAPTER_ATTEMPTS":  intSetter(func(s *Settings) *int { return &s.Replace.AdapterAttempts }),
	"LLM_TIMEOUT":               durationSetter(func(s *Settings) *Duration { return &s.LLM.Timeout }),
	"STORE_DRIVER":              stringSetter(func(s *Settings) *string { return &s.Store.Driver }),
	"STORE_PATH":                stringSetter(func(s *Settings) *string { return &s.Store.Path }),
	"METRICS_ADDR":              stringSetter(func(s *Settings) *string { return &s.Metrics.Addr }),
}

// ApplyEnv overrides s with TEXTSTORM_* variables found through lookup.
// Empty values are treated as set.
func ApplyEnv(s *Settings, lookup LookupFunc) error {
	for name, set := range envMapping {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(s, v); err != nil {
			return fmt.Errorf("environment %s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
