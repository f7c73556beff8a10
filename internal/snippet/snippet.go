// Package snippet defines the snippet record matched and expanded by textstorm.
//
// Snippets are owned by a store; the matching core treats them as read-only.
package snippet

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// TriggerMode controls which word-boundary rule applies to a trigger.
type TriggerMode string

const (
	// ModeWord requires the trigger to start at a word boundary.
	ModeWord TriggerMode = "word"
	// ModeWordBoth requires a boundary before and a typed boundary after.
	ModeWordBoth TriggerMode = "word-both"
	// ModeAnywhere matches regardless of surrounding text.
	ModeAnywhere TriggerMode = "anywhere"
)

// Validation errors.
var (
	ErrEmptyTrigger   = errors.New("empty trigger")
	ErrTriggerSpace   = errors.New("trigger has leading or trailing whitespace")
	ErrUnknownMode    = errors.New("unknown trigger mode")
	ErrEmptyExpansion = errors.New("empty expansion")
)

// ParseTriggerMode parses a mode name. The empty string maps to ModeWord.
func ParseTriggerMode(s string) (TriggerMode, error) {
	switch TriggerMode(strings.TrimSpace(s)) {
	case "", ModeWord:
		return ModeWord, nil
	case ModeWordBoth:
		return ModeWordBoth, nil
	case ModeAnywhere:
		return ModeAnywhere, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Valid reports whether m is one of the known modes.
func (m TriggerMode) Valid() bool {
	return m == ModeWord || m == ModeWordBoth || m == ModeAnywhere
}

// Dynamic configures an LLM-backed snippet. The resolved expansion is sent
// as the prompt.
type Dynamic struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// Fallback is inserted when the completion fails. Empty means an inline
	// error marker is inserted instead.
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Snippet is a trigger and the text it expands to.
type Snippet struct {
	ID            string      `json:"id" yaml:"id"`
	Trigger       string      `json:"trigger" yaml:"trigger"`
	Expansion     string      `json:"expansion" yaml:"expansion"`
	Enabled       bool        `json:"enabled" yaml:"enabled"`
	CaseSensitive bool        `json:"caseSensitive" yaml:"caseSensitive"`
	TriggerMode   TriggerMode `json:"triggerMode" yaml:"triggerMode"`
	Description   string      `json:"description,omitempty" yaml:"description,omitempty"`
	Tags          []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	UsageCount    int64       `json:"usageCount" yaml:"usageCount"`
	CreatedAt     time.Time   `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt" yaml:"updatedAt"`
	Dynamic       *Dynamic    `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
}

// New creates an enabled, case-insensitive, word-mode snippet with a fresh ID.
func New(trigger, expansion string) *Snippet {
	now := time.Now().UTC()
	return &Snippet{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		Expansion:   expansion,
		Enabled:     true,
		TriggerMode: ModeWord,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewID returns a fresh snippet identifier.
func NewID() string {
	return uuid.NewString()
}

// IsDynamic reports whether the snippet is LLM-backed.
func (s *Snippet) IsDynamic() bool {
	return s != nil && s.Dynamic != nil
}

// Validate checks the snippet for structural problems.
func (s *Snippet) Validate() error {
	if s.Trigger == "" {
		return ErrEmptyTrigger
	}
	runes := []rune(s.Trigger)
	if unicode.IsSpace(runes[0]) || unicode.IsSpace(runes[len(runes)-1]) {
		return fmt.Errorf("%w: %q", ErrTriggerSpace, s.Trigger)
	}
	if !s.TriggerMode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, s.TriggerMode)
	}
	if s.Expansion == "" && s.Dynamic == nil {
		return ErrEmptyExpansion
	}
	return nil
}

// Clone returns a deep copy.
func (s *Snippet) Clone() *Snippet {
	if s == nil {
		return nil
	}
	c := *s
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	if s.Dynamic != nil {
		d := *s.Dynamic
		c.Dynamic = &d
	}
	return &c
}

// Set is a snippet collection keyed by ID.
type Set map[string]*Snippet

// Clone deep-copies the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id, sn := range s {
		out[id] = sn.Clone()
	}
	return out
}

// ByTrigger returns the first enabled snippet with exactly this trigger.
func (s Set) ByTrigger(trigger string) *Snippet {
	for _, sn := range s {
		if sn.Enabled && sn.Trigger == trigger {
			return sn
		}
	}
	return nil
}
