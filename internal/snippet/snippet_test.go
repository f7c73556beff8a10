package snippet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriggerMode(t *testing.T) {
	tests := []struct {
		in      string
		want    TriggerMode
		wantErr bool
	}{
		{"", ModeWord, false},
		{"word", ModeWord, false},
		{"word-both", ModeWordBoth, false},
		{"anywhere", ModeAnywhere, false},
		{"WORD", "", true},
		{"prefix", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTriggerMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownMode, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New("brb", "be right back")
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Enabled)
	assert.False(t, s.CaseSensitive)
	assert.Equal(t, ModeWord, s.TriggerMode)
	assert.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	s := New("", "x")
	assert.ErrorIs(t, s.Validate(), ErrEmptyTrigger)

	s = New(" brb", "x")
	assert.ErrorIs(t, s.Validate(), ErrTriggerSpace)

	s = New("brb", "x")
	s.TriggerMode = "sideways"
	assert.ErrorIs(t, s.Validate(), ErrUnknownMode)

	s = New("brb", "")
	assert.ErrorIs(t, s.Validate(), ErrEmptyExpansion)

	s.Dynamic = &Dynamic{Provider: "anthropic"}
	assert.NoError(t, s.Validate())
}

func TestClone_IsDeep(t *testing.T) {
	s := New("sig", "Regards")
	s.Tags = []string{"mail"}
	s.Dynamic = &Dynamic{Provider: "openai", Fallback: "Regards"}

	c := s.Clone()
	c.Tags[0] = "changed"
	c.Dynamic.Fallback = "changed"

	assert.Equal(t, "mail", s.Tags[0])
	assert.Equal(t, "Regards", s.Dynamic.Fallback)
}

func TestSet_ByTrigger(t *testing.T) {
	a := New("br", "bring")
	b := New("brb", "be right back")
	b.Enabled = false
	set := Set{a.ID: a, b.ID: b}

	assert.Same(t, a, set.ByTrigger("br"))
	assert.Nil(t, set.ByTrigger("brb"))
}
