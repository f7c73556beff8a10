package surface

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
		want Kind
	}{
		{"textarea", Profile{Tag: "TEXTAREA"}, KindTextarea},
		{"text input", Profile{Tag: "input", Type: "text"}, KindInput},
		{"untyped input", Profile{Tag: "input"}, KindInput},
		{"checkbox", Profile{Tag: "input", Type: "checkbox"}, KindUnknown},
		{"password", Profile{Tag: "input", Type: "password"}, KindUnknown},
		{"react", Profile{Tag: "input", ValueTracker: true}, KindControlled},
		{"vue textarea", Profile{Tag: "textarea", VueModel: true}, KindControlled},
		{"contenteditable", Profile{Tag: "div", ContentEditable: true}, KindContentEditable},
		{"docs host", Profile{Tag: "div", ContentEditable: true, Hostname: "docs.google.com"}, KindGoogleDocs},
		{"docs iframe", Profile{DocsIframe: true}, KindGoogleDocs},
		{"ckeditor class", Profile{Tag: "div", ContentEditable: true, Classes: []string{"ck-editor__editable"}}, KindCKEditor},
		{"ckeditor 4", Profile{Tag: "body", Classes: []string{"cke_editable"}}, KindCKEditor},
		{"plain div", Profile{Tag: "div"}, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.p))
		})
	}
}

func TestKind_IsRich(t *testing.T) {
	assert.True(t, KindGoogleDocs.IsRich())
	assert.True(t, KindCKEditor.IsRich())
	assert.False(t, KindContentEditable.IsRich())
	assert.Equal(t, "google-docs", KindGoogleDocs.String())
}

type stubElement struct {
	id       string
	text     string
	caret    int
	profiles int
}

func (s *stubElement) ID() string                     { return s.id }
func (s *stubElement) Connected(context.Context) bool { return true }
func (s *stubElement) Profile(context.Context) (Profile, error) {
	s.profiles++
	return Profile{Tag: "textarea"}, nil
}
func (s *stubElement) Text(context.Context) (string, error) { return s.text, nil }
func (s *stubElement) Caret(context.Context) (int, error)   { return s.caret, nil }

func TestProber_CachesByID(t *testing.T) {
	p := NewProber()
	el := &stubElement{id: "a"}
	ctx := context.Background()

	assert.Equal(t, KindTextarea, p.Probe(ctx, el))
	assert.Equal(t, KindTextarea, p.Probe(ctx, el))
	assert.Equal(t, 1, el.profiles)
	assert.Equal(t, 1, p.Len())

	p.Forget("a")
	assert.Equal(t, 0, p.Len())
}

func TestTextBeforeCaret(t *testing.T) {
	ctx := context.Background()

	got, err := TextBeforeCaret(ctx, &stubElement{text: "héllo brb tail", caret: 9})
	assert.NoError(t, err)
	assert.Equal(t, "héllo brb", got)

	got, err = TextBeforeCaret(ctx, &stubElement{text: "abc", caret: -1})
	assert.NoError(t, err)
	assert.Equal(t, "abc", got)
}
