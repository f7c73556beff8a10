package surface

import (
	"context"
	"strings"
	"sync"
)

// Kind is the editor family of an element.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInput
	KindTextarea
	KindContentEditable
	KindControlled
	KindGoogleDocs
	KindCKEditor
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindInput:           "input",
	KindTextarea:        "textarea",
	KindContentEditable: "contenteditable",
	KindControlled:      "controlled",
	KindGoogleDocs:      "google-docs",
	KindCKEditor:        "ckeditor",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsRich reports whether the kind does not fire reliable input events and
// needs the keydown accumulation buffer.
func (k Kind) IsRich() bool {
	return k == KindGoogleDocs || k == KindCKEditor
}

// Profile holds the facts about an element that determine its Kind.
type Profile struct {
	Tag             string   `json:"tag"`
	Type            string   `json:"type"`
	ContentEditable bool     `json:"contentEditable"`
	Hostname        string   `json:"hostname"`
	Classes         []string `json:"classes"`
	ValueTracker    bool     `json:"valueTracker"` // React _valueTracker
	VueModel        bool     `json:"vueModel"`     // Vue v-model listener
	CKEditor        bool     `json:"ckeditor"`     // ckeditorInstance property
	DocsIframe      bool     `json:"docsIframe"`   // docs-texteventtarget-iframe
}

var textInputTypes = map[string]bool{
	"":       true,
	"text":   true,
	"search": true,
	"url":    true,
	"email":  true,
	"tel":    true,
}

// Classify resolves the Kind for a profile. Framework fingerprints take
// precedence over the plain tag.
func Classify(p Profile) Kind {
	tag := strings.ToLower(p.Tag)

	if p.DocsIframe || strings.EqualFold(p.Hostname, "docs.google.com") {
		return KindGoogleDocs
	}
	if p.CKEditor || hasClass(p.Classes, "ck-editor__editable", "cke_editable") {
		return KindCKEditor
	}

	native := tag == "textarea" || (tag == "input" && textInputTypes[strings.ToLower(p.Type)])
	if native && (p.ValueTracker || p.VueModel) {
		return KindControlled
	}
	switch {
	case tag == "textarea":
		return KindTextarea
	case native:
		return KindInput
	case p.ContentEditable:
		return KindContentEditable
	}
	return KindUnknown
}

func hasClass(classes []string, names ...string) bool {
	for _, c := range classes {
		for _, n := range names {
			if c == n {
				return true
			}
		}
	}
	return false
}

// Prober caches the Kind of each element by ID.
type Prober struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewProber creates an empty cache.
func NewProber() *Prober {
	return &Prober{kinds: make(map[string]Kind)}
}

// Probe returns the cached Kind for el, classifying it on first use. A
// profile error yields KindUnknown and is not cached.
func (p *Prober) Probe(ctx context.Context, el Element) Kind {
	id := el.ID()
	p.mu.RLock()
	k, ok := p.kinds[id]
	p.mu.RUnlock()
	if ok {
		return k
	}

	prof, err := el.Profile(ctx)
	if err != nil {
		return KindUnknown
	}
	k = Classify(prof)

	p.mu.Lock()
	p.kinds[id] = k
	p.mu.Unlock()
	return k
}

// Forget drops the cached entry for id.
func (p *Prober) Forget(id string) {
	p.mu.Lock()
	delete(p.kinds, id)
	p.mu.Unlock()
}

// Len returns the number of cached entries.
func (p *Prober) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.kinds)
}
