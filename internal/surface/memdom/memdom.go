// Package memdom is an in-memory DOM that implements every surface
// capability. Knobs emulate hostile pages: framework reverts, ignored
// writes, blocked execCommand and detached nodes.
package memdom

import (
	"fmt"
	"sync"

	"github.com/dshills/textstorm/internal/input/key"
	"github.com/dshills/textstorm/internal/surface"
)

// Document owns elements and a clipboard.
type Document struct {
	mu             sync.Mutex
	hostname       string
	clipboard      string
	blockClipboard bool
	nextID         int
	signals        chan surface.Signal
	closed         bool
}

// NewDocument creates a document for hostname.
func NewDocument(hostname string) *Document {
	return &Document{
		hostname: hostname,
		signals:  make(chan surface.Signal, 256),
	}
}

// Name implements surface.Host.
func (d *Document) Name() string { return d.hostname }

// Signals implements surface.Host.
func (d *Document) Signals() <-chan surface.Signal { return d.signals }

// Close closes the signal channel.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.signals)
	}
}

func (d *Document) emit(s surface.Signal) {
	if d.closed {
		return
	}
	select {
	case d.signals <- s:
	default:
	}
}

// Clipboard returns the clipboard contents.
func (d *Document) Clipboard() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard
}

// SetClipboard replaces the clipboard contents.
func (d *Document) SetClipboard(s string) {
	d.mu.Lock()
	d.clipboard = s
	d.mu.Unlock()
}

// BlockClipboard makes clipboard reads and writes fail.
func (d *Document) BlockClipboard(block bool) {
	d.mu.Lock()
	d.blockClipboard = block
	d.mu.Unlock()
}

// NewElement adds an element with the given profile and initial text. The
// caret starts at the end.
func (d *Document) NewElement(p surface.Profile, text string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	if p.Hostname == "" {
		p.Hostname = d.hostname
	}
	v := []rune(text)
	return &Element{
		doc:       d,
		id:        fmt.Sprintf("el-%d", d.nextID),
		profile:   p,
		value:     v,
		committed: append([]rune(nil), v...),
		tracker:   text,
		caret:     len(v),
		selStart:  len(v),
		selEnd:    len(v),
		connected: true,
		calls:     make(map[string]int),
	}
}

// Textarea adds a <textarea>.
func (d *Document) Textarea(text string) *Element {
	return d.NewElement(surface.Profile{Tag: "textarea"}, text)
}

// Input adds an <input type="text">.
func (d *Document) Input(text string) *Element {
	return d.NewElement(surface.Profile{Tag: "input", Type: "text"}, text)
}

// ContentEditable adds a contenteditable <div>.
func (d *Document) ContentEditable(text string) *Element {
	return d.NewElement(surface.Profile{Tag: "div", ContentEditable: true}, text)
}

// Controlled adds a React-controlled <input>. Direct value writes are
// reverted on the next input event.
func (d *Document) Controlled(text string) *Element {
	el := d.NewElement(surface.Profile{Tag: "input", Type: "text", ValueTracker: true}, text)
	el.knobs.Framework = true
	return el
}

// GoogleDocs adds a Google Docs text event target.
func (d *Document) GoogleDocs(text string) *Element {
	return d.NewElement(surface.Profile{Tag: "div", ContentEditable: true, DocsIframe: true}, text)
}

// CKEditor adds a CKEditor 5 editable.
func (d *Document) CKEditor(text string) *Element {
	return d.NewElement(surface.Profile{
		Tag:             "div",
		ContentEditable: true,
		Classes:         []string{"ck", "ck-editor__editable"},
		CKEditor:        true,
	}, text)
}

// Type simulates the user typing s at the caret of el, emitting keydown
// and input signals the way a browser would. Rich editors emit keydown
// only.
func (d *Document) Type(el *Element, s string) {
	for _, ev := range key.EventsForText(s) {
		d.mu.Lock()
		if !el.connected {
			d.mu.Unlock()
			return
		}
		el.applyKey(ev)
		rich := surface.Classify(el.profile).IsRich()
		d.emit(surface.Signal{Type: surface.SignalKeyDown, Element: el, Key: ev})
		if !rich {
			d.emit(surface.Signal{Type: surface.SignalInput, Element: el})
		}
		d.mu.Unlock()
	}
}

// Remove detaches el and emits a removed signal.
func (d *Document) Remove(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el.connected = false
	d.emit(surface.Signal{Type: surface.SignalRemoved, Element: el})
}

func (d *Document) readClipboard() (string, error) {
	if d.blockClipboard {
		return "", surface.ErrBlocked
	}
	return d.clipboard, nil
}

func (d *Document) writeClipboard(s string) error {
	if d.blockClipboard {
		return surface.ErrBlocked
	}
	d.clipboard = s
	return nil
}
