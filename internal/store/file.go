package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/notify"
	"github.com/dshills/textstorm/internal/snippet"
	"github.com/dshills/textstorm/internal/watch"
)

// fileNamespace derives stable IDs for file entries that have none.
var fileNamespace = uuid.MustParse("6f1c2a4e-3d7b-4f0e-9a51-7c2d8e5b1a90")

// fileDocument is the on-disk YAML layout.
type fileDocument struct {
	Snippets []*snippet.Snippet `yaml:"snippets"`
}

// File is a Store backed by a YAML file. The file is rewritten on every
// mutation and reloaded when another program changes it.
type File struct {
	mu        sync.RWMutex
	path      string
	snippets  snippet.Set
	lastWrite []byte
	notifier  *notify.Notifier
	watcher   *watch.Watcher
	logger    *logging.Logger
	now       func() time.Time
	closed    bool
}

// FileOption configures a File store.
type FileOption func(*File)

// WithFileLogger sets the logger.
func WithFileLogger(l *logging.Logger) FileOption {
	return func(f *File) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFileClock sets the clock used for timestamps.
func WithFileClock(now func() time.Time) FileOption {
	return func(f *File) {
		if now != nil {
			f.now = now
		}
	}
}

// OpenFile loads the YAML file at path. A missing file is treated as
// empty and created on the first write.
func OpenFile(path string, opts ...FileOption) (*File, error) {
	f := &File{
		path:     path,
		snippets: make(snippet.Set),
		notifier: notify.New(),
		logger:   logging.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}
	set, raw, err := f.read()
	if err != nil {
		return nil, err
	}
	f.snippets = set
	f.lastWrite = raw
	return f, nil
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// read parses the file. Entries without an ID get one derived from their
// trigger so that it is stable across reloads.
func (f *File) read() (snippet.Set, []byte, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(snippet.Set), nil, nil
	}
	if err != nil {
		return nil, nil, newOpError("read", f.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, newOpError("read", f.path, err)
	}

	set := make(snippet.Set, len(doc.Snippets))
	now := f.now()
	for i, s := range doc.Snippets {
		if s == nil {
			continue
		}
		if s.ID == "" {
			s.ID = uuid.NewSHA1(fileNamespace, []byte(s.Trigger)).String()
		}
		if s.TriggerMode == "" {
			s.TriggerMode = snippet.ModeWord
		}
		if err := s.Validate(); err != nil {
			return nil, nil, newOpError("read", f.path, fmt.Errorf("entry %d: %w", i, err))
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
			s.UpdatedAt = now
		}
		set[s.ID] = s
	}
	return set, raw, nil
}

// writeLocked persists the current set atomically. Callers hold f.mu.
func (f *File) writeLocked() error {
	list := make([]*snippet.Snippet, 0, len(f.snippets))
	for _, s := range f.snippets {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Trigger != list[j].Trigger {
			return list[i].Trigger < list[j].Trigger
		}
		return list[i].ID < list[j].ID
	})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fileDocument{Snippets: list}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snippets-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	f.lastWrite = buf.Bytes()
	return nil
}

// Snippets implements Store.
func (f *File) Snippets(ctx context.Context) (snippet.Set, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.snippets.Clone(), nil
}

// Get implements Store.
func (f *File) Get(ctx context.Context, id string) (*snippet.Snippet, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	s, ok := f.snippets[id]
	if !ok {
		return nil, newOpError("get", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// Put implements Store.
func (f *File) Put(ctx context.Context, s *snippet.Snippet) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if err := prepare(s, f.snippets, f.now()); err != nil {
		f.mu.Unlock()
		return err
	}
	prev, had := f.snippets[s.ID]
	f.snippets[s.ID] = s.Clone()
	if err := f.writeLocked(); err != nil {
		if had {
			f.snippets[s.ID] = prev
		} else {
			delete(f.snippets, s.ID)
		}
		f.mu.Unlock()
		return newOpError("put", s.Trigger, err)
	}
	f.mu.Unlock()

	f.notifier.NotifySet(snippetPath(s.ID), s.Clone(), "file")
	return nil
}

// Delete implements Store.
func (f *File) Delete(ctx context.Context, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	prev, ok := f.snippets[id]
	if !ok {
		f.mu.Unlock()
		return newOpError("delete", id, ErrNotFound)
	}
	delete(f.snippets, id)
	if err := f.writeLocked(); err != nil {
		f.snippets[id] = prev
		f.mu.Unlock()
		return newOpError("delete", id, err)
	}
	f.mu.Unlock()

	f.notifier.NotifyDelete(snippetPath(id), "file")
	return nil
}

// IncrementUsage implements Store.
func (f *File) IncrementUsage(ctx context.Context, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	s, ok := f.snippets[id]
	if !ok {
		return newOpError("increment usage", id, ErrNotFound)
	}
	s.UsageCount++
	if err := f.writeLocked(); err != nil {
		s.UsageCount--
		return newOpError("increment usage", id, err)
	}
	return nil
}

// Subscribe implements Store.
func (f *File) Subscribe(observer notify.Observer) *notify.Subscription {
	return f.notifier.SubscribePath(notify.PathSnippets, observer)
}

// Watch starts reloading the file when another program changes it.
func (f *File) Watch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.watcher != nil {
		return nil
	}
	w, err := watch.New(watch.WithErrorHandler(func(err error) {
		f.logger.Warn("snippet file watch: %v", err)
	}))
	if err != nil {
		return newOpError("watch", f.path, err)
	}
	if err := w.Add(f.path); err != nil {
		w.Close()
		return newOpError("watch", f.path, err)
	}
	w.OnChange(func(watch.Event) { f.Reload() })
	f.watcher = w
	return nil
}

// Reload re-reads the file and publishes a reload if its content differs
// from what this store last wrote. A file that fails to parse leaves the
// current snippets in place.
func (f *File) Reload() {
	set, raw, err := f.read()
	if err != nil {
		f.logger.Warn("snippet file reload failed: %v", err)
		return
	}

	f.mu.Lock()
	if f.closed || bytes.Equal(raw, f.lastWrite) {
		f.mu.Unlock()
		return
	}
	f.snippets = set
	f.lastWrite = raw
	f.mu.Unlock()

	f.logger.Info("reloaded %d snippets from %s", len(set), f.path)
	f.notifier.NotifyReload(notify.PathSnippets, "file")
}

// Close implements Store.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	w := f.watcher
	f.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	f.notifier.Close()
	return err
}
