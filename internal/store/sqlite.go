package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dshills/textstorm/internal/logging"
	"github.com/dshills/textstorm/internal/notify"
	"github.com/dshills/textstorm/internal/snippet"
)

//go:embed schema.sql
var schemaSQL string

// migration is a schema change applied once, in version order.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{Version: 1, Name: "trigger_index", SQL: `CREATE INDEX IF NOT EXISTS idx_snippets_trigger ON snippets(trigger)`},
	{Version: 2, Name: "dynamic_column", SQL: `ALTER TABLE snippets ADD COLUMN dynamic TEXT NOT NULL DEFAULT ''`},
}

const snippetColumns = `id, trigger, expansion, enabled, case_sensitive, trigger_mode,
	description, tags, usage_count, created_at, updated_at, dynamic`

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db       *sql.DB
	notifier *notify.Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithSQLiteLogger sets the logger.
func WithSQLiteLogger(l *logging.Logger) SQLiteOption {
	return func(s *SQLite) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSQLiteClock sets the clock used for timestamps.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLite) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations. ":memory:" opens a private in-memory database.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, newOpError("open", "", errors.New("empty database path"))
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, newOpError("open", path, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, newOpError("open", path, err)
	}
	if path == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, newOpError("open", path, fmt.Errorf("%s: %w", p, err))
		}
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, newOpError("migrate", path, err)
	}

	s := &SQLite{
		db:       db,
		notifier: notify.New(),
		logger:   logging.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLite) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row rowScanner) (*snippet.Snippet, error) {
	var (
		sn               snippet.Snippet
		enabled, folded  int
		mode             string
		tags, dynamic    string
		created, updated int64
	)
	if err := row.Scan(&sn.ID, &sn.Trigger, &sn.Expansion, &enabled, &folded, &mode,
		&sn.Description, &tags, &sn.UsageCount, &created, &updated, &dynamic); err != nil {
		return nil, err
	}
	sn.Enabled = enabled != 0
	sn.CaseSensitive = folded != 0
	sn.TriggerMode = snippet.TriggerMode(mode)
	sn.CreatedAt = time.Unix(0, created).UTC()
	sn.UpdatedAt = time.Unix(0, updated).UTC()
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &sn.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", sn.ID, err)
		}
	}
	if dynamic != "" {
		sn.Dynamic = &snippet.Dynamic{}
		if err := json.Unmarshal([]byte(dynamic), sn.Dynamic); err != nil {
			return nil, fmt.Errorf("decode dynamic config of %s: %w", sn.ID, err)
		}
	}
	return &sn, nil
}

// Snippets implements Store.
func (s *SQLite) Snippets(ctx context.Context) (snippet.Set, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+snippetColumns+" FROM snippets")
	if err != nil {
		return nil, newOpError("list", "", s.wrapClosed(err))
	}
	defer rows.Close()

	out := make(snippet.Set)
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, newOpError("list", "", err)
		}
		out[sn.ID] = sn
	}
	if err := rows.Err(); err != nil {
		return nil, newOpError("list", "", err)
	}
	return out, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, id string) (*snippet.Snippet, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+snippetColumns+" FROM snippets WHERE id = ?", id)
	sn, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newOpError("get", id, ErrNotFound)
	}
	if err != nil {
		return nil, newOpError("get", id, s.wrapClosed(err))
	}
	return sn, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, sn *snippet.Snippet) error {
	if sn == nil {
		return prepare(sn, nil, s.now())
	}
	err := withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		related, err := s.related(ctx, tx, sn)
		if err != nil {
			return err
		}
		if err := prepare(sn, related, s.now()); err != nil {
			return err
		}

		tags, err := json.Marshal(sn.Tags)
		if err != nil {
			return err
		}
		var dynamic []byte
		if sn.Dynamic != nil {
			if dynamic, err = json.Marshal(sn.Dynamic); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO snippets (`+snippetColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				trigger = excluded.trigger,
				expansion = excluded.expansion,
				enabled = excluded.enabled,
				case_sensitive = excluded.case_sensitive,
				trigger_mode = excluded.trigger_mode,
				description = excluded.description,
				tags = excluded.tags,
				usage_count = excluded.usage_count,
				updated_at = excluded.updated_at,
				dynamic = excluded.dynamic`,
			sn.ID, sn.Trigger, sn.Expansion, boolInt(sn.Enabled), boolInt(sn.CaseSensitive),
			string(sn.TriggerMode), sn.Description, string(tags), sn.UsageCount,
			sn.CreatedAt.UnixNano(), sn.UpdatedAt.UnixNano(), string(dynamic))
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		var opErr *OperationError
		if errors.As(err, &opErr) {
			return err
		}
		return newOpError("put", sn.Trigger, s.wrapClosed(err))
	}

	s.notifier.NotifySet(snippetPath(sn.ID), sn.Clone(), "sqlite")
	return nil
}

// related loads the stored row for sn.ID and any enabled snippets sharing
// its trigger.
func (s *SQLite) related(ctx context.Context, tx *sql.Tx, sn *snippet.Snippet) (snippet.Set, error) {
	rows, err := tx.QueryContext(ctx, "SELECT "+snippetColumns+
		" FROM snippets WHERE id = ? OR (trigger = ? AND enabled = 1)", sn.ID, sn.Trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(snippet.Set)
	for rows.Next() {
		r, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	var affected int64
	err := withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM snippets WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return newOpError("delete", id, s.wrapClosed(err))
	}
	if affected == 0 {
		return newOpError("delete", id, ErrNotFound)
	}
	s.notifier.NotifyDelete(snippetPath(id), "sqlite")
	return nil
}

// IncrementUsage implements Store.
func (s *SQLite) IncrementUsage(ctx context.Context, id string) error {
	var affected int64
	err := withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "UPDATE snippets SET usage_count = usage_count + 1 WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return newOpError("increment usage", id, s.wrapClosed(err))
	}
	if affected == 0 {
		return newOpError("increment usage", id, ErrNotFound)
	}
	return nil
}

// Subscribe implements Store.
func (s *SQLite) Subscribe(observer notify.Observer) *notify.Subscription {
	return s.notifier.SubscribePath(notify.PathSnippets, observer)
}

// Watch polls the database for writes made by other processes (such as
// the snippet subcommands) and publishes a reload when the snippet table
// changes. It returns when ctx is done.
func (s *SQLite) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	last, err := s.fingerprint(ctx)
	if err != nil {
		return newOpError("watch", "", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		fp, err := s.fingerprint(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("snippet poll failed: %v", err)
			continue
		}
		if fp != last {
			last = fp
			s.logger.Debug("snippet table changed externally")
			s.notifier.NotifyReload(notify.PathSnippets, "sqlite")
		}
	}
}

// fingerprint summarizes the snippet table, ignoring usage counters.
func (s *SQLite) fingerprint(ctx context.Context) (string, error) {
	var count, latest int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MAX(updated_at), 0) FROM snippets").Scan(&count, &latest)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%d", count, latest), nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	s.notifier.Close()
	return s.db.Close()
}

func (s *SQLite) wrapClosed(err error) error {
	if errors.Is(err, sql.ErrConnDone) || (err != nil && strings.Contains(err.Error(), "database is closed")) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

// withBusyRetry retries fn while SQLite reports the database busy.
func withBusyRetry(ctx context.Context, fn func() error) error {
	const attempts = 5
	backoff := 20 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
