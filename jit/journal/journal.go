// Package journal keeps a SQLite log of compile attempts: which code was
// compiled for which stage, whether it failed and why, and the IL of the
// installed program.
package journal

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/tliron/commonlog"
	"github.com/zeebo/xxh3"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("pgjit.journal")

// Outcomes of a compile attempt.
const (
	Compiled = "compiled"
	Failed   = "failed"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Entry is one compile attempt.
type Entry struct {
	ID          int64
	Session     string
	Code        string
	Fingerprint string
	Stage       string
	Outcome     string
	Reason      string
	NativeSize  int
	IL          []byte
	Created     time.Time
}

// Filter selects entries. Empty fields match everything; Limit zero means
// no limit.
type Filter struct {
	Session string
	Code    string
	Outcome string
	Limit   int
}

// Journal is a compile log backed by a SQLite database.
type Journal struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// Fingerprint identifies bytecode independently of the code object's name.
func Fingerprint(bytecode []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(bytecode))
}

// Open opens or creates the journal at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One connection keeps in-memory databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS compiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		code TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		stage TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		native_size INTEGER NOT NULL DEFAULT 0,
		il BLOB,
		created INTEGER NOT NULL
	)`)
	if err == nil {
		_, err = db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS compiles_code ON compiles (code, fingerprint)")
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Debugf("opened %s", path)
	return &Journal{db: db, path: path}, nil
}

// Path returns the database path the journal was opened with.
func (j *Journal) Path() string {
	return j.path
}

// Record appends e. A zero Created time is set to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	il, err := compress(e.IL)
	if err != nil {
		return fmt.Errorf("compressing IL: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO compiles (session, code, fingerprint, stage, outcome, reason, native_size, il, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.Code, e.Fingerprint, e.Stage, e.Outcome, e.Reason, e.NativeSize, il, e.Created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.Code, err)
	}
	return nil
}

// Entries returns the entries matching f in insertion order.
func (j *Journal) Entries(ctx context.Context, f Filter) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	var where []string
	var args []any
	for _, c := range []struct{ col, val string }{
		{"session", f.Session},
		{"code", f.Code},
		{"outcome", f.Outcome},
	} {
		if c.val != "" {
			where = append(where, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	query := "SELECT id, session, code, fingerprint, stage, outcome, reason, native_size, il, created FROM compiles"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var il []byte
		var created int64
		err := rows.Scan(&e.ID, &e.Session, &e.Code, &e.Fingerprint, &e.Stage, &e.Outcome, &e.Reason, &e.NativeSize, &il, &created)
		if err != nil {
			return nil, fmt.Errorf("scanning journal: %w", err)
		}
		if e.IL, err = decompress(il); err != nil {
			return nil, fmt.Errorf("decompressing IL of entry %d: %w", e.ID, err)
		}
		e.Created = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database. Record and Entries fail with ErrClosed
// afterwards; closing again is a no-op.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func compress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
}
