package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DiagRecord is one failed compilation.
type DiagRecord struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Author  string    `json:"author,omitempty"`
	Script  string    `json:"script,omitempty"`
	Source  string    `json:"source"`
	Line    int       `json:"line"`
	Column  int       `json:"column"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Grammar string    `json:"grammar"`
}

const diagSchema = `CREATE TABLE IF NOT EXISTS diagnostics (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	time    INTEGER NOT NULL,
	author  TEXT NOT NULL DEFAULT '',
	script  TEXT NOT NULL DEFAULT '',
	source  TEXT NOT NULL,
	line    INTEGER NOT NULL,
	col     INTEGER NOT NULL,
	code    TEXT NOT NULL,
	message TEXT NOT NULL,
	grammar TEXT NOT NULL DEFAULT ''
)`

const diagIndex = `CREATE INDEX IF NOT EXISTS diagnostics_author ON diagnostics(author, time)`

// DiagLog persists compile diagnostics in SQLite so authors can review
// failures after the fact.
type DiagLog struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration
}

// OpenDiagLog opens a SQLite3 database, sets WAL mode and busy timeout, and
// creates the diagnostics table.
func OpenDiagLog(path string, timeoutSec int) (*DiagLog, error) {
	if timeoutSec <= 0 {
		timeoutSec = 5
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000),
		diagSchema,
		diagIndex,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("diaglog: init %s: %w", path, err)
		}
	}
	return &DiagLog{db: db, path: path, timeout: time.Duration(timeoutSec) * time.Second}, nil
}

// Close closes the database.
func (l *DiagLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		err := l.db.Close()
		l.db = nil
		return err
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (l *DiagLog) Path() string { return l.path }

// Record appends a diagnostic. A zero Time is stamped with now.
func (l *DiagLog) Record(rec *DiagRecord) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return fmt.Errorf("diaglog: closed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO diagnostics (time, author, script, source, line, col, code, message, grammar)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UnixNano(), rec.Author, rec.Script, rec.Source,
		rec.Line, rec.Column, rec.Code, rec.Message, rec.Grammar)
	if err != nil {
		return fmt.Errorf("diaglog: insert: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns up to limit diagnostics, newest first. An empty author
// returns every author's diagnostics.
func (l *DiagLog) Recent(author string, limit int) ([]DiagRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil, fmt.Errorf("diaglog: closed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	q := `SELECT id, time, author, script, source, line, col, code, message, grammar FROM diagnostics`
	args := []any{}
	if author != "" {
		q += ` WHERE author = ? COLLATE NOCASE`
		args = append(args, author)
	}
	q += ` ORDER BY time DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("diaglog: query: %w", err)
	}
	defer rows.Close()

	var out []DiagRecord
	for rows.Next() {
		var rec DiagRecord
		var nanos int64
		if err := rows.Scan(&rec.ID, &nanos, &rec.Author, &rec.Script, &rec.Source,
			&rec.Line, &rec.Column, &rec.Code, &rec.Message, &rec.Grammar); err != nil {
			return nil, err
		}
		rec.Time = time.Unix(0, nanos).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes diagnostics older than before and returns how many went.
func (l *DiagLog) Prune(before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return 0, fmt.Errorf("diaglog: closed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx, `DELETE FROM diagnostics WHERE time < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("diaglog: prune: %w", err)
	}
	return res.RowsAffected()
}

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (l *DiagLog) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return fmt.Errorf("diaglog: closed")
	}
	_, err := l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
