// Package history keeps the most recent transcriptions in a small SQLite
// database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"region-ocr/src/sink"
	"region-ocr/src/transcribe"
)

const DefaultLimit = 20

type Entry struct {
	ID               string           `json:"id"`
	Time             time.Time        `json:"time"`
	Source           string           `json:"source"`
	Mode             string           `json:"mode"`
	Rows             []transcribe.Row `json:"rows"`
	LineCount        int              `json:"line_count"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
}

// Text joins the entry's rows with newlines.
func (e Entry) Text() string {
	r := transcribe.Result{Rows: e.Rows}
	return r.Text()
}

// Output converts the entry back to a renderable result.
func (e Entry) Output() *sink.Output {
	return &sink.Output{
		ID:             e.ID,
		Time:           e.Time,
		Source:         e.Source,
		Mode:           e.Mode,
		Rows:           e.Rows,
		ProcessingTime: time.Duration(e.ProcessingTimeMs) * time.Millisecond,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS history (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	created_ns INTEGER NOT NULL,
	source     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	rows_json  TEXT NOT NULL,
	line_count INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL
)`

// Store is safe for concurrent use.
type Store struct {
	db    *sql.DB
	limit int
}

// Open opens (creating if needed) the history database at path. limit
// caps the number of entries kept; <= 0 uses DefaultLimit.
func Open(path string, limit int) (*Store, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One connection keeps pragmas and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: init: %w", err)
		}
	}
	return &Store{db: db, limit: limit}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Append records out and drops the oldest entries beyond the limit. The
// stored entry is returned with its generated ID.
func (s *Store) Append(ctx context.Context, out *sink.Output) (Entry, error) {
	e := Entry{
		ID:               out.ID,
		Time:             out.Time,
		Source:           out.Source,
		Mode:             out.Mode,
		Rows:             out.Rows,
		LineCount:        len(out.Rows),
		ProcessingTimeMs: out.ProcessingTime.Milliseconds(),
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Rows == nil {
		e.Rows = []transcribe.Row{}
	}
	rows, err := json.Marshal(e.Rows)
	if err != nil {
		return Entry{}, fmt.Errorf("history: encode rows: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (id, created_ns, source, mode, rows_json, line_count, elapsed_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UnixNano(), e.Source, e.Mode, string(rows), e.LineCount, e.ProcessingTimeMs,
	); err != nil {
		return Entry{}, fmt.Errorf("history: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE seq NOT IN (SELECT seq FROM history ORDER BY seq DESC LIMIT ?)`,
		s.limit,
	); err != nil {
		return Entry{}, fmt.Errorf("history: trim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("history: commit: %w", err)
	}
	return e, nil
}

// List returns up to n entries, newest first. n <= 0 returns all kept
// entries.
func (s *Store) List(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = s.limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_ns, source, mode, rows_json, line_count, elapsed_ms FROM history ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			ns      int64
			rowJSON string
		)
		if err := rows.Scan(&e.ID, &ns, &e.Source, &e.Mode, &rowJSON, &e.LineCount, &e.ProcessingTimeMs); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Time = time.Unix(0, ns)
		if err := json.Unmarshal([]byte(rowJSON), &e.Rows); err != nil {
			return nil, fmt.Errorf("history: decode rows of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the entry with the given ID, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	var (
		e       Entry
		ns      int64
		rowJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_ns, source, mode, rows_json, line_count, elapsed_ms FROM history WHERE id = ?`, id,
	).Scan(&e.ID, &ns, &e.Source, &e.Mode, &rowJSON, &e.LineCount, &e.ProcessingTimeMs)
	if err != nil {
		return Entry{}, err
	}
	e.Time = time.Unix(0, ns)
	if err := json.Unmarshal([]byte(rowJSON), &e.Rows); err != nil {
		return Entry{}, fmt.Errorf("history: decode rows of %s: %w", e.ID, err)
	}
	return e, nil
}

// Clear removes every entry and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("history: clear: %w", err)
	}
	return res.RowsAffected()
}
