// Package reportdb records checking runs and their diagnostics in SQLite.
package reportdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/funvibe/funcore/internal/diagnostics"
	"github.com/funvibe/funcore/internal/term"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started     INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	definitions INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	warnings    INTEGER NOT NULL,
	goals       INTEGER NOT NULL,
	inputs      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS diagnostics (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	code       TEXT NOT NULL,
	level      TEXT NOT NULL,
	file       TEXT NOT NULL,
	line       INTEGER NOT NULL,
	col        INTEGER NOT NULL,
	definition TEXT NOT NULL,
	message    TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Run summarizes one checking run.
type Run struct {
	ID          string
	Started     time.Time
	Duration    time.Duration
	Definitions int
	Errors      int
	Warnings    int
	Goals       int
	Inputs      []string
}

// Record is a stored diagnostic.
type Record struct {
	Code       string
	Level      string
	File       string
	Line       int
	Column     int
	Definition string
	Message    string
}

func (r Record) String() string {
	var sb strings.Builder
	if r.File != "" || r.Line > 0 {
		sb.WriteString(term.Position{File: r.File, Line: r.Line, Column: r.Column}.String())
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "%s %s: %s", r.Level, r.Code, r.Message)
	if r.Definition != "" {
		fmt.Fprintf(&sb, " (in %s)", r.Definition)
	}
	return sb.String()
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening report db %s: %w", path, err)
	}
	// One connection serializes writers; SQLite locks the file anyway.
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA foreign_keys = ON", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing report db %s: %w", path, err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordRun stores a run together with its diagnostics.
func (s *Store) RecordRun(ctx context.Context, run Run, diags []*diagnostics.DiagnosticError) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started, duration_ns, definitions, errors, warnings, goals, inputs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Started.UnixNano(), int64(run.Duration), run.Definitions,
		run.Errors, run.Warnings, run.Goals, strings.Join(run.Inputs, "\n"))
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO diagnostics (run_id, seq, code, level, file, line, col, definition, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	defer stmt.Close()
	for i, d := range diags {
		_, err = stmt.ExecContext(ctx, run.ID, i, string(d.Code), d.Level.String(),
			d.Pos.File, d.Pos.Line, d.Pos.Column, d.Definition, d.Message)
		if err != nil {
			return fmt.Errorf("recording diagnostic %d of run %s: %w", i, run.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, started, duration_ns, definitions, errors, warnings, goals, inputs
	      FROM runs ORDER BY started DESC, id`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			duration int64
			inputs   string
		)
		if err := rows.Scan(&r.ID, &started, &duration, &r.Definitions, &r.Errors, &r.Warnings, &r.Goals, &inputs); err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		r.Started = time.Unix(0, started)
		r.Duration = time.Duration(duration)
		if inputs != "" {
			r.Inputs = strings.Split(inputs, "\n")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Diagnostics returns the diagnostics of a run in the order they were
// recorded.
func (s *Store) Diagnostics(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, level, file, line, col, definition, message
		 FROM diagnostics WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("reading diagnostics of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Code, &r.Level, &r.File, &r.Line, &r.Column, &r.Definition, &r.Message); err != nil {
			return nil, fmt.Errorf("reading diagnostics of %s: %w", runID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
