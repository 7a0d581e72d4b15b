// Package history is the operator-facing audit trail (C8): every instance
// run is recorded for after-the-fact inspection. It deliberately does not
// participate in scheduling or job resumption — restart decisions are
// made purely from the live child-process state (spec.md §4.4), never
// from what this ledger remembers.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/ghrunners/fleet/history/migratesqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger records instance run history to a local SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies every pending migration.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: enabling WAL mode: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: loading embedded migrations: %w", err)
	}
	dbDriver, err := migratesqlite.WithInstance(db)
	if err != nil {
		return fmt.Errorf("history: wrapping sqlite connection: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("history: constructing migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("history: applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RunID identifies one recorded run.
type RunID int64

// RecordStart inserts a new run row and returns its ID.
func (l *Ledger) RecordStart(ctx context.Context, role string, slot uint8, runnerName string) (RunID, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (role, slot, runner_name, started_at, exit_status) VALUES (?, ?, ?, ?, 'running')`,
		role, slot, runnerName, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("history: recording run start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: reading inserted run id: %w", err)
	}
	return RunID(id), nil
}

// RecordEnd updates a previously started run with its terminal status
// ("exited", "errored", "killed").
func (l *Ledger) RecordEnd(ctx context.Context, id RunID, status string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, exit_status = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, int64(id))
	if err != nil {
		return fmt.Errorf("history: recording run end: %w", err)
	}
	return nil
}

// Run is one historical instance run.
type Run struct {
	ID         RunID
	Role       string
	Slot       uint8
	RunnerName string
	StartedAt  string
	EndedAt    sql.NullString
	ExitStatus string
}

// Recent returns the most recent limit runs, newest first, optionally
// filtered to a single role (empty role means all roles).
func (l *Ledger) Recent(ctx context.Context, role string, limit int) ([]Run, error) {
	query := `SELECT id, role, slot, runner_name, started_at, ended_at, exit_status FROM runs`
	args := []any{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: querying recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Role, &r.Slot, &r.RunnerName, &r.StartedAt, &r.EndedAt, &r.ExitStatus); err != nil {
			return nil, fmt.Errorf("history: scanning run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
