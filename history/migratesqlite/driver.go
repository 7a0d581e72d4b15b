// Package migratesqlite adapts a database/sql connection using the pure-Go
// modernc.org/sqlite driver to golang-migrate/migrate/v4's database.Driver
// interface. golang-migrate's own sqlite3 contrib driver requires the cgo
// mattn/go-sqlite3 driver; this package gives the same migration-tooling
// experience (versioned .sql files, dirty-state tracking) over the
// already-wired pure-Go driver instead.
package migratesqlite

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4/database"
)

const versionTable = "schema_migrations"

// Driver implements golang-migrate/migrate/v4/database.Driver.
type Driver struct {
	db *sql.DB
}

var _ database.Driver = (*Driver)(nil)

// WithInstance wraps an already-open *sql.DB, ensuring the version-tracking
// table exists.
func WithInstance(db *sql.DB) (*Driver, error) {
	d := &Driver{db: db}
	if err := d.ensureVersionTable(); err != nil {
		return nil, fmt.Errorf("migratesqlite: ensuring version table: %w", err)
	}
	return d, nil
}

func (d *Driver) ensureVersionTable() error {
	_, err := d.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL, dirty BOOLEAN NOT NULL)`, versionTable))
	return err
}

// Open is required by database.Driver's URL-based factory pattern; this
// adapter is only ever constructed via WithInstance over a caller-owned
// connection, so Open is unreachable in practice.
func (d *Driver) Open(url string) (database.Driver, error) {
	return nil, fmt.Errorf("migratesqlite: Open(%q) unsupported, use WithInstance", url)
}

// Close is a no-op: the wrapped *sql.DB is owned by the caller.
func (d *Driver) Close() error { return nil }

// Lock is a no-op: sqlite already serializes writers, and the history
// ledger runs its migrations once at process startup before any
// concurrent access begins.
func (d *Driver) Lock() error { return nil }

// Unlock is a no-op; see Lock.
func (d *Driver) Unlock() error { return nil }

// Run executes one migration's SQL verbatim.
func (d *Driver) Run(migration io.Reader) error {
	data, err := io.ReadAll(migration)
	if err != nil {
		return fmt.Errorf("migratesqlite: reading migration: %w", err)
	}
	if _, err := d.db.Exec(string(data)); err != nil {
		return fmt.Errorf("migratesqlite: applying migration: %w", err)
	}
	return nil
}

// SetVersion records the current schema version and dirty flag.
func (d *Driver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", versionTable)); err != nil {
		tx.Rollback()
		return err
	}
	if version >= 0 {
		if _, err := tx.Exec(fmt.Sprintf("INSERT INTO %s (version, dirty) VALUES (?, ?)", versionTable), version, dirty); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Version reports the current schema version, or -1 if none has been
// applied yet.
func (d *Driver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := d.db.QueryRow(fmt.Sprintf("SELECT version, dirty FROM %s LIMIT 1", versionTable)).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return -1, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

// Drop removes every table in the database, including the version table.
func (d *Driver) Drop() error {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	rows.Close()
	for _, t := range tables {
		if _, err := d.db.Exec(fmt.Sprintf("DROP TABLE %s", t)); err != nil {
			return err
		}
	}
	return nil
}
