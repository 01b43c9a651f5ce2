// Package storage provides SQLite persistence for monit reports.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/util"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	log     *util.Logger
	version int
}

// Options tunes how the database is opened.
type Options struct {
	BusyTimeout time.Duration
	Logger      *util.Logger
}

// Open opens the database at path, creating the schema on first use and
// upgrading older schemas. A failed upgrade is logged and the database keeps
// running at its old version.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	if opts.Logger == nil {
		opts.Logger = util.GetLogger()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, errors.Wrap(err, "failed to create database dir")
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=%d", path, opts.BusyTimeout.Milliseconds())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB, log: opts.Logger.Named("storage")}
	if err := db.ensureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	var stored sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT db_version FROM monit LIMIT 1").Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		db.version = SchemaVersion
		return nil
	case err != nil && isMissingTable(err):
		db.log.Debug("Error fetching db_version (%v), creating tables", err)
		if err := Bootstrap(ctx, db.DB); err != nil {
			return errors.Wrap(err, "failed to create tables")
		}
		db.version = SchemaVersion
		return nil
	case err != nil:
		return errors.Wrap(err, "failed to read schema version")
	}

	current := 1
	if stored.Valid {
		current = int(stored.Int64)
	}
	db.log.Debug("Schema version in database is %d, current version is %d", current, SchemaVersion)
	db.version = current

	if current >= SchemaVersion {
		if current > SchemaVersion {
			db.log.Warn("Schema version %d is newer than supported version %d", current, SchemaVersion)
		}
		return nil
	}

	if err := db.Migrate(ctx, current); err != nil {
		db.log.Warn("Database upgrade from version %d to version %d failed (%v)", current, SchemaVersion, err)
	}
	return nil
}

// Migrate upgrades the schema from version from to SchemaVersion and records
// the new version on every monit row.
func (db *DB) Migrate(ctx context.Context, from int) error {
	if err := Upgrade(ctx, db.DB, from, SchemaVersion); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "UPDATE monit SET db_version = ?", SchemaVersion); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	db.version = SchemaVersion
	return nil
}

// Version returns the schema version the database is running at.
func (db *DB) Version() int {
	return db.version
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// WithTx runs fn in a transaction, committing when it returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func isMissingTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}
