package storage

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// SchemaVersion is the current version of the monit schema.
const SchemaVersion = 3

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// migrations holds the statements that move the schema from version v to v+1.
var migrations = map[int][]string{
	1: {
		"ALTER TABLE process_service ADD COLUMN type INTEGER",
		"ALTER TABLE process_service ADD COLUMN status_message VARCHAR(255)",
		"ALTER TABLE system_service ADD COLUMN type INTEGER",
		"ALTER TABLE filesystem_service ADD COLUMN type INTEGER",
		"ALTER TABLE filesystem_service ADD COLUMN status_message VARCHAR(255)",
		"ALTER TABLE directory_service ADD COLUMN type INTEGER",
		"ALTER TABLE directory_service ADD COLUMN status_message VARCHAR(255)",
		"ALTER TABLE file_service ADD COLUMN type INTEGER",
		"ALTER TABLE file_service ADD COLUMN status_message VARCHAR(255)",
		"ALTER TABLE event ADD COLUMN service_type INTEGER",
	},
	2: {
		"ALTER TABLE host_service ADD COLUMN type INTEGER",
		"ALTER TABLE host_service ADD COLUMN status_message VARCHAR(255)",
	},
}

// baseTables is the version 1 layout.
var baseTables = []string{
	`CREATE TABLE monit (
		id INTEGER PRIMARY KEY,
		db_version INTEGER DEFAULT 1,
		address VARCHAR(255),
		port INTEGER,
		ssl INTEGER,
		uptime INTEGER,
		incarnation INTEGER,
		version VARCHAR(255),
		localhostname VARCHAR(255) NOT NULL,
		monitid VARCHAR(255) NOT NULL,
		platform_name VARCHAR(255),
		platform_machine VARCHAR(255),
		platform_version VARCHAR(255),
		platform_memory VARCHAR(255),
		platform_release VARCHAR(255),
		platform_cpu INTEGER,
		startdelay INTEGER,
		controlfile VARCHAR(255),
		poll INTEGER
	)`,

	`CREATE TABLE system_service (
		id INTEGER PRIMARY KEY,
		monit_id INTEGER NOT NULL,
		status INTEGER NOT NULL,
		monitormode INTEGER NOT NULL,
		monitor INTEGER NOT NULL,
		collected_sec INTEGER NOT NULL,
		name VARCHAR(255) NOT NULL,
		groupname VARCHAR(255),
		status_message VARCHAR(255),
		pendingaction INTEGER,
		load_avg01 REAL DEFAULT 0,
		load_avg05 REAL DEFAULT 0,
		load_avg15 REAL DEFAULT 0,
		cpu_wait REAL DEFAULT 0,
		cpu_user REAL DEFAULT 0,
		cpu_system REAL DEFAULT 0,
		memory_kilobyte REAL DEFAULT 0,
		memory_percent REAL DEFAULT 0
	)`,

	`CREATE TABLE process_service (
		id INTEGER PRIMARY KEY,
		monit_id INTEGER NOT NULL,
		status INTEGER NOT NULL,
		monitormode INTEGER NOT NULL,
		monitor INTEGER NOT NULL,
		collected_sec INTEGER NOT NULL,
		name VARCHAR(255) NOT NULL,
		groupname VARCHAR(255),
		pendingaction INTEGER,
		uptime INTEGER,
		pid INTEGER NOT NULL,
		ppid INTEGER,
		children INTEGER,
		cpu_percent REAL,
		cpu_percenttotal REAL,
		memory_kilobyte REAL,
		memory_kilobytetotal REAL,
		memory_percent REAL,
		memory_percenttotal REAL
	)`,

	`CREATE TABLE directory_service (
		id INTEGER PRIMARY KEY,
		monit_id INTEGER NOT NULL,
		status INTEGER NOT NULL,
		monitormode INTEGER NOT NULL,
		monitor INTEGER NOT NULL,
		collected_sec INTEGER NOT NULL,
		name VARCHAR(255) NOT NULL,
		groupname VARCHAR(255),
		pendingaction INTEGER,
		timestamp INTEGER,
		mode INTEGER,
		gid INTEGER,
		uid INTEGER
	)`,

	`CREATE TABLE file_service (
		id INTEGER PRIMARY KEY,
		monit_id INTEGER NOT NULL,
		status INTEGER NOT NULL,
		monitormode INTEGER NOT NULL,
		monitor INTEGER NOT NULL,
		collected_sec INTEGER NOT NULL,
		name VARCHAR(255) NOT NULL,
		groupname VARCHAR(255),
		pendingaction INTEGER,
		timestamp INTEGER,
		size INTEGER,
		mode INTEGER,
		gid INTEGER,
		uid INTEGER
	)`,

	`CREATE TABLE filesystem_service (
		id INTEGER PRIMARY KEY,
		monit_id INTEGER NOT NULL,
		status INTEGER NOT NULL,
		monitormode INTEGER NOT NULL,
		monitor INTEGER NOT NULL,
		collected_sec INTEGER NOT NULL,
		name VARCHAR(255) NOT NULL,
		groupname VARCHAR(255),
		pendingaction INTEGER,
		mode INTEGER,
		gid INTEGER,
		uid INTEGER,
		flags INTEGER,
		block_percent REAL NOT NULL,
		block_usage REAL NOT NULL,
		block_total REAL NOT NULL,
		inode_percent REAL,
		inode_usage REAL,
		inode_total REAL
	)`,

	`CREATE TABLE host_service (
		id INTEGER PRIMARY KEY,
		monit_id INTEGER NOT NULL,
		status INTEGER NOT NULL,
		monitormode INTEGER NOT NULL,
		monitor INTEGER NOT NULL,
		collected_sec INTEGER NOT NULL,
		name VARCHAR(255) NOT NULL,
		groupname VARCHAR(255),
		pendingaction INTEGER
	)`,

	`CREATE TABLE host_icmp (
		id INTEGER PRIMARY KEY,
		host_id INTEGER NOT NULL,
		type VARCHAR(255),
		responsetime REAL
	)`,

	`CREATE TABLE host_port (
		id INTEGER PRIMARY KEY,
		host_id INTEGER NOT NULL,
		type VARCHAR(255),
		responsetime REAL,
		portnumber INTEGER,
		request VARCHAR(255),
		hostname VARCHAR(255),
		protocol VARCHAR(255)
	)`,

	`CREATE TABLE event (
		id INTEGER PRIMARY KEY,
		service_id INTEGER NOT NULL,
		type INTEGER NOT NULL,
		collected_sec INTEGER NOT NULL,
		state INTEGER,
		action INTEGER,
		message VARCHAR(255) NOT NULL,
		groupname VARCHAR(255)
	)`,
}

// Bootstrap creates every table at version 1 and then applies all
// migrations, leaving an empty database at SchemaVersion.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin bootstrap")
	}
	defer tx.Rollback()

	for _, stmt := range baseTables {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute: %s", stmt)
		}
	}
	if err := applyMigrations(ctx, tx, 1, SchemaVersion); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit bootstrap")
}

// Upgrade applies the migrations from version from up to version to in
// order. The first failing statement aborts the upgrade and nothing is
// applied. Updating the stored version is left to the caller.
func Upgrade(ctx context.Context, db *sql.DB, from, to int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin upgrade")
	}
	defer tx.Rollback()

	if err := applyMigrations(ctx, tx, from, to); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit upgrade")
}

func applyMigrations(ctx context.Context, ex execer, from, to int) error {
	for v := from; v < to; v++ {
		stmts, ok := migrations[v]
		if !ok {
			return errors.Errorf("no migration from schema version %d", v)
		}
		for _, stmt := range stmts {
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "migration %d->%d failed on %q", v, v+1, stmt)
			}
		}
	}
	return nil
}
