// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

// Package basedb opens the shared SQLite handle and owns the engine's
// bookkeeping tables.
package basedb

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver.
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hearthdb/hearth/dbutil/migrate"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
)

// VersionTable records which bookkeeping migrations have been applied.
const VersionTable = "_hearth_migrations"

var (
	mon = monkit.Package()

	// Error represents errors from the database handle.
	Error = errs.Class("basedb")
	// ErrSystemTable means an operation targeted a reserved table.
	ErrSystemTable = errs.Class("system table protected")
)

// Config configures the database.
type Config struct {
	// Path is the location of the SQLite database file.
	Path string
}

// DB is the shared database handle all engine operations run through.
//
// Foreign-key enforcement stays at the driver default (off): referential
// validation is an explicit engine operation and restore recreates whole
// table sets.
type DB struct {
	*sql.DB

	log    *zap.Logger
	config Config
}

// ConnStr builds the DSN for a database file.
func ConnStr(path string) string {
	return "file:" + path + "?_journal=WAL&_busy_timeout=10000"
}

// Open opens the database at config.Path and applies pending bookkeeping
// migrations.
func Open(ctx context.Context, log *zap.Logger, config Config) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", ConnStr(config.Path))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	db := &DB{DB: sqldb, log: log, config: config}
	if err := db.MigrateToLatest(ctx); err != nil {
		return nil, errs.Combine(err, sqldb.Close())
	}
	return db, nil
}

// Close closes the handle.
func (db *DB) Close() error {
	return Error.Wrap(db.DB.Close())
}

// IsSystemTable reports whether name is reserved: bookkeeping tables carry a
// leading underscore and SQLite owns sqlite_*.
func IsSystemTable(name string) bool {
	return sqliteutil.IsSystemName(name)
}

// Migration returns the bookkeeping migration.
func (db *DB) Migration() *migrate.Migration {
	return &migrate.Migration{
		Table: VersionTable,
		Steps: []*migrate.Step{
			{
				Description: "Snapshot metadata and version counter",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE _schema_snapshots (
						id TEXT NOT NULL PRIMARY KEY,
						version INTEGER NOT NULL,
						name TEXT NOT NULL,
						description TEXT NOT NULL DEFAULT '',
						full_schema TEXT NOT NULL,
						tables_json TEXT NOT NULL,
						schema_hash TEXT NOT NULL,
						created_by TEXT NOT NULL DEFAULT '',
						snapshot_type TEXT NOT NULL,
						external_checkpoint TEXT,
						created_at TIMESTAMP NOT NULL,
						updated_at TIMESTAMP NOT NULL
					)`,
					`CREATE UNIQUE INDEX idx_schema_snapshots_version ON _schema_snapshots (version)`,
					`CREATE TABLE _schema_version (
						id INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
						current_version INTEGER NOT NULL
					)`,
				},
			},
		},
	}
}

// MigrateToLatest applies pending bookkeeping migrations.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return db.Migration().Run(ctx, db.log.Named("migration"), db.DB)
}
