// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

// Package migrate runs versioned bookkeeping migrations on a SQLite
// database.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hearthdb/hearth/dbutil/sqliteutil"
)

// Error is the default error class for migrate.
var Error = errs.Class("migrate")

// Migration describes migration steps sharing a version table.
type Migration struct {
	Table string
	Steps []*Step
}

// Step describes a single step in a migration.
type Step struct {
	Description string
	Version     int // versions start at 0
	Action      Action
}

// Action is something a step needs to run.
type Action interface {
	Run(ctx context.Context, log *zap.Logger, tx *sql.Tx) error
}

// TargetVersion returns a migration with steps up to the specified version.
func (migration *Migration) TargetVersion(version int) *Migration {
	m := *migration
	m.Steps = nil
	for _, step := range migration.Steps {
		if step.Version <= version {
			m.Steps = append(m.Steps, step)
		}
	}
	return &m
}

var rxTableName = regexp.MustCompile(`^[a-z_]+$`)

// ValidTableName checks whether the version table name is valid.
func (migration *Migration) ValidTableName() error {
	if !rxTableName.MatchString(migration.Table) {
		return Error.New("invalid table name: %v", migration.Table)
	}
	return nil
}

// ValidateSteps checks that the step versions increment in order.
func (migration *Migration) ValidateSteps() error {
	sorted := sort.SliceIsSorted(migration.Steps, func(i, j int) bool {
		return migration.Steps[i].Version <= migration.Steps[j].Version
	})
	if !sorted {
		return Error.New("steps have incorrect order")
	}
	return nil
}

// Run applies every unapplied step in order, each inside its own
// transaction together with the version bump.
func (migration *Migration) Run(ctx context.Context, log *zap.Logger, db *sql.DB) error {
	if err := migration.ValidTableName(); err != nil {
		return err
	}
	if err := migration.ValidateSteps(); err != nil {
		return err
	}

	if err := migration.ensureVersionTable(ctx, db); err != nil {
		return Error.New("creating version table failed: %v", err)
	}

	version, err := migration.getLatestVersion(ctx, db)
	if err != nil {
		return Error.Wrap(err)
	}
	initialSetup := version < 0

	for _, step := range migration.Steps {
		if step.Version <= version {
			continue
		}

		stepLog := log.Named(strconv.Itoa(step.Version))
		if !initialSetup {
			stepLog.Info(step.Description)
		}

		step := step
		err := sqliteutil.WithTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			if err := step.Action.Run(ctx, stepLog, tx); err != nil {
				return err
			}
			return migration.addVersion(ctx, tx, step.Version)
		})
		if err != nil {
			return Error.Wrap(err)
		}
	}

	if len(migration.Steps) > 0 {
		last := migration.Steps[len(migration.Steps)-1]
		if initialSetup {
			log.Info("Database Created", zap.Int("version", last.Version))
		} else {
			log.Debug("Database Version", zap.Int("version", last.Version))
		}
	} else {
		log.Info("No Versions")
	}

	return nil
}

// CurrentVersion finds the latest applied version, -1 when none.
func (migration *Migration) CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	if err := migration.ensureVersionTable(ctx, db); err != nil {
		return -1, Error.Wrap(err)
	}
	return migration.getLatestVersion(ctx, db)
}

func (migration *Migration) ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migration.Table+` (version INTEGER PRIMARY KEY, committed_at TEXT NOT NULL)`)
	return Error.Wrap(err)
}

// getLatestVersion returns -1 when no steps have been applied yet.
func (migration *Migration) getLatestVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+migration.Table).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !version.Valid) {
		return -1, nil
	}
	if err != nil {
		return -1, Error.Wrap(err)
	}
	return int(version.Int64), nil
}

func (migration *Migration) addVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO `+migration.Table+` (version, committed_at) VALUES (?, ?)`,
		version, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return Error.Wrap(err)
}

// SQL statements executed as a single step.
type SQL []string

// Run runs the SQL statements.
func (queries SQL) Run(ctx context.Context, log *zap.Logger, tx *sql.Tx) error {
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return errs.Wrap(err)
		}
	}
	return nil
}

// Func is an arbitrary migration operation.
type Func func(ctx context.Context, log *zap.Logger, tx *sql.Tx) error

// Run runs the migration function.
func (fn Func) Run(ctx context.Context, log *zap.Logger, tx *sql.Tx) error {
	return fn(ctx, log, tx)
}
