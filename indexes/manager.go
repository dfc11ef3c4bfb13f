// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

// Package indexes manages secondary indexes on user tables. Auto-generated
// constraint indexes belong to the store and stay out of reach.
package indexes

import (
	"context"
	"fmt"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hearthdb/hearth/basedb"
	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
	"github.com/hearthdb/hearth/snapshots"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the indexes package.
	Error = errs.Class("indexes")
	// ErrNotFound means the table or index does not exist.
	ErrNotFound = errs.Class("not found")
)

// Manager creates, lists, and drops secondary indexes.
//
// architecture: Service
type Manager struct {
	log     *zap.Logger
	db      *basedb.DB
	trigger *snapshots.Trigger
}

// NewManager creates an index manager. A nil trigger disables pre-change
// snapshots.
func NewManager(log *zap.Logger, db *basedb.DB, trigger *snapshots.Trigger) *Manager {
	return &Manager{
		log:     log,
		db:      db,
		trigger: trigger,
	}
}

func (manager *Manager) preChange(reason string) {
	if manager.trigger != nil {
		manager.trigger.PreChange(reason)
	}
}

// TableIndexes returns the user-created indexes of one table, by name.
func (manager *Manager) TableIndexes(ctx context.Context, table string) (_ []dbschema.Index, err error) {
	defer mon.Task()(&ctx)(&err)

	exists, err := sqliteutil.TableExists(ctx, manager.db, table)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !exists {
		return nil, ErrNotFound.New("table %q", table)
	}

	indexes, err := sqliteutil.QueryTableIndexes(ctx, manager.db, table)
	return indexes, Error.Wrap(err)
}

// AllUserIndexes returns the user-created indexes of every user table,
// ordered by table then name.
func (manager *Manager) AllUserIndexes(ctx context.Context) (_ []dbschema.Index, err error) {
	defer mon.Task()(&ctx)(&err)

	indexes, err := sqliteutil.QueryAllIndexes(ctx, manager.db)
	return indexes, Error.Wrap(err)
}

// CreateIndex creates an index over the given columns.
func (manager *Manager) CreateIndex(ctx context.Context, name, table string, columns []string, unique bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	if basedb.IsSystemTable(table) {
		return basedb.ErrSystemTable.New("%s", table)
	}
	quotedName, err := sqliteutil.ValidateIdentifier("index", name)
	if err != nil {
		return err
	}
	quotedTable, err := sqliteutil.ValidateIdentifier("table", table)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return Error.New("index %q needs at least one column", name)
	}
	quotedColumns := make([]string, 0, len(columns))
	for _, column := range columns {
		quoted, err := sqliteutil.ValidateIdentifier("column", column)
		if err != nil {
			return err
		}
		quotedColumns = append(quotedColumns, quoted)
	}

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return Error.Wrap(err)
	}
	if !ok {
		return ErrNotFound.New("table %q", table)
	}
	for _, column := range columns {
		if !model.HasColumn(column) {
			return ErrNotFound.New("column %q.%q", table, column)
		}
	}

	_, exists, err := sqliteutil.FindIndex(ctx, manager.db, name)
	if err != nil {
		return Error.Wrap(err)
	}
	if exists {
		return Error.New("index %q already exists", name)
	}

	manager.preChange(fmt.Sprintf("create index %s on %s", name, table))

	keyword := ""
	if unique {
		keyword = "UNIQUE "
	}
	_, err = manager.db.ExecContext(ctx, `CREATE `+keyword+`INDEX `+quotedName+
		` ON `+quotedTable+` (`+strings.Join(quotedColumns, ", ")+`)`)
	if err != nil {
		return Error.Wrap(err)
	}

	manager.log.Info("index created",
		zap.String("index", name),
		zap.String("table", table),
		zap.Strings("columns", columns),
		zap.Bool("unique", unique))
	return nil
}

// DropIndex removes a user-created index, wherever it lives. Indexes that
// SQLite generated for constraints cannot be dropped.
func (manager *Manager) DropIndex(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if sqliteutil.IsSystemName(name) {
		return basedb.ErrSystemTable.New("index %s", name)
	}

	index, ok, err := sqliteutil.FindIndex(ctx, manager.db, name)
	if err != nil {
		return Error.Wrap(err)
	}
	if !ok {
		return ErrNotFound.New("index %q", name)
	}
	if basedb.IsSystemTable(index.Table) {
		return basedb.ErrSystemTable.New("%s", index.Table)
	}

	manager.preChange(fmt.Sprintf("drop index %s on %s", name, index.Table))

	_, err = manager.db.ExecContext(ctx, `DROP INDEX `+sqliteutil.QuoteIdentifier(name))
	if err != nil {
		return Error.Wrap(err)
	}

	manager.log.Info("index dropped",
		zap.String("index", name), zap.String("table", index.Table))
	return nil
}
