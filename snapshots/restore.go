// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
	"github.com/hearthdb/hearth/kvstore"
)

// Restore replaces the user schema with the one stored in the snapshot.
//
// Schema replacement is transactional: either every current user table is
// dropped and every stored table recreated, or nothing changes. Row data is
// restored best-effort inside the same transaction; a table whose rows fail
// to insert is recorded in the result and does not stop the others.
// Bookkeeping tables are never touched.
//
// After a successful restore a new automatic snapshot of the resulting
// state is captured; its id lands in NewSnapshotID.
func (service *Service) Restore(ctx context.Context, id string) (result RestoreResult, err error) {
	defer mon.Task()(&ctx)(&err)

	snapshot, ok, err := service.db.GetSnapshot(ctx, id)
	if err != nil {
		return RestoreResult{}, Error.Wrap(err)
	}
	if !ok {
		return RestoreResult{}, ErrNotFound.New("%s", id)
	}

	var tables []dbschema.Table
	if err := json.Unmarshal([]byte(snapshot.TablesJSON), &tables); err != nil {
		return RestoreResult{}, Error.New("snapshot %s holds unreadable table definitions: %v", id, err)
	}

	result = RestoreResult{
		SnapshotID: snapshot.ID,
		Version:    snapshot.Version,
	}

	dumps, schemaOnly := service.loadDump(ctx, snapshot.ID)
	result.SchemaOnly = schemaOnly

	err = sqliteutil.WithTx(ctx, service.db.DB, func(ctx context.Context, tx *sql.Tx) error {
		// keep reference checks out of the way until commit
		if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
			return errs.Wrap(err)
		}

		current, err := sqliteutil.QueryTables(ctx, tx)
		if err != nil {
			return errs.Wrap(err)
		}
		for _, name := range dropOrder(current) {
			if _, err := tx.ExecContext(ctx, `DROP TABLE `+sqliteutil.QuoteIdentifier(name)); err != nil {
				return errs.Wrap(err)
			}
			result.TablesDropped++
		}

		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, table.CreateSQL); err != nil {
				return errs.New("recreating table %q: %v", table.Name, err)
			}
			result.TablesRestored++
		}

		for _, dump := range dumps {
			inserted, err := insertTableRows(ctx, tx, dump)
			result.RowsRestored += inserted
			if err != nil {
				mon.Counter("restore_table_errors").Inc(1)
				service.log.Warn("table rows not fully restored",
					zap.String("table", dump.Name), zap.Error(err))
				result.TableErrors = append(result.TableErrors, TableError{
					Table: dump.Name,
					Err:   err.Error(),
				})
			}
		}
		return nil
	})
	if err != nil {
		// the transaction rolled back, so none of the counted work stuck
		return RestoreResult{
			SnapshotID: snapshot.ID,
			Version:    snapshot.Version,
			SchemaOnly: schemaOnly,
		}, Error.Wrap(err)
	}

	service.log.Info("snapshot restored",
		zap.String("id", snapshot.ID),
		zap.Int64("version", snapshot.Version),
		zap.Int("tables", result.TablesRestored),
		zap.Int64("rows", result.RowsRestored),
		zap.Bool("schema_only", result.SchemaOnly))

	after, err := service.Create(ctx, Options{
		Name:        fmt.Sprintf("restore_%d", time.Now().Unix()),
		Description: fmt.Sprintf("state after restoring %q (version %d)", snapshot.Name, snapshot.Version),
		CreatedBy:   "system",
		Type:        TypeAuto,
	})
	if err != nil {
		// the restore itself succeeded; the record of it is advisory
		service.log.Warn("post-restore snapshot failed", zap.Error(err))
		return result, nil
	}
	result.NewSnapshotID = after.ID

	return result, nil
}

// loadDump fetches and decodes the data payload. Any failure degrades the
// restore to schema-only rather than aborting it.
func (service *Service) loadDump(ctx context.Context, id string) (dumps []dbschema.TableData, schemaOnly bool) {
	if service.blobs == nil {
		return nil, true
	}

	value, err := service.blobs.Get(ctx, dataKey(id))
	if err != nil {
		if kvstore.ErrKeyNotFound.Has(err) {
			service.log.Debug("snapshot has no data payload", zap.String("id", id))
		} else {
			mon.Counter("snapshot_blob_failures").Inc(1)
			service.log.Warn("data payload unavailable, restoring schema only",
				zap.String("id", id), zap.Error(ErrStorageDegraded.Wrap(err)))
		}
		return nil, true
	}

	if err := json.Unmarshal(value, &dumps); err != nil {
		mon.Counter("snapshot_blob_failures").Inc(1)
		service.log.Warn("data payload unreadable, restoring schema only",
			zap.String("id", id), zap.Error(err))
		return nil, true
	}
	return dumps, false
}

// dropOrder returns the table names in an order safe to drop under foreign
// key enforcement: referencing tables come before the tables they point at.
// Reference cycles fall back to name order, which the deferred foreign key
// mode tolerates.
func dropOrder(tables []dbschema.Table) []string {
	remaining := make(map[string]bool, len(tables))
	byName := make(map[string]dbschema.Table, len(tables))
	for _, table := range tables {
		remaining[table.Name] = true
		byName[table.Name] = table
	}

	inbound := make(map[string]int, len(tables))
	for _, table := range tables {
		for _, fk := range table.ForeignKeys {
			if fk.RefTable != table.Name && remaining[fk.RefTable] {
				inbound[fk.RefTable]++
			}
		}
	}

	var queue []string
	for _, table := range tables {
		if inbound[table.Name] == 0 {
			queue = append(queue, table.Name)
		}
	}

	order := make([]string, 0, len(tables))
	for len(queue) > 0 {
		sort.Strings(queue)
		name := queue[0]
		queue = queue[1:]
		if !remaining[name] {
			continue
		}
		delete(remaining, name)
		order = append(order, name)

		for _, fk := range byName[name].ForeignKeys {
			if fk.RefTable == name || !remaining[fk.RefTable] {
				continue
			}
			inbound[fk.RefTable]--
			if inbound[fk.RefTable] == 0 {
				queue = append(queue, fk.RefTable)
			}
		}
	}

	if len(remaining) > 0 {
		leftover := make([]string, 0, len(remaining))
		for name := range remaining {
			leftover = append(leftover, name)
		}
		sort.Strings(leftover)
		order = append(order, leftover...)
	}
	return order
}

// insertTableRows loads one table's dump through a prepared statement and
// reports how many rows made it in before any failure.
func insertTableRows(ctx context.Context, tx *sql.Tx, dump dbschema.TableData) (inserted int64, err error) {
	if len(dump.Rows) == 0 {
		return 0, nil
	}
	if len(dump.Columns) == 0 {
		return 0, errs.New("dump for table %q has no columns", dump.Name)
	}

	quoted := make([]string, 0, len(dump.Columns))
	for _, column := range dump.Columns {
		quoted = append(quoted, sqliteutil.QuoteIdentifier(column))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(dump.Columns)), ", ")

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+sqliteutil.QuoteIdentifier(dump.Name)+`
		(`+strings.Join(quoted, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, errs.Wrap(err)
	}
	defer func() { err = errs.Combine(err, stmt.Close()) }()

	for _, row := range dump.Rows {
		if len(row) != len(dump.Columns) {
			return inserted, errs.New("row width %d does not match %d columns", len(row), len(dump.Columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return inserted, errs.Wrap(err)
		}
		inserted++
	}
	return inserted, nil
}
