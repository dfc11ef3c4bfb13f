// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package schemas

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hearthdb/hearth/basedb"
	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
	"github.com/hearthdb/hearth/snapshots"
)

// Manager evolves the user schema.
//
// architecture: Service
type Manager struct {
	log     *zap.Logger
	db      *basedb.DB
	trigger *snapshots.Trigger
}

// NewManager creates a schema manager. A nil trigger disables pre-change
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

// Tables returns every user table with its columns and foreign keys.
func (manager *Manager) Tables(ctx context.Context) (_ []dbschema.Table, err error) {
	defer mon.Task()(&ctx)(&err)

	tables, err := sqliteutil.QueryTables(ctx, manager.db)
	return tables, Error.Wrap(err)
}

// TableColumns returns the columns of a table in ordinal order.
func (manager *Manager) TableColumns(ctx context.Context, table string) (_ []dbschema.Column, err error) {
	defer mon.Task()(&ctx)(&err)

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !ok {
		return nil, ErrNotFound.New("table %q", table)
	}
	return model.Columns, nil
}

// ForeignKeys returns the foreign keys declared on a table.
func (manager *Manager) ForeignKeys(ctx context.Context, table string) (_ []dbschema.ForeignKey, err error) {
	defer mon.Task()(&ctx)(&err)

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if !ok {
		return nil, ErrNotFound.New("table %q", table)
	}
	return model.ForeignKeys, nil
}

// CreateTable creates a user table from the declared columns. Every table
// gets an id primary key and created_at/updated_at timestamps unless the
// caller declares those columns; a declared id must carry PRIMARY KEY in
// its constraints and stays the only primary key.
func (manager *Manager) CreateTable(ctx context.Context, name string, columns []ColumnDefinition) (err error) {
	defer mon.Task()(&ctx)(&err)

	if basedb.IsSystemTable(name) {
		return basedb.ErrSystemTable.New("%s", name)
	}
	quotedTable, err := sqliteutil.ValidateIdentifier("table", name)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return Error.New("table %q needs at least one column", name)
	}
	clauses, err := createClauses(columns)
	if err != nil {
		return err
	}

	exists, err := sqliteutil.TableExists(ctx, manager.db, name)
	if err != nil {
		return Error.Wrap(err)
	}
	if exists {
		return Error.New("table %q already exists", name)
	}

	manager.preChange("create table " + name)

	_, err = manager.db.ExecContext(ctx, `CREATE TABLE `+quotedTable+` (`+"\n\t"+
		strings.Join(clauses, ",\n\t")+"\n)")
	if err != nil {
		return Error.Wrap(err)
	}

	manager.log.Info("table created",
		zap.String("table", name), zap.Int("columns", len(clauses)))
	return nil
}

// DropTable removes a user table. Dropping a missing table is not an error.
func (manager *Manager) DropTable(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if basedb.IsSystemTable(name) {
		return basedb.ErrSystemTable.New("%s", name)
	}
	quotedTable, err := sqliteutil.ValidateIdentifier("table", name)
	if err != nil {
		return err
	}

	manager.preChange("drop table " + name)

	_, err = manager.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+quotedTable)
	if err != nil {
		return Error.Wrap(err)
	}

	manager.log.Info("table dropped", zap.String("table", name))
	return nil
}

// AddColumn adds a column to a table. Plain columns use the native ALTER
// TABLE; a column carrying a foreign key needs a table rebuild, since
// SQLite cannot attach references after the fact.
func (manager *Manager) AddColumn(ctx context.Context, table string, column ColumnDefinition) (err error) {
	defer mon.Task()(&ctx)(&err)

	if basedb.IsSystemTable(table) {
		return basedb.ErrSystemTable.New("%s", table)
	}
	quotedTable, err := sqliteutil.ValidateIdentifier("table", table)
	if err != nil {
		return err
	}
	clause, err := renderDefinition(column)
	if err != nil {
		return err
	}
	if column.ForeignKey != nil {
		if _, err := renderReference(column.ForeignKey); err != nil {
			return err
		}
	}

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return Error.Wrap(err)
	}
	if !ok {
		return ErrNotFound.New("table %q", table)
	}
	if model.HasColumn(column.Name) {
		return Error.New("column %q.%q already exists", table, column.Name)
	}

	manager.preChange(fmt.Sprintf("add column %s.%s", table, column.Name))

	rebuilt := column.ForeignKey != nil
	if !rebuilt {
		_, err = manager.db.ExecContext(ctx, `ALTER TABLE `+quotedTable+` ADD COLUMN `+clause)
		if err != nil {
			return Error.Wrap(err)
		}
	} else {
		fks := append([]dbschema.ForeignKey{}, model.ForeignKeys...)
		fks = append(fks, dbschema.ForeignKey{
			Column:    column.Name,
			RefTable:  column.ForeignKey.Table,
			RefColumn: column.ForeignKey.Column,
		})
		if err := manager.rebuildTable(ctx, table, tableClauses(model.Columns, fks, clause), model.ColumnNames()); err != nil {
			return err
		}
	}

	manager.log.Info("column added",
		zap.String("table", table),
		zap.String("column", column.Name),
		zap.Bool("rebuild", rebuilt))
	return nil
}

// RenameColumn renames a column in place.
func (manager *Manager) RenameColumn(ctx context.Context, table, from, to string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if basedb.IsSystemTable(table) {
		return basedb.ErrSystemTable.New("%s", table)
	}
	quotedTable, err := sqliteutil.ValidateIdentifier("table", table)
	if err != nil {
		return err
	}
	quotedFrom, err := sqliteutil.ValidateIdentifier("column", from)
	if err != nil {
		return err
	}
	quotedTo, err := sqliteutil.ValidateIdentifier("column", to)
	if err != nil {
		return err
	}

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return Error.Wrap(err)
	}
	if !ok {
		return ErrNotFound.New("table %q", table)
	}
	if !model.HasColumn(from) {
		return ErrNotFound.New("column %q.%q", table, from)
	}
	if model.HasColumn(to) {
		return Error.New("column %q.%q already exists", table, to)
	}

	manager.preChange(fmt.Sprintf("rename column %s.%s to %s", table, from, to))

	_, err = manager.db.ExecContext(ctx, `ALTER TABLE `+quotedTable+` RENAME COLUMN `+quotedFrom+` TO `+quotedTo)
	if err != nil {
		return Error.Wrap(err)
	}

	manager.log.Info("column renamed",
		zap.String("table", table), zap.String("from", from), zap.String("to", to))
	return nil
}

// DropColumn removes a column. The id, created_at, and updated_at columns
// cannot be dropped.
func (manager *Manager) DropColumn(ctx context.Context, table, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if basedb.IsSystemTable(table) {
		return basedb.ErrSystemTable.New("%s", table)
	}
	if protectedColumns[strings.ToLower(name)] {
		return ErrProtectedColumn.New("%s.%s", table, name)
	}
	quotedTable, err := sqliteutil.ValidateIdentifier("table", table)
	if err != nil {
		return err
	}
	quotedColumn, err := sqliteutil.ValidateIdentifier("column", name)
	if err != nil {
		return err
	}

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return Error.Wrap(err)
	}
	if !ok {
		return ErrNotFound.New("table %q", table)
	}
	if !model.HasColumn(name) {
		return ErrNotFound.New("column %q.%q", table, name)
	}

	manager.preChange(fmt.Sprintf("drop column %s.%s", table, name))

	_, err = manager.db.ExecContext(ctx, `ALTER TABLE `+quotedTable+` DROP COLUMN `+quotedColumn)
	if err != nil {
		return Error.Wrap(err)
	}

	manager.log.Info("column dropped",
		zap.String("table", table), zap.String("column", name))
	return nil
}

// ModifyColumn rewrites a column's type, nullability, default, or foreign
// key by rebuilding the table. The changes are validated against the stored
// rows first; conflicts surface as ErrValidation and nothing is touched.
func (manager *Manager) ModifyColumn(ctx context.Context, table, column string, changes ColumnChanges) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := manager.ValidateColumnChanges(ctx, table, column, changes)
	if err != nil {
		return err
	}
	if !result.Valid {
		return ErrValidation.Wrap(&validationError{result: result})
	}

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return Error.Wrap(err)
	}
	if !ok {
		return ErrNotFound.New("table %q", table)
	}

	columns := append([]dbschema.Column{}, model.Columns...)
	applied := false
	for i, col := range columns {
		if col.Name != column {
			continue
		}
		if changes.Type != "" {
			normalized, err := sqliteutil.NormalizeType(changes.Type)
			if err != nil {
				return err
			}
			columns[i].Type = normalized
		}
		if changes.NotNull != nil {
			columns[i].NotNull = *changes.NotNull
		}
		if changes.Default != nil {
			if *changes.Default == "" {
				columns[i].Default = dbschema.Default{}
			} else {
				columns[i].Default = dbschema.ClassifyDefault(*changes.Default)
			}
		}
		applied = true
	}
	if !applied {
		return ErrNotFound.New("column %q.%q", table, column)
	}

	// the column keeps exactly the reference stated in the changes
	fks := make([]dbschema.ForeignKey, 0, len(model.ForeignKeys)+1)
	for _, fk := range model.ForeignKeys {
		if fk.Column != column {
			fks = append(fks, fk)
		}
	}
	if changes.ForeignKey != nil {
		fks = append(fks, dbschema.ForeignKey{
			Column:    column,
			RefTable:  changes.ForeignKey.Table,
			RefColumn: changes.ForeignKey.Column,
		})
	}

	manager.preChange(fmt.Sprintf("modify column %s.%s", table, column))

	if err := manager.rebuildTable(ctx, table, tableClauses(columns, fks), model.ColumnNames()); err != nil {
		return err
	}

	manager.log.Info("column modified",
		zap.String("table", table), zap.String("column", column))
	return nil
}

// createClauses renders the full column clause list for CreateTable,
// including the implicit columns.
func createClauses(columns []ColumnDefinition) ([]string, error) {
	declared := make(map[string]bool, len(columns))
	primaryKeys := 0
	idHasPrimaryKey := false
	for _, column := range columns {
		lower := strings.ToLower(column.Name)
		if declared[lower] {
			return nil, Error.New("column %q declared twice", column.Name)
		}
		declared[lower] = true
		if hasPrimaryKey(column.Constraints) {
			primaryKeys++
			if lower == "id" {
				idHasPrimaryKey = true
			}
		}
	}
	if primaryKeys > 1 {
		return nil, Error.New("only one PRIMARY KEY column is allowed")
	}
	if declared["id"] && !idHasPrimaryKey {
		return nil, Error.New(`a declared "id" column must carry PRIMARY KEY`)
	}
	if !declared["id"] && primaryKeys > 0 {
		return nil, Error.New(`the implicit "id" column is already the primary key`)
	}

	clauses := make([]string, 0, len(columns)+3)
	if !declared["id"] {
		clauses = append(clauses, `"id" TEXT PRIMARY KEY NOT NULL DEFAULT (lower(hex(randomblob(16))))`)
	}
	for _, column := range columns {
		clause, err := renderDefinition(column)
		if err != nil {
			return nil, err
		}
		if column.ForeignKey != nil {
			reference, err := renderReference(column.ForeignKey)
			if err != nil {
				return nil, err
			}
			clause += reference
		}
		clauses = append(clauses, clause)
	}
	if !declared["created_at"] {
		clauses = append(clauses, `"created_at" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`)
	}
	if !declared["updated_at"] {
		clauses = append(clauses, `"updated_at" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`)
	}
	return clauses, nil
}

func hasPrimaryKey(constraints string) bool {
	return strings.Contains(strings.ToUpper(constraints), "PRIMARY KEY")
}

// renderDefinition renders a caller-supplied column definition, validating
// the name and normalizing the type. Constraints pass through verbatim; the
// foreign key, if any, is not included.
func renderDefinition(column ColumnDefinition) (string, error) {
	quotedName, err := sqliteutil.ValidateIdentifier("column", column.Name)
	if err != nil {
		return "", err
	}
	normalized, err := sqliteutil.NormalizeType(column.Type)
	if err != nil {
		return "", err
	}

	clause := quotedName + " " + normalized
	if constraints := strings.TrimSpace(column.Constraints); constraints != "" {
		clause += " " + constraints
	}
	return clause, nil
}

func renderReference(fk *ForeignKeyRef) (string, error) {
	quotedTable, err := sqliteutil.ValidateIdentifier("table", fk.Table)
	if err != nil {
		return "", err
	}
	quotedColumn, err := sqliteutil.ValidateIdentifier("column", fk.Column)
	if err != nil {
		return "", err
	}
	return ` REFERENCES ` + quotedTable + ` (` + quotedColumn + `)`, nil
}
