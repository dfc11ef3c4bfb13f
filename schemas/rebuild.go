// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package schemas

import (
	"context"
	"database/sql"
	"strings"

	"github.com/zeebo/errs"

	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
)

// renderColumn synthesizes one column clause from the catalog model.
// Composite primary keys render as a table constraint instead, so inlinePK
// must be false for them.
func renderColumn(col dbschema.Column, inlinePK bool) string {
	parts := []string{sqliteutil.QuoteIdentifier(col.Name), col.Type}
	if col.IsPrimaryKey && inlinePK {
		parts = append(parts, "PRIMARY KEY")
	}
	if col.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if !col.Default.IsZero() {
		parts = append(parts, "DEFAULT "+col.Default.Render())
	}
	return strings.Join(parts, " ")
}

func renderForeignKey(fk dbschema.ForeignKey) string {
	clause := `FOREIGN KEY (` + sqliteutil.QuoteIdentifier(fk.Column) + `) REFERENCES ` +
		sqliteutil.QuoteIdentifier(fk.RefTable) + ` (` + sqliteutil.QuoteIdentifier(fk.RefColumn) + `)`
	if fk.OnUpdate != "" {
		clause += ` ON UPDATE ` + fk.OnUpdate
	}
	if fk.OnDelete != "" {
		clause += ` ON DELETE ` + fk.OnDelete
	}
	return clause
}

// tableClauses renders the complete clause list for a synthesized table:
// model columns, any extra raw column clauses, then table constraints.
func tableClauses(columns []dbschema.Column, fks []dbschema.ForeignKey, extra ...string) []string {
	var pk []string
	for _, col := range columns {
		if col.IsPrimaryKey {
			pk = append(pk, col.Name)
		}
	}
	inlinePK := len(pk) == 1

	clauses := make([]string, 0, len(columns)+len(fks)+len(extra)+1)
	for _, col := range columns {
		clauses = append(clauses, renderColumn(col, inlinePK))
	}
	clauses = append(clauses, extra...)
	if len(pk) > 1 {
		quoted := make([]string, 0, len(pk))
		for _, name := range pk {
			quoted = append(quoted, sqliteutil.QuoteIdentifier(name))
		}
		clauses = append(clauses, `PRIMARY KEY (`+strings.Join(quoted, ", ")+`)`)
	}
	for _, fk := range fks {
		clauses = append(clauses, renderForeignKey(fk))
	}
	return clauses
}

// rebuildTable replaces a table with a re-synthesized definition, copying
// the shared columns' rows over, all inside one transaction. A failure at
// any step leaves the original table and its rows untouched.
//
// The transient table sits in the reserved namespace, so a snapshot capture
// running concurrently never lists it. Secondary indexes do not survive the
// rebuild; they drop with the original table.
func (manager *Manager) rebuildTable(ctx context.Context, table string, clauses, sharedColumns []string) (err error) {
	defer mon.Task()(&ctx)(&err)

	quotedTable := sqliteutil.QuoteIdentifier(table)
	quotedTransient := sqliteutil.QuoteIdentifier("_rebuild_" + table)

	createSQL := `CREATE TABLE ` + quotedTransient + ` (` + "\n\t" +
		strings.Join(clauses, ",\n\t") + "\n)"

	quoted := make([]string, 0, len(sharedColumns))
	for _, name := range sharedColumns {
		quoted = append(quoted, sqliteutil.QuoteIdentifier(name))
	}
	columnList := strings.Join(quoted, ", ")

	return Error.Wrap(sqliteutil.WithTx(ctx, manager.db.DB, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createSQL); err != nil {
			return errs.Wrap(err)
		}
		if len(sharedColumns) > 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO `+quotedTransient+` (`+columnList+`)
				SELECT `+columnList+` FROM `+quotedTable); err != nil {
				return errs.Wrap(err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE `+quotedTable); err != nil {
			return errs.Wrap(err)
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE `+quotedTransient+` RENAME TO `+quotedTable); err != nil {
			return errs.Wrap(err)
		}
		return nil
	}))
}
