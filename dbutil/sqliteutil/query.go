// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

package sqliteutil

import (
	"context"
	"database/sql"
	"strings"

	"github.com/zeebo/errs"

	"github.com/hearthdb/hearth/dbschema"
)

// Error is the default error class for sqliteutil.
var Error = errs.Class("sqliteutil")

// QueryTables loads every non-system table from the catalog, with columns,
// foreign keys and the verbatim DDL, ordered by name.
func QueryTables(ctx context.Context, db dbschema.Queryer) (_ []dbschema.Table, err error) {
	definitions, err := queryDefinitions(ctx, db, "table")
	if err != nil {
		return nil, err
	}

	tables := make([]dbschema.Table, 0, len(definitions))
	for _, definition := range definitions {
		if IsSystemName(definition.name) {
			continue
		}
		table := dbschema.Table{Name: definition.name, CreateSQL: definition.sql}
		if err := discoverColumns(ctx, db, &table); err != nil {
			return nil, err
		}
		if err := discoverForeignKeys(ctx, db, &table); err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	dbschema.SortTables(tables)
	return tables, nil
}

// QueryTable loads a single table from the catalog. The second return value
// reports whether the table exists.
func QueryTable(ctx context.Context, db dbschema.Queryer, name string) (_ dbschema.Table, _ bool, err error) {
	rows, err := db.QueryContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return dbschema.Table{}, false, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	if !rows.Next() {
		return dbschema.Table{}, false, Error.Wrap(rows.Err())
	}
	var createSQL string
	if err := rows.Scan(&createSQL); err != nil {
		return dbschema.Table{}, false, Error.Wrap(err)
	}

	table := dbschema.Table{Name: name, CreateSQL: createSQL}
	if err := discoverColumns(ctx, db, &table); err != nil {
		return dbschema.Table{}, false, err
	}
	if err := discoverForeignKeys(ctx, db, &table); err != nil {
		return dbschema.Table{}, false, err
	}
	return table, true, nil
}

// TableExists reports whether a table with the given name is in the catalog.
func TableExists(ctx context.Context, db dbschema.Queryer, name string) (_ bool, err error) {
	rows, err := db.QueryContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return false, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	exists := rows.Next()
	return exists, Error.Wrap(rows.Err())
}

type definition struct {
	name string
	sql  string
	tbl  string
}

// queryDefinitions lists catalog entries of the given type that carry DDL.
// Auto-generated indexes have no DDL and never appear here.
func queryDefinitions(ctx context.Context, db dbschema.Queryer, defType string) (_ []definition, err error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, tbl_name, sql FROM sqlite_master
		WHERE type = ? AND sql NOT NULL AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`, defType)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var definitions []definition
	for rows.Next() {
		var def definition
		if err := rows.Scan(&def.name, &def.tbl, &def.sql); err != nil {
			return nil, Error.Wrap(err)
		}
		definitions = append(definitions, def)
	}
	return definitions, Error.Wrap(rows.Err())
}

func discoverColumns(ctx context.Context, db dbschema.Queryer, table *dbschema.Table) (err error) {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(`+QuoteIdentifier(table.Name)+`)`)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		var defaultValue sql.NullString
		var cid, pk int
		var name, columnType string
		var notNull bool
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultValue, &pk); err != nil {
			return Error.Wrap(err)
		}

		column := dbschema.Column{
			Ordinal:      cid,
			Name:         name,
			Type:         columnType,
			NotNull:      notNull,
			IsPrimaryKey: pk > 0,
		}
		if defaultValue.Valid {
			column.Default = dbschema.ClassifyDefault(defaultValue.String)
		}
		table.Columns = append(table.Columns, column)
	}
	return Error.Wrap(rows.Err())
}

func discoverForeignKeys(ctx context.Context, db dbschema.Queryer, table *dbschema.Table) (err error) {
	rows, err := db.QueryContext(ctx, `PRAGMA foreign_key_list(`+QuoteIdentifier(table.Name)+`)`)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		var id, seq int
		var refTable, from string
		var to sql.NullString
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return Error.Wrap(err)
		}

		if onUpdate == "NO ACTION" {
			onUpdate = ""
		}
		if onDelete == "NO ACTION" {
			onDelete = ""
		}
		// A NULL "to" column means the key references the primary key.
		refColumn := to.String
		if !to.Valid {
			refColumn = "id"
		}
		table.ForeignKeys = append(table.ForeignKeys, dbschema.ForeignKey{
			Column:    from,
			RefTable:  refTable,
			RefColumn: refColumn,
			OnUpdate:  onUpdate,
			OnDelete:  onDelete,
		})
	}
	return Error.Wrap(rows.Err())
}

// QueryTableIndexes loads the user-created indexes of a single table,
// skipping the ones SQLite generated for constraints.
func QueryTableIndexes(ctx context.Context, db dbschema.Queryer, tableName string) (_ []dbschema.Index, err error) {
	rows, err := db.QueryContext(ctx, `PRAGMA index_list(`+QuoteIdentifier(tableName)+`)`)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	type listed struct {
		name   string
		unique bool
	}
	var candidates []listed
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial bool
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, errs.Combine(Error.Wrap(err), Error.Wrap(rows.Close()))
		}
		if origin != "c" || strings.HasPrefix(name, "sqlite_autoindex_") {
			continue
		}
		candidates = append(candidates, listed{name: name, unique: unique})
	}
	err = errs.Combine(Error.Wrap(rows.Err()), Error.Wrap(rows.Close()))
	if err != nil {
		return nil, err
	}

	indexes := make([]dbschema.Index, 0, len(candidates))
	for _, candidate := range candidates {
		index := dbschema.Index{Name: candidate.name, Table: tableName, Unique: candidate.unique}
		index.Columns, err = queryIndexColumns(ctx, db, candidate.name)
		if err != nil {
			return nil, err
		}
		index.CreateSQL, err = queryIndexSQL(ctx, db, candidate.name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
	}

	dbschema.SortIndexes(indexes)
	return indexes, nil
}

// QueryAllIndexes loads the user-created indexes of every non-system table,
// ordered by table then name.
func QueryAllIndexes(ctx context.Context, db dbschema.Queryer) (_ []dbschema.Index, err error) {
	tables, err := QueryTables(ctx, db)
	if err != nil {
		return nil, err
	}

	var all []dbschema.Index
	for _, table := range tables {
		indexes, err := QueryTableIndexes(ctx, db, table.Name)
		if err != nil {
			return nil, err
		}
		all = append(all, indexes...)
	}
	return all, nil
}

// FindIndex locates a user-created index by name across all tables. The
// second return value reports whether it exists.
func FindIndex(ctx context.Context, db dbschema.Queryer, name string) (_ dbschema.Index, _ bool, err error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tbl_name, sql FROM sqlite_master
		WHERE type = 'index' AND name = ? AND sql NOT NULL
	`, name)
	if err != nil {
		return dbschema.Index{}, false, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	if !rows.Next() {
		return dbschema.Index{}, false, Error.Wrap(rows.Err())
	}
	index := dbschema.Index{Name: name}
	if err := rows.Scan(&index.Table, &index.CreateSQL); err != nil {
		return dbschema.Index{}, false, Error.Wrap(err)
	}

	index.Columns, err = queryIndexColumns(ctx, db, name)
	if err != nil {
		return dbschema.Index{}, false, err
	}
	index.Unique, err = queryIndexUnique(ctx, db, index.Table, name)
	if err != nil {
		return dbschema.Index{}, false, err
	}
	return index, true, nil
}

func queryIndexColumns(ctx context.Context, db dbschema.Queryer, indexName string) (_ []string, err error) {
	rows, err := db.QueryContext(ctx, `PRAGMA index_info(`+QuoteIdentifier(indexName)+`)`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, Error.Wrap(err)
		}
		// A NULL name means the index covers an expression.
		if name.Valid {
			columns = append(columns, name.String)
		}
	}
	return columns, Error.Wrap(rows.Err())
}

func queryIndexUnique(ctx context.Context, db dbschema.Queryer, tableName, indexName string) (_ bool, err error) {
	rows, err := db.QueryContext(ctx, `PRAGMA index_list(`+QuoteIdentifier(tableName)+`)`)
	if err != nil {
		return false, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial bool
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return false, Error.Wrap(err)
		}
		if name == indexName {
			return unique, Error.Wrap(rows.Close())
		}
	}
	return false, Error.Wrap(rows.Err())
}

func queryIndexSQL(ctx context.Context, db dbschema.Queryer, indexName string) (_ string, err error) {
	rows, err := db.QueryContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?`, indexName)
	if err != nil {
		return "", Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	if !rows.Next() {
		return "", Error.Wrap(rows.Err())
	}
	var createSQL sql.NullString
	if err := rows.Scan(&createSQL); err != nil {
		return "", Error.Wrap(err)
	}
	return createSQL.String, nil
}
