// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hearthdb/hearth/basedb"
	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
	"github.com/hearthdb/hearth/internal/testcontext"
	"github.com/hearthdb/hearth/schemas"
	"github.com/hearthdb/hearth/snapshots"
)

func newTestManager(ctx *testcontext.Context, t *testing.T) (*schemas.Manager, *basedb.DB) {
	log := zaptest.NewLogger(t)
	db, err := basedb.Open(ctx, log, basedb.Config{Path: ctx.File("hearth.db")})
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Check(db.Close) })
	return schemas.NewManager(log.Named("schemas"), db, nil), db
}

func execAll(ctx *testcontext.Context, t *testing.T, db *basedb.DB, queries ...string) {
	for _, query := range queries {
		_, err := db.ExecContext(ctx, query)
		require.NoError(t, err, query)
	}
}

func columnNames(columns []dbschema.Column) []string {
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.Name)
	}
	return names
}

func TestCreateTable(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, _ := newTestManager(ctx, t)

	err := manager.CreateTable(ctx, "notes", []schemas.ColumnDefinition{
		{Name: "title", Type: "TEXT", Constraints: "NOT NULL"},
		{Name: "views", Type: "int", Constraints: "NOT NULL DEFAULT 0"},
	})
	require.NoError(t, err)

	columns, err := manager.TableColumns(ctx, "notes")
	require.NoError(t, err)
	require.Equal(t,
		[]string{"id", "title", "views", "created_at", "updated_at"},
		columnNames(columns))

	id := columns[0]
	require.True(t, id.IsPrimaryKey)
	require.True(t, id.NotNull)
	require.Equal(t, "TEXT", id.Type)
	require.Equal(t, dbschema.DefaultExpression, id.Default.Kind)

	views := columns[2]
	require.Equal(t, "INTEGER", views.Type)
	require.True(t, views.NotNull)
	require.Equal(t, dbschema.DefaultLiteral, views.Default.Kind)
	require.Equal(t, "0", views.Default.Value)

	createdAt := columns[3]
	require.Equal(t, dbschema.DefaultKeyword, createdAt.Default.Kind)
	require.Equal(t, "CURRENT_TIMESTAMP", createdAt.Default.Value)

	// second create must refuse
	err = manager.CreateTable(ctx, "notes", []schemas.ColumnDefinition{
		{Name: "title", Type: "TEXT"},
	})
	require.Error(t, err)
	require.True(t, schemas.Error.Has(err))
}

func TestCreateTable_Rejections(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, _ := newTestManager(ctx, t)

	// reserved namespaces
	err := manager.CreateTable(ctx, "_secrets", []schemas.ColumnDefinition{{Name: "a", Type: "TEXT"}})
	require.True(t, basedb.ErrSystemTable.Has(err))
	err = manager.CreateTable(ctx, "sqlite_stat_fake", []schemas.ColumnDefinition{{Name: "a", Type: "TEXT"}})
	require.True(t, basedb.ErrSystemTable.Has(err))

	// identifier and type allow-lists
	err = manager.CreateTable(ctx, "bad name", []schemas.ColumnDefinition{{Name: "a", Type: "TEXT"}})
	require.True(t, sqliteutil.ErrInvalidIdentifier.Has(err))
	err = manager.CreateTable(ctx, "drop", []schemas.ColumnDefinition{{Name: "a", Type: "TEXT"}})
	require.True(t, sqliteutil.ErrInvalidIdentifier.Has(err))
	err = manager.CreateTable(ctx, "stuff", []schemas.ColumnDefinition{{Name: "a", Type: "GEOMETRY"}})
	require.True(t, sqliteutil.ErrInvalidType.Has(err))

	// no columns at all
	err = manager.CreateTable(ctx, "empty", nil)
	require.True(t, schemas.Error.Has(err))
}

func TestCreateTable_PrimaryKeyRules(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, _ := newTestManager(ctx, t)

	// a declared id takes over, no implicit one is added
	err := manager.CreateTable(ctx, "counters", []schemas.ColumnDefinition{
		{Name: "id", Type: "INTEGER", Constraints: "PRIMARY KEY"},
		{Name: "value", Type: "INTEGER", Constraints: "NOT NULL DEFAULT 0"},
	})
	require.NoError(t, err)

	columns, err := manager.TableColumns(ctx, "counters")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "value", "created_at", "updated_at"}, columnNames(columns))
	require.Equal(t, "INTEGER", columns[0].Type)
	require.True(t, columns[0].IsPrimaryKey)

	// a declared id without PRIMARY KEY leaves no resolvable key
	err = manager.CreateTable(ctx, "broken", []schemas.ColumnDefinition{
		{Name: "id", Type: "TEXT"},
	})
	require.True(t, schemas.Error.Has(err))

	// a second primary key is never allowed
	err = manager.CreateTable(ctx, "doubled", []schemas.ColumnDefinition{
		{Name: "id", Type: "TEXT", Constraints: "PRIMARY KEY"},
		{Name: "slug", Type: "TEXT", Constraints: "PRIMARY KEY"},
	})
	require.True(t, schemas.Error.Has(err))

	// a primary key next to the implicit id is two primary keys
	err = manager.CreateTable(ctx, "implicit", []schemas.ColumnDefinition{
		{Name: "slug", Type: "TEXT", Constraints: "PRIMARY KEY"},
	})
	require.True(t, schemas.Error.Has(err))
}

func TestCreateTable_ForeignKey(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, _ := newTestManager(ctx, t)

	require.NoError(t, manager.CreateTable(ctx, "authors", []schemas.ColumnDefinition{
		{Name: "name", Type: "TEXT", Constraints: "NOT NULL"},
	}))
	require.NoError(t, manager.CreateTable(ctx, "notes", []schemas.ColumnDefinition{
		{Name: "author_id", Type: "TEXT", ForeignKey: &schemas.ForeignKeyRef{Table: "authors", Column: "id"}},
	}))

	fks, err := manager.ForeignKeys(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	require.Equal(t, "author_id", fks[0].Column)
	require.Equal(t, "authors", fks[0].RefTable)
	require.Equal(t, "id", fks[0].RefColumn)

	// references into the reserved namespace never validate
	err = manager.CreateTable(ctx, "evil", []schemas.ColumnDefinition{
		{Name: "target", Type: "TEXT", ForeignKey: &schemas.ForeignKeyRef{Table: "_schema_snapshots", Column: "id"}},
	})
	require.True(t, sqliteutil.ErrInvalidIdentifier.Has(err))
}

func TestDropTable(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	execAll(ctx, t, db, `CREATE TABLE scratch ( id INTEGER PRIMARY KEY )`)

	require.NoError(t, manager.DropTable(ctx, "scratch"))

	exists, err := sqliteutil.TableExists(ctx, db, "scratch")
	require.NoError(t, err)
	require.False(t, exists)

	// dropping a missing table stays quiet
	require.NoError(t, manager.DropTable(ctx, "scratch"))

	err = manager.DropTable(ctx, "_schema_snapshots")
	require.True(t, basedb.ErrSystemTable.Has(err))
}

func TestAddColumn(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	execAll(ctx, t, db,
		`CREATE TABLE notes ( id INTEGER PRIMARY KEY, title TEXT NOT NULL )`,
		`INSERT INTO notes (id, title) VALUES (1, 'keep me')`,
	)

	err := manager.AddColumn(ctx, "notes", schemas.ColumnDefinition{
		Name: "pinned", Type: "bool", Constraints: "NOT NULL DEFAULT FALSE",
	})
	require.NoError(t, err)

	columns, err := manager.TableColumns(ctx, "notes")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title", "pinned"}, columnNames(columns))
	require.Equal(t, "BOOLEAN", columns[2].Type)
	require.Equal(t, dbschema.DefaultKeyword, columns[2].Default.Kind)

	var pinned bool
	require.NoError(t, db.QueryRowContext(ctx, `SELECT pinned FROM notes WHERE id = 1`).Scan(&pinned))
	require.False(t, pinned)

	err = manager.AddColumn(ctx, "notes", schemas.ColumnDefinition{Name: "pinned", Type: "BOOLEAN"})
	require.True(t, schemas.Error.Has(err))

	err = manager.AddColumn(ctx, "ghosts", schemas.ColumnDefinition{Name: "a", Type: "TEXT"})
	require.True(t, schemas.ErrNotFound.Has(err))
}

func TestAddColumn_ForeignKeyRebuild(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	execAll(ctx, t, db,
		`CREATE TABLE authors ( id INTEGER PRIMARY KEY, name TEXT NOT NULL )`,
		`CREATE TABLE notes ( id INTEGER PRIMARY KEY, title TEXT NOT NULL DEFAULT '' )`,
		`INSERT INTO authors (id, name) VALUES (7, 'ada')`,
		`INSERT INTO notes (id, title) VALUES (1, 'one'), (2, 'two')`,
	)

	err := manager.AddColumn(ctx, "notes", schemas.ColumnDefinition{
		Name:       "author_id",
		Type:       "INTEGER",
		ForeignKey: &schemas.ForeignKeyRef{Table: "authors", Column: "id"},
	})
	require.NoError(t, err)

	fks, err := manager.ForeignKeys(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	require.Equal(t, "author_id", fks[0].Column)
	require.Equal(t, "authors", fks[0].RefTable)

	// the rebuild preserved rows and the primary key
	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count))
	require.Equal(t, 2, count)

	columns, err := manager.TableColumns(ctx, "notes")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title", "author_id"}, columnNames(columns))
	require.True(t, columns[0].IsPrimaryKey)
}

func TestRenameColumn(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	execAll(ctx, t, db,
		`CREATE TABLE notes ( id INTEGER PRIMARY KEY, body TEXT NOT NULL )`,
		`INSERT INTO notes (id, body) VALUES (1, 'hello')`,
	)

	require.NoError(t, manager.RenameColumn(ctx, "notes", "body", "content"))

	var content string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT content FROM notes WHERE id = 1`).Scan(&content))
	require.Equal(t, "hello", content)

	err := manager.RenameColumn(ctx, "notes", "body", "text")
	require.True(t, schemas.ErrNotFound.Has(err))

	err = manager.RenameColumn(ctx, "notes", "content", "id")
	require.True(t, schemas.Error.Has(err))
}

func TestDropColumn(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	require.NoError(t, manager.CreateTable(ctx, "notes", []schemas.ColumnDefinition{
		{Name: "title", Type: "TEXT"},
		{Name: "draft", Type: "BOOLEAN", Constraints: "NOT NULL DEFAULT TRUE"},
	}))
	execAll(ctx, t, db, `INSERT INTO notes (title) VALUES ('kept')`)

	require.NoError(t, manager.DropColumn(ctx, "notes", "draft"))

	columns, err := manager.TableColumns(ctx, "notes")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "title", "created_at", "updated_at"}, columnNames(columns))

	var title string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT title FROM notes`).Scan(&title))
	require.Equal(t, "kept", title)

	err = manager.DropColumn(ctx, "notes", "draft")
	require.True(t, schemas.ErrNotFound.Has(err))

	for _, name := range []string{"id", "created_at", "updated_at"} {
		err = manager.DropColumn(ctx, "notes", name)
		require.True(t, schemas.ErrProtectedColumn.Has(err), name)
	}
}

func TestModifyColumn(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	execAll(ctx, t, db,
		`CREATE TABLE readings (
			id INTEGER PRIMARY KEY,
			value TEXT,
			taken_by TEXT NOT NULL DEFAULT 'nobody'
		)`,
		`INSERT INTO readings (id, value) VALUES (1, '42'), (2, '0'), (3, '7')`,
	)

	notNull := true
	newDefault := "0"
	err := manager.ModifyColumn(ctx, "readings", "value", schemas.ColumnChanges{
		Type:    "INTEGER",
		NotNull: &notNull,
		Default: &newDefault,
	})
	require.NoError(t, err)

	columns, err := manager.TableColumns(ctx, "readings")
	require.NoError(t, err)
	require.Equal(t, []string{"id", "value", "taken_by"}, columnNames(columns))

	value := columns[1]
	require.Equal(t, "INTEGER", value.Type)
	require.True(t, value.NotNull)
	require.Equal(t, dbschema.DefaultLiteral, value.Default.Kind)
	require.Equal(t, "0", value.Default.Value)
	require.True(t, columns[0].IsPrimaryKey)

	// the rows came along, now as integers
	var total int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT SUM(value) FROM readings`).Scan(&total))
	require.EqualValues(t, 49, total)

	// clearing the default leaves the rest alone
	cleared := ""
	require.NoError(t, manager.ModifyColumn(ctx, "readings", "value", schemas.ColumnChanges{Default: &cleared}))
	columns, err = manager.TableColumns(ctx, "readings")
	require.NoError(t, err)
	require.True(t, columns[1].Default.IsZero())
	require.True(t, columns[1].NotNull)
	require.Equal(t, "INTEGER", columns[1].Type)
}

func TestModifyColumn_ValidationBlocks(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	execAll(ctx, t, db,
		`CREATE TABLE readings ( id INTEGER PRIMARY KEY, value INTEGER )`,
		`INSERT INTO readings (id, value) VALUES (1, NULL), (2, 3)`,
	)

	notNull := true
	err := manager.ModifyColumn(ctx, "readings", "value", schemas.ColumnChanges{NotNull: &notNull})
	require.True(t, schemas.ErrValidation.Has(err))

	result, ok := schemas.ValidationResultFromError(err)
	require.True(t, ok)
	require.False(t, result.Valid)
	require.EqualValues(t, 1, result.ConflictingRows)
	require.Len(t, result.Errors, 1)

	// the refused change left the column alone
	columns, err := manager.TableColumns(ctx, "readings")
	require.NoError(t, err)
	require.False(t, columns[1].NotNull)
}

func TestModifyColumn_ForeignKeys(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	manager, db := newTestManager(ctx, t)
	execAll(ctx, t, db,
		`CREATE TABLE authors ( id INTEGER PRIMARY KEY, name TEXT NOT NULL )`,
		`CREATE TABLE editors ( id INTEGER PRIMARY KEY, name TEXT NOT NULL )`,
		`CREATE TABLE notes (
			id INTEGER PRIMARY KEY,
			author_id INTEGER REFERENCES authors (id),
			editor_id INTEGER REFERENCES editors (id)
		)`,
		`INSERT INTO authors (id, name) VALUES (1, 'ada')`,
		`INSERT INTO editors (id, name) VALUES (9, 'ed')`,
		`INSERT INTO notes (id, author_id, editor_id) VALUES (1, 1, 9)`,
	)

	// retargeting author_id to editors keeps the editor_id key intact
	err := manager.ModifyColumn(ctx, "notes", "author_id", schemas.ColumnChanges{
		ForeignKey: &schemas.ForeignKeyRef{Table: "editors", Column: "id"},
	})
	require.True(t, schemas.ErrValidation.Has(err)) // author 1 is no editor

	result, ok := schemas.ValidationResultFromError(err)
	require.True(t, ok)
	require.EqualValues(t, 1, result.ConflictingRows)

	// removing the foreign key entirely is always data-safe
	require.NoError(t, manager.ModifyColumn(ctx, "notes", "author_id", schemas.ColumnChanges{}))

	fks, err := manager.ForeignKeys(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	require.Equal(t, "editor_id", fks[0].Column)
	require.Equal(t, "editors", fks[0].RefTable)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestManager_PreChangeSnapshots(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	db, err := basedb.Open(ctx, log, basedb.Config{Path: ctx.File("hearth.db")})
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	service := snapshots.NewService(log.Named("snapshots"), db, nil)
	trigger := snapshots.NewTrigger(log.Named("trigger"), service)
	manager := schemas.NewManager(log.Named("schemas"), db, trigger)

	require.NoError(t, manager.CreateTable(ctx, "notes", []schemas.ColumnDefinition{
		{Name: "title", Type: "TEXT"},
	}))
	require.NoError(t, manager.DropTable(ctx, "notes"))
	require.NoError(t, trigger.Close())

	page, err := service.List(ctx, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.TotalCount)

	var descriptions []string
	for _, snapshot := range page.Snapshots {
		require.Equal(t, snapshots.TypePreChange, snapshot.Type)
		descriptions = append(descriptions, snapshot.Description)
	}
	require.ElementsMatch(t, descriptions, []string{"create table notes", "drop table notes"})
}
