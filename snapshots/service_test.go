// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package snapshots_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"

	"github.com/hearthdb/hearth/basedb"
	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/internal/testcontext"
	"github.com/hearthdb/hearth/kvstore"
	"github.com/hearthdb/hearth/kvstore/teststore"
	"github.com/hearthdb/hearth/schemas"
	"github.com/hearthdb/hearth/snapshots"
)

func newTestService(ctx *testcontext.Context, t *testing.T, blobs kvstore.Store) (*snapshots.Service, *basedb.DB) {
	log := zaptest.NewLogger(t)
	db, err := basedb.Open(ctx, log, basedb.Config{Path: ctx.File("hearth.db")})
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Check(db.Close) })
	return snapshots.NewService(log.Named("snapshots"), db, blobs), db
}

func exec(ctx *testcontext.Context, t *testing.T, db *basedb.DB, queries ...string) {
	for _, query := range queries {
		_, err := db.ExecContext(ctx, query)
		require.NoError(t, err, query)
	}
}

func blobKeys(ctx *testcontext.Context, t *testing.T, blobs kvstore.Store) []string {
	var keys []string
	err := blobs.Range(ctx, func(_ context.Context, key kvstore.Key, _ kvstore.Value) error {
		keys = append(keys, key.String())
		return nil
	})
	require.NoError(t, err)
	return keys
}

func TestChanged(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service, db := newTestService(ctx, t, nil)

	// nothing stored yet, even an empty schema counts as drift
	changed, err := service.Changed(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = service.Create(ctx, snapshots.Options{})
	require.NoError(t, err)

	changed, err = service.Changed(ctx)
	require.NoError(t, err)
	require.False(t, changed)

	exec(ctx, t, db, `CREATE TABLE items ( id INTEGER PRIMARY KEY )`)

	changed, err = service.Changed(ctx)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestCreate(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service, db := newTestService(ctx, t, nil)
	exec(ctx, t, db,
		`CREATE TABLE items ( id INTEGER PRIMARY KEY, label TEXT NOT NULL DEFAULT 'new' )`,
	)

	snapshot, err := service.Create(ctx, snapshots.Options{
		Name:        "v1",
		Description: "first cut",
		CreatedBy:   "test",
	})
	require.NoError(t, err)
	require.NotEmpty(t, snapshot.ID)
	require.EqualValues(t, 1, snapshot.Version)
	require.Equal(t, "v1", snapshot.Name)
	require.Equal(t, snapshots.TypeManual, snapshot.Type)
	require.Len(t, snapshot.SchemaHash, 64)
	require.Contains(t, snapshot.FullSchema, `CREATE TABLE items`)

	var tables []dbschema.Table
	require.NoError(t, json.Unmarshal([]byte(snapshot.TablesJSON), &tables))
	require.Len(t, tables, 1)
	require.Equal(t, "items", tables[0].Name)
	require.True(t, tables[0].HasColumn("label"))

	// an unchanged schema still gets a fresh version
	again, err := service.Create(ctx, snapshots.Options{})
	require.NoError(t, err)
	require.EqualValues(t, 2, again.Version)
	require.Equal(t, snapshot.SchemaHash, again.SchemaHash)
	require.NotEmpty(t, again.Name)
}

func TestCreate_Payloads(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	service, db := newTestService(ctx, t, blobs)
	exec(ctx, t, db,
		`CREATE TABLE items ( id INTEGER PRIMARY KEY, label TEXT NOT NULL )`,
		`INSERT INTO items (id, label) VALUES (1, 'one'), (2, 'two')`,
	)

	snapshot, err := service.Create(ctx, snapshots.Options{Name: "v1"})
	require.NoError(t, err)

	value, err := blobs.Get(ctx, kvstore.Key("snapshots/"+snapshot.ID+"/data.json"))
	require.NoError(t, err)

	var dumps []dbschema.TableData
	require.NoError(t, json.Unmarshal(value, &dumps))
	require.Len(t, dumps, 1)
	require.Equal(t, "items", dumps[0].Name)
	require.Equal(t, []string{"id", "label"}, dumps[0].Columns)
	require.Len(t, dumps[0].Rows, 2)
	require.Equal(t, "one", dumps[0].Rows[0][1])

	value, err = blobs.Get(ctx, kvstore.Key("snapshots/"+snapshot.ID+"/schema.json"))
	require.NoError(t, err)

	var tables []dbschema.Table
	require.NoError(t, json.Unmarshal(value, &tables))
	require.Len(t, tables, 1)
	require.Equal(t, snapshot.TablesJSON, string(value))
}

func TestCreate_DegradedBlobStore(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	service, db := newTestService(ctx, t, blobs)
	exec(ctx, t, db,
		`CREATE TABLE items ( id INTEGER PRIMARY KEY )`,
		`INSERT INTO items (id) VALUES (1)`,
	)

	blobs.SetError(errs.New("disk full"))
	snapshot, err := service.Create(ctx, snapshots.Options{Name: "degraded"})
	require.NoError(t, err)
	blobs.SetError(nil)

	require.Empty(t, blobKeys(ctx, t, blobs))

	// the metadata row is intact and restores schema-only
	result, err := service.Restore(ctx, snapshot.ID)
	require.NoError(t, err)
	require.True(t, result.SchemaOnly)
	require.Equal(t, 1, result.TablesRestored)
	require.Zero(t, result.RowsRestored)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count))
	require.Zero(t, count)
}

func TestListAndGet(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service, db := newTestService(ctx, t, nil)
	exec(ctx, t, db, `CREATE TABLE items ( id INTEGER PRIMARY KEY )`)

	var ids []string
	for i := 0; i < 3; i++ {
		snapshot, err := service.Create(ctx, snapshots.Options{Name: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
		ids = append(ids, snapshot.ID)
	}

	page, err := service.List(ctx, 2, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, page.TotalCount)
	require.Equal(t, 2, page.Limit)
	require.Len(t, page.Snapshots, 2)
	require.Equal(t, "s2", page.Snapshots[0].Name)
	require.Equal(t, "s1", page.Snapshots[1].Name)

	page, err = service.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 1)
	require.Equal(t, "s0", page.Snapshots[0].Name)

	// defaults kick in for nonsense arguments
	page, err = service.List(ctx, 0, -3)
	require.NoError(t, err)
	require.Equal(t, snapshots.DefaultListLimit, page.Limit)
	require.Equal(t, 0, page.Offset)
	require.Len(t, page.Snapshots, 3)

	got, err := service.Get(ctx, ids[1])
	require.NoError(t, err)
	require.Equal(t, "s1", got.Name)

	_, err = service.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.True(t, snapshots.ErrNotFound.Has(err))
}

func TestRestore_RoundTrip(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	service, db := newTestService(ctx, t, blobs)
	exec(ctx, t, db,
		`CREATE TABLE authors ( id INTEGER PRIMARY KEY, name TEXT NOT NULL )`,
		`CREATE TABLE notes (
			id INTEGER PRIMARY KEY,
			author_id INTEGER NOT NULL REFERENCES authors (id) ON DELETE CASCADE,
			body TEXT NOT NULL DEFAULT ''
		)`,
		`INSERT INTO authors (id, name) VALUES (1, 'ada'), (2, 'grace')`,
		`INSERT INTO notes (id, author_id, body) VALUES (10, 1, 'first'), (11, 2, 'second')`,
	)

	snapshot, err := service.Create(ctx, snapshots.Options{Name: "v1", CreatedBy: "test"})
	require.NoError(t, err)

	// drift away from the captured state
	exec(ctx, t, db,
		`DROP TABLE notes`,
		`ALTER TABLE authors ADD COLUMN bio TEXT`,
		`CREATE TABLE scratch ( id INTEGER PRIMARY KEY )`,
	)

	result, err := service.Restore(ctx, snapshot.ID)
	require.NoError(t, err)
	require.Equal(t, snapshot.ID, result.SnapshotID)
	require.EqualValues(t, snapshot.Version, result.Version)
	require.False(t, result.SchemaOnly)
	require.Equal(t, 2, result.TablesDropped)
	require.Equal(t, 2, result.TablesRestored)
	require.EqualValues(t, 4, result.RowsRestored)
	require.Empty(t, result.TableErrors)
	require.NotEmpty(t, result.NewSnapshotID)

	tables, err := service.TableSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	require.Equal(t, "authors", tables[0].Name)
	require.Equal(t, "notes", tables[1].Name)
	require.False(t, tables[0].HasColumn("bio"))

	var body string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT body FROM notes WHERE id = 11`).Scan(&body))
	require.Equal(t, "second", body)

	fk, ok := tables[1].FindForeignKey("author_id")
	require.True(t, ok)
	require.Equal(t, "authors", fk.RefTable)

	// the after-state got its own automatic snapshot
	after, err := service.Get(ctx, result.NewSnapshotID)
	require.NoError(t, err)
	require.Equal(t, snapshots.TypeAuto, after.Type)
	require.Greater(t, after.Version, snapshot.Version)
}

func TestRestore_NotFound(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service, _ := newTestService(ctx, t, nil)

	_, err := service.Restore(ctx, "missing")
	require.True(t, snapshots.ErrNotFound.Has(err))
}

func TestRestore_ReinstatesDroppedColumn(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	service, db := newTestService(ctx, t, blobs)
	manager := schemas.NewManager(zaptest.NewLogger(t).Named("schemas"), db, nil)

	err := manager.CreateTable(ctx, "notes", []schemas.ColumnDefinition{
		{Name: "title", Type: "TEXT"},
	})
	require.NoError(t, err)

	tables, err := service.TableSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "notes", tables[0].Name)
	for _, name := range []string{"id", "title", "created_at", "updated_at"} {
		require.True(t, tables[0].HasColumn(name), name)
	}

	exec(ctx, t, db, `INSERT INTO notes (title) VALUES ('remember the milk')`)

	snapshot, err := service.Create(ctx, snapshots.Options{Name: "v1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, snapshot.Version)

	require.NoError(t, manager.DropColumn(ctx, "notes", "title"))

	tables, err = service.TableSchemas(ctx)
	require.NoError(t, err)
	require.False(t, tables[0].HasColumn("title"))

	result, err := service.Restore(ctx, snapshot.ID)
	require.NoError(t, err)
	require.False(t, result.SchemaOnly)
	require.EqualValues(t, 1, result.RowsRestored)

	var title string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT title FROM notes`).Scan(&title))
	require.Equal(t, "remember the milk", title)
}

func TestPruneAndCleanupBlobs(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	blobs := teststore.New()
	service, db := newTestService(ctx, t, blobs)
	exec(ctx, t, db, `CREATE TABLE items ( id INTEGER PRIMARY KEY )`)

	var ids []string
	for i := 0; i < 5; i++ {
		snapshot, err := service.Create(ctx, snapshots.Options{Name: fmt.Sprintf("s%d", i)})
		require.NoError(t, err)
		ids = append(ids, snapshot.ID)
	}

	removed, err := service.Prune(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, removed)

	page, err := service.List(ctx, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.TotalCount)
	require.Equal(t, ids[4], page.Snapshots[0].ID)
	require.Equal(t, ids[3], page.Snapshots[1].ID)

	// pruning leaves payloads behind; cleanup reaps them
	require.Len(t, blobKeys(ctx, t, blobs), 10)

	cleaned, err := service.CleanupBlobs(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 6, cleaned)
	require.Len(t, blobKeys(ctx, t, blobs), 4)

	cleaned, err = service.CleanupBlobs(ctx)
	require.NoError(t, err)
	require.Zero(t, cleaned)
}
