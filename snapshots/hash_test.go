// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package snapshots_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/snapshots"
)

func TestHashSchemas(t *testing.T) {
	authors := dbschema.Table{Name: "authors", CreateSQL: `CREATE TABLE authors ( id INTEGER PRIMARY KEY )`}
	notes := dbschema.Table{Name: "notes", CreateSQL: `CREATE TABLE notes ( id INTEGER PRIMARY KEY, body TEXT )`}

	hash := snapshots.HashSchemas([]dbschema.Table{authors, notes})
	require.Len(t, hash, 64)

	// order does not matter
	require.Equal(t, hash, snapshots.HashSchemas([]dbschema.Table{notes, authors}))

	// content does
	altered := notes
	altered.CreateSQL = `CREATE TABLE notes ( id INTEGER PRIMARY KEY, body TEXT, pinned INTEGER )`
	require.NotEqual(t, hash, snapshots.HashSchemas([]dbschema.Table{authors, altered}))

	// an empty schema still hashes deterministically
	require.Equal(t, snapshots.HashSchemas(nil), snapshots.HashSchemas([]dbschema.Table{}))
	require.NotEqual(t, hash, snapshots.HashSchemas(nil))
}

func TestFullSchema(t *testing.T) {
	require.Equal(t, "", snapshots.FullSchema(nil))

	script := snapshots.FullSchema([]dbschema.Table{
		{Name: "authors", CreateSQL: `CREATE TABLE authors ( id INTEGER PRIMARY KEY )`},
		{Name: "notes", CreateSQL: `CREATE TABLE notes ( id INTEGER PRIMARY KEY )`},
	})
	require.Equal(t,
		"CREATE TABLE authors ( id INTEGER PRIMARY KEY );\n\n"+
			"CREATE TABLE notes ( id INTEGER PRIMARY KEY );\n",
		script)
}
