// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

package sqliteutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthdb/hearth/dbutil/sqliteutil"
)

func TestValidateIdentifier(t *testing.T) {
	for _, name := range []string{"notes", "Notes2", "a", "author_id", "x_1_y"} {
		quoted, err := sqliteutil.ValidateIdentifier("table", name)
		require.NoError(t, err, name)
		require.Equal(t, `"`+name+`"`, quoted)
	}

	invalid := []string{
		"",
		"_private",
		"sqlite_master",
		"1notes",
		"bad-name",
		"bad name",
		"naïve",
		"drop",
		"SELECT",
		strings.Repeat("x", 65),
		`no"quotes`,
	}
	for _, name := range invalid {
		_, err := sqliteutil.ValidateIdentifier("column", name)
		require.Error(t, err, "name=%q", name)
		require.True(t, sqliteutil.ErrInvalidIdentifier.Has(err), "name=%q", name)
	}
}

func TestNormalizeType(t *testing.T) {
	tests := map[string]string{
		"TEXT":      "TEXT",
		"text":      "TEXT",
		"varchar":   "TEXT",
		"String":    "TEXT",
		"INT":       "INTEGER",
		"bigint":    "INTEGER",
		"integer":   "INTEGER",
		"float":     "REAL",
		"DOUBLE":    "REAL",
		"bool":      "BOOLEAN",
		"timestamp": "DATETIME",
		"json":      "JSON",
		" blob ":    "BLOB",
	}
	for in, want := range tests {
		got, err := sqliteutil.NormalizeType(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	for _, in := range []string{"", "UUID", "TEXT[]", "money"} {
		_, err := sqliteutil.NormalizeType(in)
		require.Error(t, err, in)
		require.True(t, sqliteutil.ErrInvalidType.Has(err), in)
	}
}

func TestIsNumericType(t *testing.T) {
	require.True(t, sqliteutil.IsNumericType("INTEGER"))
	require.True(t, sqliteutil.IsNumericType("real"))
	require.True(t, sqliteutil.IsNumericType("NUMERIC"))
	require.True(t, sqliteutil.IsNumericType("BOOLEAN"))
	require.False(t, sqliteutil.IsNumericType("TEXT"))
	require.False(t, sqliteutil.IsNumericType("BLOB"))
	require.False(t, sqliteutil.IsNumericType("DATETIME"))
}

func TestQuoteIdentifier(t *testing.T) {
	require.Equal(t, `"notes"`, sqliteutil.QuoteIdentifier("notes"))
	require.Equal(t, `"a""b"`, sqliteutil.QuoteIdentifier(`a"b`))
}

func TestIsSystemName(t *testing.T) {
	require.True(t, sqliteutil.IsSystemName("_schema_snapshots"))
	require.True(t, sqliteutil.IsSystemName("_anything"))
	require.True(t, sqliteutil.IsSystemName("sqlite_master"))
	require.True(t, sqliteutil.IsSystemName("sqlite_autoindex_notes_1"))
	require.False(t, sqliteutil.IsSystemName("notes"))
	require.False(t, sqliteutil.IsSystemName("my_table"))
}
