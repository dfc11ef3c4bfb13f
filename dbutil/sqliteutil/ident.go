// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

// Package sqliteutil implements catalog introspection and identifier
// handling for SQLite databases.
package sqliteutil

import (
	"regexp"
	"strings"

	"github.com/zeebo/errs"
)

var (
	// ErrInvalidIdentifier means a table, column or index name failed validation.
	ErrInvalidIdentifier = errs.Class("invalid identifier")
	// ErrInvalidType means a column type is not in the allow-list.
	ErrInvalidType = errs.Class("invalid column type")
)

// MaxIdentifierLength bounds table, column and index names.
const MaxIdentifierLength = 64

var rxIdentifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// reservedWords are SQL keywords refused as identifiers regardless of quoting,
// so that generated DDL stays readable and portable across SQLite versions.
var reservedWords = map[string]bool{
	"ABORT": true, "ACTION": true, "ADD": true, "ALL": true, "ALTER": true,
	"AND": true, "AS": true, "ASC": true, "AUTOINCREMENT": true, "BEGIN": true,
	"BETWEEN": true, "BY": true, "CASCADE": true, "CASE": true, "CHECK": true,
	"COLLATE": true, "COLUMN": true, "COMMIT": true, "CONSTRAINT": true,
	"CREATE": true, "CROSS": true, "DEFAULT": true, "DEFERRABLE": true,
	"DELETE": true, "DESC": true, "DISTINCT": true, "DROP": true, "ELSE": true,
	"END": true, "ESCAPE": true, "EXCEPT": true, "EXISTS": true, "FOREIGN": true,
	"FROM": true, "FULL": true, "GROUP": true, "HAVING": true, "IN": true,
	"INDEX": true, "INNER": true, "INSERT": true, "INTERSECT": true,
	"INTO": true, "IS": true, "ISNULL": true, "JOIN": true, "KEY": true,
	"LEFT": true, "LIKE": true, "LIMIT": true, "NATURAL": true, "NOT": true,
	"NOTNULL": true, "NULL": true, "ON": true, "OR": true, "ORDER": true,
	"OUTER": true, "PRAGMA": true, "PRIMARY": true, "REFERENCES": true,
	"RESTRICT": true, "RIGHT": true, "ROLLBACK": true, "SELECT": true,
	"SET": true, "TABLE": true, "THEN": true, "TRANSACTION": true,
	"TRIGGER": true, "UNION": true, "UNIQUE": true, "UPDATE": true,
	"USING": true, "VACUUM": true, "VALUES": true, "VIEW": true,
	"WHEN": true, "WHERE": true,
}

// ValidateIdentifier checks a user-supplied table, column or index name
// against the allow-list pattern and returns it quoted for use in DDL.
// Names starting with an underscore never validate; that namespace is
// reserved for bookkeeping tables.
func ValidateIdentifier(kind, name string) (string, error) {
	if name == "" {
		return "", ErrInvalidIdentifier.New("%s name is empty", kind)
	}
	if len(name) > MaxIdentifierLength {
		return "", ErrInvalidIdentifier.New("%s name %q exceeds %d characters", kind, name, MaxIdentifierLength)
	}
	if !rxIdentifier.MatchString(name) {
		return "", ErrInvalidIdentifier.New("%s name %q must start with a letter and contain only letters, digits and underscores", kind, name)
	}
	if reservedWords[strings.ToUpper(name)] {
		return "", ErrInvalidIdentifier.New("%s name %q is a reserved word", kind, name)
	}
	return QuoteIdentifier(name), nil
}

// QuoteIdentifier wraps a name in double quotes, doubling any embedded
// quotes. Catalog-sourced names pass through here as well, so quoting never
// assumes prior validation.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// IsSystemName reports whether the name belongs to the reserved namespace:
// bookkeeping tables carry a leading underscore and SQLite owns sqlite_*.
func IsSystemName(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, "sqlite_")
}

// columnTypes is the allow-list of declared types, keyed by normalized alias.
var columnTypes = map[string]string{
	"TEXT":      "TEXT",
	"STRING":    "TEXT",
	"VARCHAR":   "TEXT",
	"INTEGER":   "INTEGER",
	"INT":       "INTEGER",
	"BIGINT":    "INTEGER",
	"REAL":      "REAL",
	"FLOAT":     "REAL",
	"DOUBLE":    "REAL",
	"NUMERIC":   "NUMERIC",
	"BOOLEAN":   "BOOLEAN",
	"BOOL":      "BOOLEAN",
	"BLOB":      "BLOB",
	"DATE":      "DATE",
	"DATETIME":  "DATETIME",
	"TIMESTAMP": "DATETIME",
	"JSON":      "JSON",
}

// NormalizeType maps a declared column type onto the canonical allow-list.
func NormalizeType(columnType string) (string, error) {
	normalized, ok := columnTypes[strings.ToUpper(strings.TrimSpace(columnType))]
	if !ok {
		return "", ErrInvalidType.New("%q is not an allowed column type", columnType)
	}
	return normalized, nil
}

// IsNumericType reports whether a canonical type participates in
// casting-safety validation.
func IsNumericType(columnType string) bool {
	switch strings.ToUpper(strings.TrimSpace(columnType)) {
	case "INTEGER", "REAL", "NUMERIC", "BOOLEAN":
		return true
	}
	return false
}
