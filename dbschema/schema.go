// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

// Package dbschema models the structure of user tables and indexes as
// discovered from the SQLite catalog.
package dbschema

import (
	"context"
	"database/sql"
	"sort"
)

// Queryer is the minimal database surface needed for schema discovery.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Table describes a single user table.
type Table struct {
	Name        string       `json:"name"`
	CreateSQL   string       `json:"createSql"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty"`
}

// Column describes a single column in ordinal order.
type Column struct {
	Ordinal      int     `json:"ordinal"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	NotNull      bool    `json:"notNull"`
	Default      Default `json:"default"`
	IsPrimaryKey bool    `json:"isPrimaryKey"`
}

// ForeignKey describes a single-column foreign key clause.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"refTable"`
	RefColumn string `json:"refColumn"`
	OnUpdate  string `json:"onUpdate,omitempty"`
	OnDelete  string `json:"onDelete,omitempty"`
}

// Index describes a user-created index.
type Index struct {
	Name      string   `json:"name"`
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	Unique    bool     `json:"unique"`
	CreateSQL string   `json:"createSql"`
}

// FindColumn finds a column in the table.
func (table *Table) FindColumn(columnName string) (Column, bool) {
	for _, column := range table.Columns {
		if column.Name == columnName {
			return column, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table has a column with the given name.
func (table *Table) HasColumn(columnName string) bool {
	_, ok := table.FindColumn(columnName)
	return ok
}

// ColumnNames returns the column names in ordinal order.
func (table *Table) ColumnNames() []string {
	names := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		names = append(names, column.Name)
	}
	return names
}

// FindForeignKey finds the foreign key declared on the given column.
func (table *Table) FindForeignKey(columnName string) (ForeignKey, bool) {
	for _, fk := range table.ForeignKeys {
		if fk.Column == columnName {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// SortTables orders tables by name.
func SortTables(tables []Table) {
	sort.Slice(tables, func(i, k int) bool {
		return tables[i].Name < tables[k].Name
	})
}

// SortIndexes orders indexes by table, then name.
func SortIndexes(indexes []Index) {
	sort.Slice(indexes, func(i, k int) bool {
		if indexes[i].Table != indexes[k].Table {
			return indexes[i].Table < indexes[k].Table
		}
		return indexes[i].Name < indexes[k].Name
	})
}
