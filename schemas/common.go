// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

// Package schemas evolves the user schema: creating and dropping tables,
// adding, renaming, dropping, and rewriting columns.
//
// SQLite can alter columns only by rebuilding the table, so ModifyColumn
// and foreign-key additions synthesize a fresh definition from the catalog
// model, copy the rows over, and swap the tables inside one transaction.
// Every mutation first hands a fire-and-forget pre-change snapshot to the
// trigger, so there is a restore point from just before the change.
package schemas

import (
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the schemas package.
	Error = errs.Class("schemas")
	// ErrNotFound means the table or column does not exist.
	ErrNotFound = errs.Class("not found")
	// ErrProtectedColumn means the operation targeted one of the columns
	// every table is built around.
	ErrProtectedColumn = errs.Class("protected column")
)

// protectedColumns are created with every table and cannot be dropped.
var protectedColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// ColumnDefinition describes a column for CreateTable and AddColumn.
type ColumnDefinition struct {
	Name        string
	Type        string
	Constraints string         // raw clause, e.g. "NOT NULL DEFAULT 0"
	ForeignKey  *ForeignKeyRef // optional reference to another user table
}

// ForeignKeyRef names the column a foreign key points at.
type ForeignKeyRef struct {
	Table  string
	Column string
}

// ColumnChanges describes the desired end state of a column for
// ModifyColumn. Zero-valued fields keep what is there, except ForeignKey:
// the rebuilt column carries exactly the reference given here, so nil
// removes an existing one.
type ColumnChanges struct {
	Type       string  // "" keeps the current declared type
	NotNull    *bool   // nil keeps the current setting
	Default    *string // nil keeps, "" clears, anything else is the raw default
	ForeignKey *ForeignKeyRef
}
