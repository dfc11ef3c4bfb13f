// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

// Package snapshots captures, stores, and restores versioned snapshots of
// the user schema.
//
// A snapshot is a metadata row in the bookkeeping database plus, when blob
// storage is available, two payloads under the snapshot id: a full dump of
// table rows and a copy of the schema description. The metadata row is
// authoritative; a snapshot whose payloads are missing restores schema-only.
package snapshots

import (
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/hearthdb/hearth/basedb"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the snapshots package.
	Error = errs.Class("snapshots")
	// ErrNotFound means the requested snapshot does not exist.
	ErrNotFound = errs.Class("snapshot not found")
	// ErrStorageDegraded classifies blob-store failures in logs. Payload
	// storage is best-effort, so this class never reaches a caller.
	ErrStorageDegraded = errs.Class("snapshot storage degraded")
)

// Snapshot is a stored schema snapshot.
type Snapshot = basedb.Snapshot

// Type says how a snapshot came to be.
type Type = basedb.SnapshotType

const (
	// TypeManual marks snapshots requested by a caller.
	TypeManual = basedb.TypeManual
	// TypeAuto marks snapshots the engine recorded on its own.
	TypeAuto = basedb.TypeAuto
	// TypePreChange marks snapshots captured ahead of a schema change.
	TypePreChange = basedb.TypePreChange
)

// Options control how a snapshot is captured. The zero value asks for a
// manual snapshot with a generated name.
type Options struct {
	Name               string
	Description        string
	CreatedBy          string
	Type               Type
	ExternalCheckpoint string
}

// Page is one page of the snapshot listing, newest version first.
type Page struct {
	Snapshots  []Snapshot
	Limit      int
	Offset     int
	TotalCount int64
}

// TableError records a table whose rows could not be restored.
type TableError struct {
	Table string
	Err   string
}

// RestoreResult reports what a restore accomplished.
type RestoreResult struct {
	SnapshotID     string
	Version        int64
	TablesDropped  int
	TablesRestored int
	RowsRestored   int64
	SchemaOnly     bool
	TableErrors    []TableError
	NewSnapshotID  string
}
