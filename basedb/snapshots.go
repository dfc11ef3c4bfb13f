// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package basedb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeebo/errs"
)

// SnapshotType says how a snapshot came to be.
type SnapshotType string

const (
	// TypeManual marks snapshots requested by a caller.
	TypeManual SnapshotType = "manual"
	// TypeAuto marks snapshots the engine recorded on its own.
	TypeAuto SnapshotType = "auto"
	// TypePreChange marks snapshots captured ahead of a schema change.
	TypePreChange SnapshotType = "pre_change"
)

// Snapshot is a stored schema snapshot. Rows are immutable once written.
type Snapshot struct {
	ID                 string
	Version            int64
	Name               string
	Description        string
	FullSchema         string
	TablesJSON         string
	SchemaHash         string
	CreatedBy          string
	Type               SnapshotType
	ExternalCheckpoint string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const snapshotColumns = `id, version, name, description, full_schema, tables_json,
	schema_hash, created_by, snapshot_type, external_checkpoint, created_at, updated_at`

// InsertSnapshot stores a new snapshot row.
func (db *DB) InsertSnapshot(ctx context.Context, snapshot Snapshot) (err error) {
	defer mon.Task()(&ctx)(&err)

	checkpoint := sql.NullString{String: snapshot.ExternalCheckpoint, Valid: snapshot.ExternalCheckpoint != ""}
	_, err = db.ExecContext(ctx, `
		INSERT INTO _schema_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.Version, snapshot.Name, snapshot.Description,
		snapshot.FullSchema, snapshot.TablesJSON, snapshot.SchemaHash,
		snapshot.CreatedBy, string(snapshot.Type), checkpoint,
		snapshot.CreatedAt.UTC(), snapshot.UpdatedAt.UTC(),
	)
	return Error.Wrap(err)
}

// GetSnapshot returns the snapshot with the given id; the second return
// value reports whether it exists.
func (db *DB) GetSnapshot(ctx context.Context, id string) (_ Snapshot, _ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM _schema_snapshots WHERE id = ?`, id)
	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, Error.Wrap(err)
	}
	return snapshot, true, nil
}

// LatestSnapshot returns the snapshot with the highest version; the second
// return value reports whether any snapshot exists.
func (db *DB) LatestSnapshot(ctx context.Context) (_ Snapshot, _ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.QueryRowContext(ctx, `
		SELECT ` + snapshotColumns + ` FROM _schema_snapshots
		ORDER BY version DESC LIMIT 1`)
	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, Error.Wrap(err)
	}
	return snapshot, true, nil
}

// ListSnapshots returns a page of snapshots ordered by version descending,
// along with the total count.
func (db *DB) ListSnapshots(ctx context.Context, limit, offset int) (_ []Snapshot, total int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _schema_snapshots`).Scan(&total)
	if err != nil {
		return nil, 0, Error.Wrap(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM _schema_snapshots
		ORDER BY version DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var snapshots []Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, Error.Wrap(err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, total, Error.Wrap(rows.Err())
}

// PruneSnapshots deletes all but the keep most recent snapshots by version
// and returns how many rows were removed.
func (db *DB) PruneSnapshots(ctx context.Context, keep int) (removed int64, err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := db.ExecContext(ctx, `
		DELETE FROM _schema_snapshots WHERE id NOT IN (
			SELECT id FROM _schema_snapshots ORDER BY version DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	removed, err = result.RowsAffected()
	return removed, Error.Wrap(err)
}

// SnapshotIDs returns the ids of every stored snapshot.
func (db *DB) SnapshotIDs(ctx context.Context) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.QueryContext(ctx, `SELECT id FROM _schema_snapshots`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, Error.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, Error.Wrap(rows.Err())
}

// NextVersion atomically allocates the next snapshot version. The counter
// starts at 1 and never repeats or skips, no matter how many callers race.
func (db *DB) NextVersion(ctx context.Context) (version int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.QueryRowContext(ctx, `
		INSERT INTO _schema_version (id, current_version) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET current_version = current_version + 1
		RETURNING current_version`).Scan(&version)
	return version, Error.Wrap(err)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scannable) (Snapshot, error) {
	var snapshot Snapshot
	var checkpoint sql.NullString
	var snapshotType string
	err := row.Scan(
		&snapshot.ID, &snapshot.Version, &snapshot.Name, &snapshot.Description,
		&snapshot.FullSchema, &snapshot.TablesJSON, &snapshot.SchemaHash,
		&snapshot.CreatedBy, &snapshotType, &checkpoint,
		&snapshot.CreatedAt, &snapshot.UpdatedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Type = SnapshotType(snapshotType)
	snapshot.ExternalCheckpoint = checkpoint.String
	return snapshot, nil
}
