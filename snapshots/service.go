// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hearthdb/hearth/basedb"
	"github.com/hearthdb/hearth/dbschema"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
	"github.com/hearthdb/hearth/kvstore"
)

// DefaultListLimit is used when a caller asks for a page without a limit.
const DefaultListLimit = 50

const blobPrefix = "snapshots/"

func dataKey(id string) kvstore.Key {
	return kvstore.Key(blobPrefix + id + "/data.json")
}

func schemaKey(id string) kvstore.Key {
	return kvstore.Key(blobPrefix + id + "/schema.json")
}

// blobSnapshotID extracts the snapshot id from a payload key, returning
// false for keys outside the snapshot namespace.
func blobSnapshotID(key kvstore.Key) (string, bool) {
	rest, found := strings.CutPrefix(key.String(), blobPrefix)
	if !found {
		return "", false
	}
	id, _, found := strings.Cut(rest, string(kvstore.Delimiter))
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// Service captures and serves schema snapshots.
//
// architecture: Service
type Service struct {
	log   *zap.Logger
	db    *basedb.DB
	blobs kvstore.Store
}

// NewService creates a snapshot service writing payloads to blobs. A nil
// blob store is allowed and makes every snapshot schema-only.
func NewService(log *zap.Logger, db *basedb.DB, blobs kvstore.Store) *Service {
	return &Service{
		log:   log,
		db:    db,
		blobs: blobs,
	}
}

// TableSchemas returns the current user tables in name order, as discovered
// from the catalog. Bookkeeping tables never appear.
func (service *Service) TableSchemas(ctx context.Context) (_ []dbschema.Table, err error) {
	defer mon.Task()(&ctx)(&err)

	tables, err := sqliteutil.QueryTables(ctx, service.db)
	return tables, Error.Wrap(err)
}

// Changed reports whether the schema differs from the most recent snapshot.
// With no snapshots stored it reports true, even for an empty schema.
func (service *Service) Changed(ctx context.Context) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	latest, ok, err := service.db.LatestSnapshot(ctx)
	if err != nil {
		return false, Error.Wrap(err)
	}
	if !ok {
		return true, nil
	}

	tables, err := service.TableSchemas(ctx)
	if err != nil {
		return false, err
	}
	return HashSchemas(tables) != latest.SchemaHash, nil
}

// Create captures the current schema as a new snapshot. The metadata row is
// written even when payload storage fails; such snapshots restore
// schema-only.
func (service *Service) Create(ctx context.Context, opts Options) (_ Snapshot, err error) {
	defer mon.Task()(&ctx)(&err)

	if opts.Type == "" {
		opts.Type = TypeManual
	}
	now := time.Now().UTC()
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("%s_%d", opts.Type, now.Unix())
	}

	tables, err := service.TableSchemas(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return Snapshot{}, Error.Wrap(err)
	}

	version, err := service.db.NextVersion(ctx)
	if err != nil {
		return Snapshot{}, Error.Wrap(err)
	}

	snapshot := Snapshot{
		ID:                 uuid.NewString(),
		Version:            version,
		Name:               opts.Name,
		Description:        opts.Description,
		FullSchema:         FullSchema(tables),
		TablesJSON:         string(tablesJSON),
		SchemaHash:         HashSchemas(tables),
		CreatedBy:          opts.CreatedBy,
		Type:               opts.Type,
		ExternalCheckpoint: opts.ExternalCheckpoint,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	service.storeBlobs(ctx, snapshot.ID, tables, tablesJSON)

	if err := service.db.InsertSnapshot(ctx, snapshot); err != nil {
		return Snapshot{}, err
	}

	service.log.Info("snapshot created",
		zap.String("id", snapshot.ID),
		zap.Int64("version", snapshot.Version),
		zap.String("type", string(snapshot.Type)),
		zap.String("name", snapshot.Name))
	return snapshot, nil
}

// storeBlobs writes the data and schema payloads for a snapshot. Failures
// degrade the snapshot to schema-only and are never returned to the caller.
func (service *Service) storeBlobs(ctx context.Context, id string, tables []dbschema.Table, tablesJSON []byte) {
	if service.blobs == nil {
		return
	}

	dumps, err := service.dumpTables(ctx, tables)
	if err == nil {
		var data []byte
		data, err = json.Marshal(dumps)
		if err == nil {
			err = service.blobs.Put(ctx, dataKey(id), data)
		}
	}
	if err != nil {
		mon.Counter("snapshot_blob_failures").Inc(1)
		service.log.Warn("snapshot degraded to schema-only",
			zap.String("id", id), zap.Error(ErrStorageDegraded.Wrap(err)))
		return
	}

	if err := service.blobs.Put(ctx, schemaKey(id), tablesJSON); err != nil {
		mon.Counter("snapshot_blob_failures").Inc(1)
		service.log.Warn("schema payload not stored",
			zap.String("id", id), zap.Error(ErrStorageDegraded.Wrap(err)))
	}
}

// dumpTables reads every row of every table. The dump shares the column
// order of the stored table definitions.
func (service *Service) dumpTables(ctx context.Context, tables []dbschema.Table) (_ []dbschema.TableData, err error) {
	defer mon.Task()(&ctx)(&err)

	dumps := make([]dbschema.TableData, 0, len(tables))
	for _, table := range tables {
		dump, err := service.dumpTable(ctx, table)
		if err != nil {
			return nil, errs.Wrap(err)
		}
		dumps = append(dumps, dump)
	}
	return dumps, nil
}

func (service *Service) dumpTable(ctx context.Context, table dbschema.Table) (_ dbschema.TableData, err error) {
	dump := dbschema.TableData{
		Name:    table.Name,
		Columns: table.ColumnNames(),
		Rows:    []dbschema.RowData{},
	}

	quoted := make([]string, 0, len(dump.Columns))
	for _, column := range dump.Columns {
		quoted = append(quoted, sqliteutil.QuoteIdentifier(column))
	}

	rows, err := service.db.QueryContext(ctx, `
		SELECT `+strings.Join(quoted, ", ")+`
		FROM `+sqliteutil.QuoteIdentifier(table.Name))
	if err != nil {
		return dbschema.TableData{}, errs.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	for rows.Next() {
		values := make(dbschema.RowData, len(dump.Columns))
		pointers := make([]interface{}, len(values))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return dbschema.TableData{}, errs.Wrap(err)
		}
		// the driver hands text back as bytes; keep dumps readable
		for i, value := range values {
			if b, ok := value.([]byte); ok {
				values[i] = string(b)
			}
		}
		dump.AddRow(values)
	}
	return dump, errs.Wrap(rows.Err())
}

// List returns one page of snapshots ordered by version descending.
func (service *Service) List(ctx context.Context, limit, offset int) (_ Page, err error) {
	defer mon.Task()(&ctx)(&err)

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	snapshots, total, err := service.db.ListSnapshots(ctx, limit, offset)
	if err != nil {
		return Page{}, Error.Wrap(err)
	}
	return Page{
		Snapshots:  snapshots,
		Limit:      limit,
		Offset:     offset,
		TotalCount: total,
	}, nil
}

// Get returns a single snapshot by id.
func (service *Service) Get(ctx context.Context, id string) (_ Snapshot, err error) {
	defer mon.Task()(&ctx)(&err)

	snapshot, ok, err := service.db.GetSnapshot(ctx, id)
	if err != nil {
		return Snapshot{}, Error.Wrap(err)
	}
	if !ok {
		return Snapshot{}, ErrNotFound.New("%s", id)
	}
	return snapshot, nil
}

// Prune deletes all but the keep most recent snapshots and reports how many
// were removed. Payloads of pruned snapshots stay behind until CleanupBlobs
// runs.
func (service *Service) Prune(ctx context.Context, keep int) (removed int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if keep < 0 {
		keep = 0
	}
	removed, err = service.db.PruneSnapshots(ctx, keep)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if removed > 0 {
		service.log.Info("snapshots pruned",
			zap.Int64("removed", removed), zap.Int("keep", keep))
	}
	return removed, nil
}

// CleanupBlobs deletes payloads whose snapshot row no longer exists and
// reports how many keys were removed.
func (service *Service) CleanupBlobs(ctx context.Context) (removed int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if service.blobs == nil {
		return 0, nil
	}

	ids, err := service.db.SnapshotIDs(ctx)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	// collect first: stores may forbid writes during iteration
	var orphaned []kvstore.Key
	err = service.blobs.Range(ctx, func(ctx context.Context, key kvstore.Key, _ kvstore.Value) error {
		id, ok := blobSnapshotID(key)
		if !ok || known[id] {
			return nil
		}
		orphaned = append(orphaned, append(kvstore.Key{}, key...))
		return nil
	})
	if err != nil {
		return 0, Error.Wrap(err)
	}

	for _, key := range orphaned {
		if err := service.blobs.Delete(ctx, key); err != nil {
			return removed, Error.Wrap(err)
		}
		removed++
	}
	if removed > 0 {
		service.log.Info("orphaned snapshot payloads removed", zap.Int64("removed", removed))
	}
	return removed, nil
}
