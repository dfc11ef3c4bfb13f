// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

package sqliteutil

import (
	"context"
	"database/sql"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// WithTx runs fn inside a transaction on db. If fn returns an error the
// transaction is rolled back, otherwise it is committed. Retries are left to
// the driver's busy timeout.
func WithTx(ctx context.Context, db *sql.DB, fn func(context.Context, *sql.Tx) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err == nil {
			err = Error.Wrap(tx.Commit())
		} else {
			err = errs.Combine(err, Error.Wrap(tx.Rollback()))
		}
	}()

	return fn(ctx, tx)
}
