// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package schemas

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/errs"

	"github.com/hearthdb/hearth/basedb"
	"github.com/hearthdb/hearth/dbutil/sqliteutil"
)

// ErrValidation means requested column changes conflict with stored rows.
// The wrapped error carries a ValidationResult, retrievable with
// ValidationResultFromError.
var ErrValidation = errs.Class("validation")

// ValidationResult reports whether column changes can be applied to the
// rows already in the table.
type ValidationResult struct {
	Valid           bool
	Errors          []string
	ConflictingRows int64 // summed across failed checks
}

func (result *ValidationResult) addConflict(count int64, message string) {
	result.Valid = false
	result.Errors = append(result.Errors, message)
	result.ConflictingRows += count
}

type validationError struct {
	result ValidationResult
}

func (e *validationError) Error() string {
	return "column changes rejected: " + strings.Join(e.result.Errors, "; ")
}

// ValidationResultFromError recovers the ValidationResult from an
// ErrValidation error.
func ValidationResultFromError(err error) (ValidationResult, bool) {
	var verr *validationError
	if errors.As(err, &verr) {
		return verr.result, true
	}
	return ValidationResult{}, false
}

// ValidateColumnChanges checks the requested changes against the rows
// already stored, without touching anything. Three checks run, each with
// an exact conflicting-row count:
//
//   - NOT NULL on a column holding NULLs
//   - a foreign key whose values are missing from the referenced column
//   - a narrowing to a numeric type that would corrupt values: a non-NULL
//     value v converts safely to type T exactly when CAST(v AS T) = v, so
//     '0' stays safe while 'abc' and a lossy '12.5' to INTEGER do not
func (manager *Manager) ValidateColumnChanges(ctx context.Context, table, column string, changes ColumnChanges) (_ ValidationResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if basedb.IsSystemTable(table) {
		return ValidationResult{}, basedb.ErrSystemTable.New("%s", table)
	}

	model, ok, err := sqliteutil.QueryTable(ctx, manager.db, table)
	if err != nil {
		return ValidationResult{}, Error.Wrap(err)
	}
	if !ok {
		return ValidationResult{}, ErrNotFound.New("table %q", table)
	}
	if !model.HasColumn(column) {
		return ValidationResult{}, ErrNotFound.New("column %q.%q", table, column)
	}

	quotedTable := sqliteutil.QuoteIdentifier(table)
	quotedColumn := sqliteutil.QuoteIdentifier(column)

	result := ValidationResult{Valid: true}

	if changes.NotNull != nil && *changes.NotNull {
		count, err := manager.countRows(ctx, `
			SELECT COUNT(*) FROM `+quotedTable+`
			WHERE `+quotedColumn+` IS NULL`)
		if err != nil {
			return ValidationResult{}, err
		}
		if count > 0 {
			result.addConflict(count, fmt.Sprintf("%d rows hold NULL in %q", count, column))
		}
	}

	if changes.ForeignKey != nil {
		quotedRef, err := sqliteutil.ValidateIdentifier("table", changes.ForeignKey.Table)
		if err != nil {
			return ValidationResult{}, err
		}
		quotedRefColumn, err := sqliteutil.ValidateIdentifier("column", changes.ForeignKey.Column)
		if err != nil {
			return ValidationResult{}, err
		}

		// NOT EXISTS stays correct when the referenced column holds NULLs
		count, err := manager.countRows(ctx, `
			SELECT COUNT(*) FROM `+quotedTable+`
			WHERE `+quotedTable+`.`+quotedColumn+` IS NOT NULL
			AND NOT EXISTS (
				SELECT 1 FROM `+quotedRef+`
				WHERE `+quotedRef+`.`+quotedRefColumn+` = `+quotedTable+`.`+quotedColumn+`
			)`)
		if err != nil {
			return ValidationResult{}, err
		}
		if count > 0 {
			result.addConflict(count, fmt.Sprintf("%d rows reference values missing from %s.%s",
				count, changes.ForeignKey.Table, changes.ForeignKey.Column))
		}
	}

	if changes.Type != "" {
		normalized, err := sqliteutil.NormalizeType(changes.Type)
		if err != nil {
			return ValidationResult{}, err
		}
		if sqliteutil.IsNumericType(normalized) {
			count, err := manager.countRows(ctx, `
				SELECT COUNT(*) FROM `+quotedTable+`
				WHERE `+quotedColumn+` IS NOT NULL
				AND NOT (CAST(`+quotedColumn+` AS `+normalized+`) = `+quotedColumn+`)`)
			if err != nil {
				return ValidationResult{}, err
			}
			if count > 0 {
				result.addConflict(count, fmt.Sprintf("%d rows cannot be safely cast to %s", count, normalized))
			}
		}
	}

	return result, nil
}

func (manager *Manager) countRows(ctx context.Context, query string) (count int64, err error) {
	err = manager.db.QueryRowContext(ctx, query).Scan(&count)
	return count, Error.Wrap(err)
}
