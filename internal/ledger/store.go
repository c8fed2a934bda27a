// Package ledger holds the write primitives every reconciliation goes
// through: batch insert-or-update keyed by external identity, and
// delete-by-exclusion scoped to the fetched window.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultChunk bounds single-statement size for batch upserts.
const DefaultChunk = 500

// UpsertInBatches inserts rows in chunks, updating only updateCols when a row
// with the same conflict key already exists. Identity columns are never in
// updateCols, so re-syncs update descriptive fields and cannot move a row.
func UpsertInBatches[T any](tx *gorm.DB, rows []T, conflictCols []string, updateCols []string, chunk int) error {
	if len(rows) == 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	cols := make([]clause.Column, len(conflictCols))
	for i, c := range conflictCols {
		cols[i] = clause.Column{Name: c}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(updateCols),
	}).CreateInBatches(rows, chunk).Error
}

// PruneDatedScoped deletes rows of model whose external_id is non-null,
// belongs to one of accountIDs, falls inside [start, end], and is not in
// keepExternalIDs. Rows outside the fetched window are never touched, so a
// partial re-sync cannot destroy history.
func PruneDatedScoped(tx *gorm.DB, model interface{}, accountIDs []uuid.UUID, start, end time.Time, keepExternalIDs []string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	q := tx.Where("account_id IN ?", accountIDs).
		Where("external_id IS NOT NULL").
		Where("date >= ? AND date <= ?", start, end)
	if len(keepExternalIDs) > 0 {
		q = q.Where("external_id NOT IN ?", keepExternalIDs)
	}
	return q.Delete(model).Error
}

// PruneHoldingsScoped deletes holdings for accountIDs whose external_key is
// not in keepKeys. Holdings are point-in-time, so the "window" is the whole
// current position set of the fetched accounts.
func PruneHoldingsScoped(tx *gorm.DB, model interface{}, accountIDs []uuid.UUID, keepKeys []string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	q := tx.Where("account_id IN ?", accountIDs)
	if len(keepKeys) > 0 {
		q = q.Where("external_key NOT IN ?", keepKeys)
	}
	return q.Delete(model).Error
}
