package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/model"
)

// CollectionLogRepo implements CollectionLogRepository using PostgreSQL.
type CollectionLogRepo struct{ db *DB }

// NewCollectionLogRepo constructs a collection log repository.
func NewCollectionLogRepo(db *DB) *CollectionLogRepo { return &CollectionLogRepo{db: db} }

// AppendBatch inserts all entries in one transaction.
func (r *CollectionLogRepo) AppendBatch(ctx context.Context, entries []model.CollectionEntry) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO collection_log (id, bin_category, bin_name, collector_id, collector_name, drained_at, status)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for i, e := range entries {
		_, err = tx.Exec(ctx, ins,
			e.ID, e.BinCategory.String(), e.BinName, e.CollectorID, e.CollectorName, e.DrainedAt, e.Status)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("entry[%d]: %w", i, errs.ErrAlreadyExists)
			}
			return err
		}
	}
	return nil
}

// ListAll returns every entry, newest first.
func (r *CollectionLogRepo) ListAll(ctx context.Context) ([]model.CollectionEntry, error) {
	const q = `
SELECT id, bin_category, bin_name, collector_id, collector_name, drained_at, status
FROM collection_log
ORDER BY drained_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CollectionEntry{}
	for rows.Next() {
		var (
			e   model.CollectionEntry
			cat string
			ts  time.Time
		)
		if err = rows.Scan(&e.ID, &cat, &e.BinName, &e.CollectorID, &e.CollectorName, &ts, &e.Status); err != nil {
			return nil, err
		}
		e.BinCategory = category.Normalize(cat)
		e.DrainedAt = ts
		out = append(out, e)
	}
	return out, rows.Err()
}
