package postgres

import (
	"context"

	"github.com/and161185/sortwatch/internal/model"
)

// BinRepo implements BinRepository using PostgreSQL.
type BinRepo struct{ db *DB }

// NewBinRepo constructs a bin repository.
func NewBinRepo(db *DB) *BinRepo { return &BinRepo{db: db} }

// ListActive returns active bins ordered by id.
func (r *BinRepo) ListActive(ctx context.Context) ([]model.Bin, error) {
	const q = `
SELECT id, name, status, capacity
FROM bins
WHERE status=$1
ORDER BY id ASC`
	return r.list(ctx, q, string(model.BinActive))
}

// ListByIDs returns bins with the given ids ordered by id.
func (r *BinRepo) ListByIDs(ctx context.Context, ids []int64) ([]model.Bin, error) {
	if len(ids) == 0 {
		return []model.Bin{}, nil
	}
	const q = `
SELECT id, name, status, capacity
FROM bins
WHERE id = ANY($1)
ORDER BY id ASC`
	return r.list(ctx, q, ids)
}

func (r *BinRepo) list(ctx context.Context, q string, args ...any) ([]model.Bin, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Bin{}
	for rows.Next() {
		var (
			b      model.Bin
			status string
		)
		if err = rows.Scan(&b.ID, &b.Name, &status, &b.Capacity); err != nil {
			return nil, err
		}
		b.Status = model.BinStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}
