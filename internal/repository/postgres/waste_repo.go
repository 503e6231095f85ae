package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/and161185/sortwatch/internal/model"
)

// WasteItemRepo implements WasteItemRepository using PostgreSQL.
type WasteItemRepo struct{ db *DB }

// NewWasteItemRepo constructs a waste item repository.
func NewWasteItemRepo(db *DB) *WasteItemRepo { return &WasteItemRepo{db: db} }

// Insert stores one sorted item. A zero CreatedAt lets the database stamp it.
func (r *WasteItemRepo) Insert(ctx context.Context, it model.WasteItem) (int64, error) {
	cols := []string{"bin_id", "category", "weight"}
	vals := []any{it.BinID, it.Category, it.WeightG}
	if !it.CreatedAt.IsZero() {
		cols = append(cols, "created_at")
		vals = append(vals, it.CreatedAt)
	}
	ins := psql.Insert("waste_items").Columns(cols...).Values(vals...)
	q, args, err := ins.Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ListByBins returns items of the given bins ordered by created_at, bounded
// above by until when it is set. There is no lower bound.
func (r *WasteItemRepo) ListByBins(ctx context.Context, binIDs []int64, until *time.Time) ([]model.WasteItem, error) {
	if len(binIDs) == 0 {
		return []model.WasteItem{}, nil
	}
	sel := psql.Select("id", "bin_id", "category", "weight", "created_at").
		From("waste_items").
		Where(sq.Eq{"bin_id": binIDs})
	if until != nil {
		sel = sel.Where(sq.LtOrEq{"created_at": *until})
	}
	q, args, err := sel.OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.WasteItem{}
	for rows.Next() {
		var it model.WasteItem
		if err = rows.Scan(&it.ID, &it.BinID, &it.Category, &it.WeightG, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
