// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/sortwatch/internal/model"
)

// BinRepository reads bins. Bins are owned by the dashboard CRUD layer.
type BinRepository interface {
	// ListActive returns all bins with status Active ordered by id.
	ListActive(ctx context.Context) ([]model.Bin, error)
	// ListByIDs returns the bins with the given ids, in id order. Unknown ids are skipped.
	ListByIDs(ctx context.Context, ids []int64) ([]model.Bin, error)
}

// WasteItemRepository stores and queries sorted-item events.
type WasteItemRepository interface {
	// Insert stores one event and returns its id.
	Insert(ctx context.Context, item model.WasteItem) (int64, error)
	// ListByBins returns events for the given bins, optionally created at or before until.
	ListByBins(ctx context.Context, binIDs []int64, until *time.Time) ([]model.WasteItem, error)
}

// CollectionLogRepository is the durable append target of drain events.
type CollectionLogRepository interface {
	// AppendBatch writes every entry or none.
	AppendBatch(ctx context.Context, entries []model.CollectionEntry) error
	// ListAll returns the full log in storage order.
	ListAll(ctx context.Context) ([]model.CollectionEntry, error)
}

// UserRepository provides read access to dashboard accounts.
type UserRepository interface {
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}
