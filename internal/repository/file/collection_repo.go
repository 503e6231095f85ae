// Package file implements repositories backed by local JSON files.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/model"
)

// CollectionLogRepo stores the collection log as a single JSON array.
// Every append rewrites the whole file through a temp file and rename.
type CollectionLogRepo struct {
	path string
	mu   sync.Mutex
}

// NewCollectionLogRepo constructs a file-backed log at path. The file is
// created on first append.
func NewCollectionLogRepo(path string) *CollectionLogRepo {
	return &CollectionLogRepo{path: path}
}

// AppendBatch reads the log, appends entries and writes it back.
func (r *CollectionLogRepo) AppendBatch(ctx context.Context, entries []model.CollectionEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.load()
	if err != nil {
		return err
	}
	ids := make(map[string]struct{}, len(cur))
	for _, e := range cur {
		ids[e.ID] = struct{}{}
	}
	for i, e := range entries {
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("entry[%d]: %w", i, errs.ErrAlreadyExists)
		}
		ids[e.ID] = struct{}{}
	}
	return r.save(append(cur, entries...))
}

// ListAll returns the log in file order.
func (r *CollectionLogRepo) ListAll(ctx context.Context) ([]model.CollectionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *CollectionLogRepo) load() ([]model.CollectionEntry, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.CollectionEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection log: %w", err)
	}
	out := []model.CollectionEntry{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse collection log: %w", err)
	}
	return out, nil
}

func (r *CollectionLogRepo) save(entries []model.CollectionEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal collection log: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "collection-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(name, r.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
