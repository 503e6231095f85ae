// Package collection records bin drain actions in an append-only log.
package collection

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/repository"
)

// Log appends drain entries to a backing repository. Appends are serialized.
type Log struct {
	repo repository.CollectionLogRepository
	log  *zap.Logger
	now  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// New constructs a collection log over repo.
func New(repo repository.CollectionLogRepository, log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{repo: repo, log: log.With(zap.String("component", "collection")), now: time.Now}
}

// Append stamps and writes the whole batch. An empty batch is rejected before
// any write; otherwise every entry is written, blank bin names included.
func (l *Log) Append(ctx context.Context, reqs []model.DrainRequest) ([]model.CollectionEntry, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("empty drain batch: %w", errs.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	entries := make([]model.CollectionEntry, 0, len(reqs))
	for _, r := range reqs {
		id, err := l.nextID(now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, model.CollectionEntry{
			ID:            id,
			BinCategory:   category.Normalize(r.Category),
			BinName:       strings.TrimSpace(r.BinName),
			CollectorID:   r.CollectorID,
			CollectorName: r.CollectorName,
			DrainedAt:     now,
			Status:        model.CollectionStatusCompleted,
		})
	}

	if err := l.repo.AppendBatch(ctx, entries); err != nil {
		return nil, fmt.Errorf("append collection log: %w", err)
	}
	l.log.Info("bins drained", zap.Int("count", len(entries)), zap.Int64("collector_id", reqs[0].CollectorID))
	return entries, nil
}

// ReadAll returns every entry, most recent drain first.
func (l *Log) ReadAll(ctx context.Context) ([]model.CollectionEntry, error) {
	entries, err := l.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read collection log: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DrainedAt.After(entries[j].DrainedAt)
	})
	return entries, nil
}

// nextID returns "<unix millis>-<seq>-<8 hex>". Caller holds mu.
func (l *Log) nextID(now time.Time) (string, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("entry id: %w", err)
	}
	l.seq++
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" +
		strconv.FormatUint(l.seq, 10) + "-" +
		strings.ReplaceAll(u.String(), "-", "")[:8], nil
}
