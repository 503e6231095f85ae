// Package resolver maps a waste category to the bin that should receive it.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/repository"
)

// DefaultTTL is how long a fetched bin list is trusted.
const DefaultTTL = 30 * time.Second

// keywords are matched against lowercased bin names, in category order.
var keywords = []struct {
	cat   category.Category
	words []string
}{
	{category.NonBiodegradable, []string{"non-bio", "non bio", "nonbio", "non_bio", "non-biodegradable", "non biodegradable"}},
	{category.Biodegradable, []string{"bio"}},
	{category.Recyclable, []string{"recycl", "recycable"}},
	{category.Unsorted, []string{"unsorted", "general", "mixed"}},
}

// Resolver caches the active bin list and resolves categories against it.
type Resolver struct {
	bins repository.BinRepository
	ttl  time.Duration
	now  func() time.Time
	log  *zap.Logger

	group singleflight.Group

	mu        sync.RWMutex
	cached    []model.Bin
	fetchedAt time.Time
}

// New constructs a resolver. ttl <= 0 selects DefaultTTL.
func New(bins repository.BinRepository, ttl time.Duration, log *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{bins: bins, ttl: ttl, now: time.Now, log: log.With(zap.String("component", "resolver"))}
}

// Resolve returns the bin id for c. ok is false only when there are no active bins.
func (r *Resolver) Resolve(ctx context.Context, c category.Category) (int64, bool, error) {
	bins, err := r.activeBins(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(bins) == 0 {
		r.log.Debug("no active bins", zap.Stringer("category", c))
		return 0, false, nil
	}
	if id, ok := byName(bins, c); ok {
		return id, true, nil
	}
	return byPosition(bins, c), true, nil
}

// Invalidate forces the next Resolve to refetch.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.fetchedAt = time.Time{}
	r.mu.Unlock()
}

func (r *Resolver) activeBins(ctx context.Context) ([]model.Bin, error) {
	if bins, ok := r.fresh(); ok {
		return bins, nil
	}

	v, err, _ := r.group.Do("active", func() (any, error) {
		// a flight that finished between our check and Do already refreshed
		if bins, ok := r.fresh(); ok {
			return bins, nil
		}
		fresh, err := r.bins.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active bins: %w", err)
		}
		r.mu.Lock()
		r.cached = fresh
		r.fetchedAt = r.now()
		r.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Bin), nil
}

func (r *Resolver) fresh() ([]model.Bin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.cached) == 0 || r.now().Sub(r.fetchedAt) >= r.ttl {
		return nil, false
	}
	return r.cached, true
}

func byName(bins []model.Bin, c category.Category) (int64, bool) {
	for _, b := range bins {
		if got, ok := nameCategory(b.Name); ok && got == c {
			return b.ID, true
		}
	}
	return 0, false
}

// nameCategory classifies a bin by the first keyword its name contains.
func nameCategory(name string) (category.Category, bool) {
	n := strings.ToLower(name)
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(n, w) {
				return k.cat, true
			}
		}
	}
	return category.Unsorted, false
}

// byPosition assigns categories to bins in list order, clamping to the last bin.
func byPosition(bins []model.Bin, c category.Category) int64 {
	i := c.Slot()
	if i >= len(bins) {
		i = len(bins) - 1
	}
	return bins[i].ID
}
