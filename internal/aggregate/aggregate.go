// Package aggregate computes bin fill levels from recorded waste items.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/repository"
)

// Default item counts at which a card reads 100%.
const (
	CategoryThreshold = 20
	BinThreshold      = 50
)

// Thresholds configures the percentage denominators.
type Thresholds struct {
	Category int
	Bin      int
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Category: CategoryThreshold, Bin: BinThreshold}
}

// Aggregator reads waste items and groups them per bin and category.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	items repository.WasteItemRepository
	th    Thresholds
}

// New constructs an aggregator. Non-positive thresholds fall back to the defaults.
func New(items repository.WasteItemRepository, th Thresholds) *Aggregator {
	if th.Category <= 0 {
		th.Category = CategoryThreshold
	}
	if th.Bin <= 0 {
		th.Bin = BinThreshold
	}
	return &Aggregator{items: items, th: th}
}

// Aggregate returns one bucket per (bin, category) for every requested bin,
// including empty buckets, ordered by bin id then category slot.
func (a *Aggregator) Aggregate(ctx context.Context, binIDs []int64, window *model.TimeRange) ([]model.CategoryAggregate, error) {
	events, err := a.fetch(ctx, binIDs, window)
	if err != nil {
		return nil, err
	}
	byBin := groupByBin(events)

	ids := uniqueSorted(binIDs)
	out := make([]model.CategoryAggregate, 0, len(ids)*len(category.All()))
	for _, id := range ids {
		out = append(out, a.categories(id, byBin[id])...)
	}
	return out, nil
}

// AggregateBins returns a BinFill for every bin using a single store query.
func (a *Aggregator) AggregateBins(ctx context.Context, bins []model.Bin, window *model.TimeRange) ([]model.BinFill, error) {
	ids := make([]int64, 0, len(bins))
	for _, b := range bins {
		ids = append(ids, b.ID)
	}
	events, err := a.fetch(ctx, ids, window)
	if err != nil {
		return nil, err
	}
	byBin := groupByBin(events)

	out := make([]model.BinFill, 0, len(bins))
	for _, b := range bins {
		out = append(out, a.AggregateBin(b, byBin[b.ID]))
	}
	return out, nil
}

// AggregateBin computes the whole-bin fill and its per-category cards from
// events already loaded by the caller. Events for other bins are ignored.
func (a *Aggregator) AggregateBin(bin model.Bin, events []model.WasteItem) model.BinFill {
	own := make([]model.WasteItem, 0, len(events))
	for _, ev := range events {
		if ev.BinID == bin.ID {
			own = append(own, ev)
		}
	}

	fill := model.BinFill{Bin: bin, Count: len(own)}
	for _, ev := range own {
		fill.LastEventAt = later(fill.LastEventAt, ev.CreatedAt)
	}
	fill.RawPercentage = Percent(fill.Count, a.th.Bin)
	fill.FillPercentage = Display(fill.RawPercentage)
	fill.Categories = a.categories(bin.ID, own)
	return fill
}

func (a *Aggregator) categories(binID int64, events []model.WasteItem) []model.CategoryAggregate {
	all := category.All()
	buckets := make([]model.CategoryAggregate, len(all))
	for i, c := range all {
		buckets[i] = model.CategoryAggregate{BinID: binID, Category: c}
	}
	for _, ev := range events {
		b := &buckets[category.Normalize(ev.Category).Slot()]
		b.Count++
		b.LastEventAt = later(b.LastEventAt, ev.CreatedAt)
	}
	for i := range buckets {
		buckets[i].RawPercentage = Percent(buckets[i].Count, a.th.Category)
		buckets[i].FillPercentage = Display(buckets[i].RawPercentage)
	}
	return buckets
}

// fetch applies the upper bound in the store and the optional lower bound here.
func (a *Aggregator) fetch(ctx context.Context, binIDs []int64, window *model.TimeRange) ([]model.WasteItem, error) {
	if len(binIDs) == 0 {
		return nil, nil
	}
	var until *time.Time
	if window != nil && !window.End.IsZero() {
		end := window.End
		until = &end
	}
	events, err := a.items.ListByBins(ctx, binIDs, until)
	if err != nil {
		return nil, fmt.Errorf("list waste items: %w", err)
	}
	if window == nil || window.Start.IsZero() {
		return events, nil
	}
	kept := make([]model.WasteItem, 0, len(events))
	for _, ev := range events {
		if !ev.CreatedAt.Before(window.Start) {
			kept = append(kept, ev)
		}
	}
	return kept, nil
}

// Percent is min(100, round(count/threshold*100)).
func Percent(count, threshold int) int {
	if count <= 0 || threshold <= 0 {
		return 0
	}
	p := int(math.Round(float64(count) / float64(threshold) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// Display rounds a percentage to the nearest 10, halves rounding up.
func Display(pct int) int {
	return int(math.Floor(float64(pct)/10+0.5)) * 10
}

func groupByBin(events []model.WasteItem) map[int64][]model.WasteItem {
	m := make(map[int64][]model.WasteItem)
	for _, ev := range events {
		m[ev.BinID] = append(m[ev.BinID], ev)
	}
	return m
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func later(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}
