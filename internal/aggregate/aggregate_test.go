package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/repository"
)

type fakeItems struct {
	items     []model.WasteItem
	err       error
	lastIDs   []int64
	lastUntil *time.Time
	calls     int
	shared    bool
}

var _ repository.WasteItemRepository = (*fakeItems)(nil)

func (f *fakeItems) Insert(ctx context.Context, it model.WasteItem) (int64, error) {
	return 0, errors.New("not used")
}

func (f *fakeItems) ListByBins(ctx context.Context, binIDs []int64, until *time.Time) ([]model.WasteItem, error) {
	f.calls++
	f.lastIDs = binIDs
	f.lastUntil = until
	if f.err != nil {
		return nil, f.err
	}
	if f.shared {
		return f.items, nil
	}
	in := make(map[int64]bool, len(binIDs))
	for _, id := range binIDs {
		in[id] = true
	}
	var out []model.WasteItem
	for _, it := range f.items {
		if in[it.BinID] && (until == nil || !it.CreatedAt.After(*until)) {
			out = append(out, it)
		}
	}
	return out, nil
}

var base = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func items(binID int64, cat string, n int) []model.WasteItem {
	out := make([]model.WasteItem, n)
	for i := range out {
		out[i] = model.WasteItem{BinID: binID, Category: cat, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestPercent(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0, Percent(0, 20))
	require.Equal(t, 5, Percent(1, 20))
	require.Equal(t, 100, Percent(20, 20))
	require.Equal(t, 100, Percent(21, 20))
	require.Equal(t, 2, Percent(1, 50))
	require.Equal(t, 0, Percent(3, 0))
}

func TestDisplay(t *testing.T) {
	t.Parallel()
	cases := map[int]int{0: 0, 4: 0, 5: 10, 45: 50, 83: 80, 85: 90, 95: 100, 100: 100}
	for in, want := range cases {
		require.Equal(t, want, Display(in), "display(%d)", in)
	}
}

func TestAggregate_ZeroBucketsAndOrder(t *testing.T) {
	t.Parallel()
	repo := &fakeItems{items: append(items(2, "bio", 3), items(1, "Recycle", 1)...)}
	a := New(repo, DefaultThresholds())

	got, err := a.Aggregate(context.Background(), []int64{2, 1, 3, 2}, nil)
	require.NoError(t, err)
	require.Len(t, got, 12, "three bins, four categories each")

	require.Equal(t, int64(1), got[0].BinID)
	for i, c := range category.All() {
		require.Equal(t, c, got[i].Category)
	}
	require.Equal(t, 1, got[2].Count)
	require.Equal(t, category.Recyclable, got[2].Category)

	bio := got[4]
	require.Equal(t, int64(2), bio.BinID)
	require.Equal(t, category.Biodegradable, bio.Category)
	require.Equal(t, 3, bio.Count)
	require.Equal(t, 15, bio.RawPercentage)
	require.Equal(t, 20, bio.FillPercentage)
	require.NotNil(t, bio.LastEventAt)
	require.Equal(t, base.Add(2*time.Minute), *bio.LastEventAt)

	for _, agg := range got[8:] {
		require.Equal(t, int64(3), agg.BinID)
		require.Zero(t, agg.Count)
		require.Zero(t, agg.FillPercentage)
		require.Nil(t, agg.LastEventAt)
	}
}

func TestAggregate_ThresholdAndCap(t *testing.T) {
	t.Parallel()
	repo := &fakeItems{items: append(items(1, "Biodegradable", 20), items(1, "non-bio", 21)...)}
	a := New(repo, DefaultThresholds())

	got, err := a.Aggregate(context.Background(), []int64{1}, nil)
	require.NoError(t, err)
	require.Equal(t, 20, got[0].Count)
	require.Equal(t, 100, got[0].FillPercentage)
	require.Equal(t, 21, got[1].Count, "count is never capped")
	require.Equal(t, 100, got[1].RawPercentage)
	require.Equal(t, 100, got[1].FillPercentage)
}

func TestAggregate_UnknownCategoriesCollapseToUnsorted(t *testing.T) {
	t.Parallel()
	repo := &fakeItems{items: append(items(1, "plasma", 2), items(1, "", 1)...)}
	a := New(repo, DefaultThresholds())

	got, err := a.Aggregate(context.Background(), []int64{1}, nil)
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, category.Unsorted, got[3].Category)
	require.Equal(t, 3, got[3].Count)
}

func TestAggregate_Window(t *testing.T) {
	t.Parallel()
	repo := &fakeItems{items: items(1, "bio", 10)}
	a := New(repo, DefaultThresholds())

	w := &model.TimeRange{Start: base.Add(2 * time.Minute), End: base.Add(5 * time.Minute)}
	got, err := a.Aggregate(context.Background(), []int64{1}, w)
	require.NoError(t, err)
	require.NotNil(t, repo.lastUntil)
	require.Equal(t, w.End, *repo.lastUntil)
	require.Equal(t, 4, got[0].Count)

	_, err = a.Aggregate(context.Background(), []int64{1}, &model.TimeRange{})
	require.NoError(t, err)
	require.Nil(t, repo.lastUntil, "zero end means no upper bound")
}

func TestAggregate_EmptyAndErrors(t *testing.T) {
	t.Parallel()
	repo := &fakeItems{}
	a := New(repo, DefaultThresholds())

	got, err := a.Aggregate(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, repo.calls, "no bins, no query")

	boom := errors.New("timeout")
	repo.err = boom
	_, err = a.Aggregate(context.Background(), []int64{1}, nil)
	require.ErrorIs(t, err, boom)
}

func TestAggregateBin(t *testing.T) {
	t.Parallel()
	a := New(&fakeItems{}, DefaultThresholds())
	b := model.Bin{ID: 1, Name: "Bin 1", Status: model.BinActive, Capacity: 50}

	events := append(items(1, "bio", 30), items(1, "recyclable", 12)...)
	events = append(events, items(2, "bio", 5)...)
	fill := a.AggregateBin(b, events)

	require.Equal(t, 42, fill.Count)
	require.Equal(t, 84, fill.RawPercentage)
	require.Equal(t, 80, fill.FillPercentage)
	require.Equal(t, base.Add(29*time.Minute), *fill.LastEventAt)
	require.Len(t, fill.Categories, 4)
	require.Equal(t, 100, fill.Categories[0].FillPercentage)
	require.Equal(t, 12, fill.Categories[2].Count)
	require.Equal(t, 60, fill.Categories[2].FillPercentage)

	empty := a.AggregateBin(b, nil)
	require.Zero(t, empty.Count)
	require.Nil(t, empty.LastEventAt)
	require.Len(t, empty.Categories, 4)
}

func TestAggregateBins_SingleQuery(t *testing.T) {
	t.Parallel()
	repo := &fakeItems{items: items(2, "bio", 25)}
	a := New(repo, Thresholds{})

	bins := []model.Bin{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	got, err := a.AggregateBins(context.Background(), bins, nil)
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)
	require.Equal(t, []int64{1, 2}, repo.lastIDs)
	require.Len(t, got, 2)
	require.Zero(t, got[0].Count)
	require.Equal(t, 25, got[1].Count)
	require.Equal(t, 50, got[1].FillPercentage)
}

func TestAggregate_WindowLeavesRepositorySliceIntact(t *testing.T) {
	t.Parallel()
	repo := &fakeItems{items: items(1, "bio", 6), shared: true}
	before := append([]model.WasteItem(nil), repo.items...)
	a := New(repo, DefaultThresholds())

	w := &model.TimeRange{Start: base.Add(3 * time.Minute)}
	got, err := a.Aggregate(context.Background(), []int64{1}, w)
	require.NoError(t, err)
	require.Equal(t, 3, got[0].Count)
	require.Equal(t, before, repo.items)
}
