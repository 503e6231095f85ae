// Package convert maps domain values to and from the gRPC wire types.
package convert

import (
	"fmt"
	"time"

	"github.com/and161185/sortwatch/internal/api"
	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/model"
)

// --- helpers ---

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func tsPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return ts(*t)
}

// --- Device ---

// ToAPIDeviceStatus converts a decoder snapshot.
func ToAPIDeviceStatus(st device.State) *api.DeviceStatusResponse {
	out := &api.DeviceStatusResponse{
		Connected:       st.Connected,
		LastWeightGrams: st.LastWeightGrams,
		LastLine:        st.LastLine,
		LastUpdatedAt:   ts(st.LastUpdatedAt),
		LastError:       st.LastError,
		ConfiguredPort:  st.Port.Configured,
		SelectedPort:    st.Port.Selected,
		AvailablePorts:  st.Port.Available,
	}
	if st.LastCategory != nil {
		out.LastCategory = st.LastCategory.String()
	}
	return out
}

// --- Aggregation ---

// FromAPIWindow converts an optional wire window. Start after End is rejected.
func FromAPIWindow(w *api.Window) (*model.TimeRange, error) {
	if w == nil || (w.Start == nil && w.End == nil) {
		return nil, nil
	}
	var tr model.TimeRange
	if w.Start != nil {
		tr.Start = *w.Start
	}
	if w.End != nil {
		tr.End = *w.End
	}
	if !tr.Start.IsZero() && !tr.End.IsZero() && tr.Start.After(tr.End) {
		return nil, fmt.Errorf("window start after end: %w", errs.ErrInvalidInput)
	}
	return &tr, nil
}

// ToAPICategoryFill converts one bucket.
func ToAPICategoryFill(a model.CategoryAggregate) api.CategoryFill {
	return api.CategoryFill{
		BinID:          a.BinID,
		Category:       a.Category.String(),
		Count:          a.Count,
		RawPercentage:  a.RawPercentage,
		FillPercentage: a.FillPercentage,
		LastEventAt:    tsPtr(a.LastEventAt),
	}
}

// ToAPICategoryFills converts buckets, preserving order.
func ToAPICategoryFills(as []model.CategoryAggregate) []api.CategoryFill {
	out := make([]api.CategoryFill, 0, len(as))
	for _, a := range as {
		out = append(out, ToAPICategoryFill(a))
	}
	return out
}

// ToAPIBinFills converts whole-bin aggregates.
func ToAPIBinFills(fs []model.BinFill) []api.BinFill {
	out := make([]api.BinFill, 0, len(fs))
	for _, f := range fs {
		out = append(out, api.BinFill{
			BinID:          f.Bin.ID,
			Name:           f.Bin.Name,
			Status:         string(f.Bin.Status),
			Capacity:       f.Bin.Capacity,
			Count:          f.Count,
			RawPercentage:  f.RawPercentage,
			FillPercentage: f.FillPercentage,
			LastEventAt:    tsPtr(f.LastEventAt),
			Categories:     ToAPICategoryFills(f.Categories),
		})
	}
	return out
}

// --- Collection log ---

// FromAPIDrains stamps wire drains with the authenticated collector.
func FromAPIDrains(in []api.Drain, collectorID int64, collectorName string) []model.DrainRequest {
	out := make([]model.DrainRequest, 0, len(in))
	for _, d := range in {
		out = append(out, model.DrainRequest{
			Category:      d.Category,
			BinName:       d.BinName,
			CollectorID:   collectorID,
			CollectorName: collectorName,
		})
	}
	return out
}

// ToAPILogEntries converts log entries, preserving order.
func ToAPILogEntries(es []model.CollectionEntry) []api.LogEntry {
	out := make([]api.LogEntry, 0, len(es))
	for _, e := range es {
		out = append(out, api.LogEntry{
			ID:            e.ID,
			BinCategory:   e.BinCategory.String(),
			BinName:       e.BinName,
			CollectorID:   e.CollectorID,
			CollectorName: e.CollectorName,
			DrainedAt:     e.DrainedAt.UTC(),
			Status:        e.Status,
		})
	}
	return out
}
