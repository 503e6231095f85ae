// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/and161185/sortwatch/internal/category"
)

// EventKind tags the DeviceEvent variant.
type EventKind string

const (
	EventCategoryDetected EventKind = "category_detected"
	EventWeightReading    EventKind = "weight_reading"
	EventUnrecognized     EventKind = "unrecognized"
)

// DeviceEvent is the classified result of one line from the sorting device.
// Only the fields of the tagged variant are meaningful.
type DeviceEvent struct {
	Kind     EventKind         `json:"kind"`
	Category category.Category `json:"category"`        // CategoryDetected
	Grams    float64           `json:"grams,omitempty"` // WeightReading
	Raw      string            `json:"raw,omitempty"`   // Unrecognized
	At       time.Time         `json:"at"`
}

// CategoryDetected builds the category variant.
func CategoryDetected(c category.Category, at time.Time) DeviceEvent {
	return DeviceEvent{Kind: EventCategoryDetected, Category: c, At: at}
}

// WeightReading builds the weight variant.
func WeightReading(grams float64, at time.Time) DeviceEvent {
	return DeviceEvent{Kind: EventWeightReading, Grams: grams, At: at}
}

// Unrecognized builds the noise variant.
func Unrecognized(raw string, at time.Time) DeviceEvent {
	return DeviceEvent{Kind: EventUnrecognized, Raw: raw, At: at}
}

// BinStatus is the lifecycle state of a physical bin.
type BinStatus string

const (
	BinActive   BinStatus = "Active"
	BinInactive BinStatus = "Inactive"
)

// Bin is a physical bin owned by the store; read-only for this service.
type Bin struct {
	ID       int64
	Name     string
	Status   BinStatus
	Capacity int
}

// WasteItem is one sorted item, as stored by ingestion and read by the aggregator.
// Category is the raw stored label; readers normalize it.
type WasteItem struct {
	ID        int64
	BinID     int64
	Category  string
	WeightG   float64
	CreatedAt time.Time
}

// TimeRange bounds an aggregation. A zero Start or End means unbounded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// CategoryAggregate is a computed per-(bin, category) bucket; never stored.
type CategoryAggregate struct {
	BinID          int64
	Category       category.Category
	Count          int
	RawPercentage  int // min(100, round(count/threshold*100))
	FillPercentage int // RawPercentage rounded to the nearest 10
	LastEventAt    *time.Time
}

// BinFill is the whole-bin aggregate plus its per-category cards.
type BinFill struct {
	Bin            Bin
	Count          int
	RawPercentage  int
	FillPercentage int
	LastEventAt    *time.Time
	Categories     []CategoryAggregate
}

// CollectionStatusCompleted is the only status a drain entry can have.
const CollectionStatusCompleted = "Completed"

// DrainRequest is one bin drain reported by a collector.
type DrainRequest struct {
	Category      string
	BinName       string
	CollectorID   int64
	CollectorName string
}

// CollectionEntry is an append-only record of a drain.
type CollectionEntry struct {
	ID            string            `json:"id"`
	BinCategory   category.Category `json:"bin_category"`
	BinName       string            `json:"bin_name"`
	CollectorID   int64             `json:"collector_id"`
	CollectorName string            `json:"collector_name"`
	DrainedAt     time.Time         `json:"drained_at"`
	Status        string            `json:"status"`
}

// User is a dashboard account; only identity fields are read here.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Role      string
	CreatedAt time.Time
}

// DisplayName returns "First Last", falling back to the email.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
