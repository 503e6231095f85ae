package api

import "time"

// DeviceStatusRequest is empty.
type DeviceStatusRequest struct{}

// DeviceStatusResponse is a device state snapshot.
type DeviceStatusResponse struct {
	Connected       bool       `json:"connected"`
	LastCategory    string     `json:"last_category,omitempty"`
	LastWeightGrams *float64   `json:"last_weight_grams,omitempty"`
	LastLine        string     `json:"last_line,omitempty"`
	LastUpdatedAt   *time.Time `json:"last_updated_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	ConfiguredPort  string     `json:"configured_port,omitempty"`
	SelectedPort    string     `json:"selected_port,omitempty"`
	AvailablePorts  []string   `json:"available_ports,omitempty"`
}

// ResolveBinRequest names a category in any accepted spelling.
type ResolveBinRequest struct {
	Category string `json:"category"`
}

// ResolveBinResponse reports the bin for the normalized category.
type ResolveBinResponse struct {
	Category string `json:"category"`
	BinID    int64  `json:"bin_id,omitempty"`
	Found    bool   `json:"found"`
}

// Window bounds an aggregation; nil ends mean unbounded.
type Window struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// AggregateRequest selects bins and an optional window.
type AggregateRequest struct {
	BinIDs []int64 `json:"bin_ids"`
	Window *Window `json:"window,omitempty"`
}

// CategoryFill is one (bin, category) bucket.
type CategoryFill struct {
	BinID          int64      `json:"bin_id"`
	Category       string     `json:"category"`
	Count          int        `json:"count"`
	RawPercentage  int        `json:"raw_percentage"`
	FillPercentage int        `json:"fill_percentage"`
	LastEventAt    *time.Time `json:"last_event_at,omitempty"`
}

// AggregateResponse carries every bucket of every requested bin.
type AggregateResponse struct {
	Buckets []CategoryFill `json:"buckets"`
}

// BinFillRequest selects bins; empty BinIDs means all active bins.
type BinFillRequest struct {
	BinIDs []int64 `json:"bin_ids,omitempty"`
	Window *Window `json:"window,omitempty"`
}

// BinFill is a whole-bin aggregate with its category cards.
type BinFill struct {
	BinID          int64          `json:"bin_id"`
	Name           string         `json:"name"`
	Status         string         `json:"status"`
	Capacity       int            `json:"capacity"`
	Count          int            `json:"count"`
	RawPercentage  int            `json:"raw_percentage"`
	FillPercentage int            `json:"fill_percentage"`
	LastEventAt    *time.Time     `json:"last_event_at,omitempty"`
	Categories     []CategoryFill `json:"categories"`
}

// BinFillResponse lists bins in request order.
type BinFillResponse struct {
	Bins []BinFill `json:"bins"`
}

// Drain is one drained bin reported by the calling collector.
type Drain struct {
	Category string `json:"category"`
	BinName  string `json:"bin_name"`
}

// AppendLogRequest is a batch of drains.
type AppendLogRequest struct {
	Drains []Drain `json:"drains"`
}

// LogEntry is one collection log record.
type LogEntry struct {
	ID            string    `json:"id"`
	BinCategory   string    `json:"bin_category"`
	BinName       string    `json:"bin_name"`
	CollectorID   int64     `json:"collector_id"`
	CollectorName string    `json:"collector_name"`
	DrainedAt     time.Time `json:"drained_at"`
	Status        string    `json:"status"`
}

// AppendLogResponse returns the stored entries.
type AppendLogResponse struct {
	Entries []LogEntry `json:"entries"`
}

// ReadLogRequest is empty.
type ReadLogRequest struct{}

// ReadLogResponse lists entries newest first.
type ReadLogResponse struct {
	Entries []LogEntry `json:"entries"`
}

// RequestCodeRequest asks for a one-time code.
type RequestCodeRequest struct {
	Email string `json:"email"`
}

// RequestCodeResponse is empty.
type RequestCodeResponse struct{}

// VerifyCodeRequest submits a one-time code.
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyCodeResponse carries the follow-up token.
type VerifyCodeResponse struct {
	Token string `json:"token"`
}

// IssueSessionRequest exchanges a follow-up token.
type IssueSessionRequest struct {
	Token string `json:"token"`
}

// IssueSessionResponse carries a bearer token for collector calls.
type IssueSessionResponse struct {
	AccessToken   string    `json:"access_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	CollectorID   int64     `json:"collector_id"`
	CollectorName string    `json:"collector_name"`
}
