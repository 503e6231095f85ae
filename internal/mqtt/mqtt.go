// Package mqtt publishes live device telemetry to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/model"
)

// Topic suffixes under the configured prefix.
const (
	TopicEvents = "events"
	TopicStatus = "status"
)

// Publisher publishes decoded events and device status.
type Publisher interface {
	// Publish sends one decoded device event. Errors must not stop ingestion.
	Publish(ev model.DeviceEvent) error
	// PublishStatus sends a retained device status snapshot.
	PublishStatus(st device.State) error
	// Close disconnects from the broker.
	Close() error
}

// EventPayload is the JSON body on the events topic.
type EventPayload struct {
	Timestamp string  `json:"timestamp"`
	Kind      string  `json:"kind"`
	Category  string  `json:"category,omitempty"`
	Grams     float64 `json:"grams,omitempty"`
	Raw       string  `json:"raw,omitempty"`
}

// StatusPayload is the JSON body on the status topic.
type StatusPayload struct {
	Timestamp    string   `json:"timestamp"`
	Connected    bool     `json:"connected"`
	LastCategory string   `json:"last_category,omitempty"`
	LastWeight   *float64 `json:"last_weight_grams,omitempty"`
	LastLine     string   `json:"last_line,omitempty"`
	LastError    string   `json:"last_error,omitempty"`
	Port         string   `json:"port,omitempty"`
}

// FormatEvent renders ev as the events payload.
func FormatEvent(ev model.DeviceEvent) ([]byte, error) {
	p := EventPayload{
		Timestamp: ev.At.UTC().Format(time.RFC3339),
		Kind:      string(ev.Kind),
	}
	switch ev.Kind {
	case model.EventCategoryDetected:
		p.Category = ev.Category.String()
	case model.EventWeightReading:
		p.Grams = ev.Grams
	case model.EventUnrecognized:
		p.Raw = ev.Raw
	}
	return json.Marshal(p)
}

// FormatStatus renders st as the status payload, stamped with now.
func FormatStatus(st device.State, now time.Time) ([]byte, error) {
	p := StatusPayload{
		Timestamp:  now.UTC().Format(time.RFC3339),
		Connected:  st.Connected,
		LastWeight: st.LastWeightGrams,
		LastLine:   st.LastLine,
		LastError:  st.LastError,
		Port:       st.Port.Selected,
	}
	if st.LastCategory != nil {
		p.LastCategory = st.LastCategory.String()
	}
	return json.Marshal(p)
}

// Nop discards everything. It is used when MQTT is disabled.
type Nop struct{}

func (Nop) Publish(model.DeviceEvent) error { return nil }
func (Nop) PublishStatus(device.State) error { return nil }
func (Nop) Close() error { return nil }
