package mqtt

import (
	"sync"
	"time"

	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/model"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	Events         []model.DeviceEvent
	Payloads       [][]byte
	Statuses       []device.State
	StatusPayloads [][]byte

	// PublishError, if set, is returned by Publish and PublishStatus.
	PublishError error
	Closed       bool
}

// NewFakePublisher creates a FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records ev.
func (f *FakePublisher) Publish(ev model.DeviceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatEvent(ev)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, ev)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishStatus records st.
func (f *FakePublisher) PublishStatus(st device.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatus(st, time.Unix(0, 0))
	if err != nil {
		return err
	}
	f.Statuses = append(f.Statuses, st)
	f.StatusPayloads = append(f.StatusPayloads, payload)
	return nil
}

// Close marks the publisher closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// EventCount returns the number of recorded events.
func (f *FakePublisher) EventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}

// StatusCount returns the number of recorded status snapshots.
func (f *FakePublisher) StatusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Statuses)
}
