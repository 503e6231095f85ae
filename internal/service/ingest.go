// Package service contains the application services behind the gRPC API and
// the device ingestion loop.
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/mqtt"
	"github.com/and161185/sortwatch/internal/repository"
)

// BinResolver maps a category to an active bin.
type BinResolver interface {
	Resolve(ctx context.Context, c category.Category) (int64, bool, error)
}

// IngestService turns decoded device events into stored waste items.
type IngestService interface {
	// Handle processes one event. Events must be delivered in device order.
	Handle(ctx context.Context, ev model.DeviceEvent) error
	// Flush stores a detected item still waiting for its weight.
	Flush(ctx context.Context) error
}

// IngestServiceImpl holds the last detected category until the weight line
// that follows it arrives, then inserts one waste item.
type IngestServiceImpl struct {
	bins  BinResolver
	items repository.WasteItemRepository
	pub   mqtt.Publisher
	log   *zap.Logger

	mu      sync.Mutex
	pending *model.DeviceEvent
}

// NewIngestService constructs the ingestion service. A nil publisher disables MQTT.
func NewIngestService(bins BinResolver, items repository.WasteItemRepository, pub mqtt.Publisher, log *zap.Logger) *IngestServiceImpl {
	if pub == nil {
		pub = mqtt.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestServiceImpl{bins: bins, items: items, pub: pub, log: log.With(zap.String("component", "ingest"))}
}

// Handle publishes ev and updates the pending item.
func (s *IngestServiceImpl) Handle(ctx context.Context, ev model.DeviceEvent) error {
	if err := s.pub.Publish(ev); err != nil {
		s.log.Warn("publish device event", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case model.EventCategoryDetected:
		err := s.flushLocked(ctx, 0)
		s.pending = &ev
		return err
	case model.EventWeightReading:
		if s.pending == nil {
			s.log.Debug("weight without detected item", zap.Float64("grams", ev.Grams))
			return nil
		}
		return s.flushLocked(ctx, ev.Grams)
	default:
		s.log.Debug("ignoring device noise", zap.String("raw", ev.Raw))
		return nil
	}
}

// Flush stores the pending item with zero weight.
func (s *IngestServiceImpl) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx, 0)
}

// flushLocked stores the pending item. The item leaves pending before any
// store call, so a failed store drops it and is logged as such.
func (s *IngestServiceImpl) flushLocked(ctx context.Context, grams float64) error {
	if s.pending == nil {
		return nil
	}
	ev := *s.pending
	s.pending = nil

	if err := s.store(ctx, ev, grams); err != nil {
		s.log.Warn("detected item dropped",
			zap.Stringer("category", ev.Category),
			zap.Time("detected_at", ev.At),
			zap.Float64("grams", grams),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *IngestServiceImpl) store(ctx context.Context, ev model.DeviceEvent, grams float64) error {
	binID, ok, err := s.bins.Resolve(ctx, ev.Category)
	if err != nil {
		return fmt.Errorf("resolve bin for %s: %w", ev.Category, err)
	}
	if !ok {
		s.log.Debug("no bin for category, item skipped", zap.Stringer("category", ev.Category))
		return nil
	}

	id, err := s.items.Insert(ctx, model.WasteItem{
		BinID:     binID,
		Category:  ev.Category.String(),
		WeightG:   grams,
		CreatedAt: ev.At,
	})
	if err != nil {
		return fmt.Errorf("insert waste item: %w", err)
	}
	s.log.Debug("waste item stored",
		zap.Int64("id", id),
		zap.Int64("bin_id", binID),
		zap.Stringer("category", ev.Category),
		zap.Float64("grams", grams))
	return nil
}
