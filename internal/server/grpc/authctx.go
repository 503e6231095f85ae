package grpcserver

import "context"

// Collector is the verified caller identity carried by a bearer token.
type Collector struct {
	ID   int64
	Name string
}

type ctxKey string

const collectorKey ctxKey = "sw.collector"

// WithCollector stores the authenticated collector in context.
func WithCollector(ctx context.Context, c Collector) context.Context {
	return context.WithValue(ctx, collectorKey, c)
}

// CollectorFromCtx fetches the collector from context.
func CollectorFromCtx(ctx context.Context) (Collector, bool) {
	c, ok := ctx.Value(collectorKey).(Collector)
	return c, ok
}
