//go:build !linux

package transport

import (
	"context"

	"go.uber.org/zap"
)

// WatchHotplug is unavailable off Linux; it waits for ctx and relies on the
// reconnect interval.
func WatchHotplug(ctx context.Context, t *Transport, log *zap.Logger) error {
	if log != nil {
		log.Debug("hotplug monitoring unsupported on this platform")
	}
	<-ctx.Done()
	return nil
}
