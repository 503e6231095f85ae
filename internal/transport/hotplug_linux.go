//go:build linux

package transport

import (
	"context"
	"fmt"

	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

// WatchHotplug nudges t whenever a tty device is added or removed. It blocks
// until ctx is done. Failing to open the netlink socket is reported and the
// transport falls back to its reconnect interval.
func WatchHotplug(ctx context.Context, t *Transport, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "hotplug"))

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("netlink connect: %w", err)
	}
	defer conn.Close()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, ttyMatcher())
	defer close(quit)

	log.Info("hotplug monitor started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-queue:
			log.Debug("tty hotplug",
				zap.String("action", string(ev.Action)),
				zap.String("devname", ev.Env["DEVNAME"]))
			t.Nudge()
		case err := <-errs:
			log.Warn("hotplug monitor error", zap.Error(err))
		}
	}
}

func ttyMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "tty"},
	})
	return rules
}
