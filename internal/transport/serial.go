// Package transport reads the sorting device's serial line stream and feeds
// it through the decoder.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/model"
)

// ErrNoPorts is returned when no port is configured and none is enumerated.
var ErrNoPorts = errors.New("no serial ports available")

// Options configures a Transport.
type Options struct {
	Port              string
	Baud              int
	ReadTimeout       time.Duration
	ReconnectInterval time.Duration
}

// Lister enumerates serial port names.
type Lister func() ([]string, error)

// Opener opens a named port for reading.
type Opener func(name string, o Options) (io.ReadCloser, error)

// Sink receives decoded events in device order.
type Sink func(ctx context.Context, ev model.DeviceEvent)

// Transport owns the serial connection lifecycle.
type Transport struct {
	opts     Options
	dec      *device.Decoder
	list     Lister
	open     Opener
	onStatus func(device.State)
	log      *zap.Logger
	nudge    chan struct{}
}

// Option customizes a Transport.
type Option func(*Transport)

// WithPorts overrides port enumeration and opening.
func WithPorts(list Lister, open Opener) Option {
	return func(t *Transport) {
		t.list = list
		t.open = open
	}
}

// WithStatusHook is called with a decoder snapshot after every connection change.
func WithStatusHook(fn func(device.State)) Option {
	return func(t *Transport) { t.onStatus = fn }
}

// New constructs a transport over the host's serial ports.
func New(opts Options, dec *device.Decoder, log *zap.Logger, options ...Option) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	t := &Transport{
		opts:  opts,
		dec:   dec,
		list:  serial.GetPortsList,
		open:  openSerial,
		log:   log.With(zap.String("component", "transport")),
		nudge: make(chan struct{}, 1),
	}
	for _, o := range options {
		o(t)
	}
	return t
}

func openSerial(name string, o Options) (io.ReadCloser, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: o.Baud})
	if err != nil {
		return nil, err
	}
	if o.ReadTimeout > 0 {
		if err := p.SetReadTimeout(o.ReadTimeout); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

// SelectPort applies the discovery policy: the configured port when it is
// enumerated, else the first enumerated port, else the configured name as is.
func SelectPort(configured string, available []string) (device.PortInfo, error) {
	info := device.PortInfo{Configured: configured, Available: available}
	switch {
	case configured != "" && slices.Contains(available, configured):
		info.Selected = configured
	case len(available) > 0:
		info.Selected = available[0]
	case configured != "":
		info.Selected = configured
	default:
		return info, ErrNoPorts
	}
	return info, nil
}

// Nudge asks a waiting reconnect loop to retry now. It never blocks.
func (t *Transport) Nudge() {
	select {
	case t.nudge <- struct{}{}:
	default:
	}
}

// Run connects and reads lines until ctx is done, reconnecting after every
// failure. It returns ctx.Err().
func (t *Transport) Run(ctx context.Context, sink Sink) error {
	for {
		err := t.session(ctx, sink)
		if ctx.Err() != nil {
			t.setConnected(false)
			return ctx.Err()
		}
		t.dec.SetError(err)
		t.setConnected(false)
		t.log.Warn("device session ended", zap.Error(err), zap.Duration("retry_in", t.opts.ReconnectInterval))

		timer := time.NewTimer(t.opts.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-t.nudge:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (t *Transport) session(ctx context.Context, sink Sink) error {
	available, err := t.list()
	if err != nil {
		t.log.Warn("port enumeration failed", zap.Error(err))
		available = nil
	}
	info, err := SelectPort(t.opts.Port, available)
	t.dec.SetPort(info)
	if err != nil {
		return err
	}
	if info.Selected != info.Configured {
		t.log.Warn("configured port unavailable, using fallback",
			zap.String("configured", info.Configured),
			zap.String("selected", info.Selected),
			zap.Strings("available", info.Available))
	}

	port, err := t.open(info.Selected, t.opts)
	if err != nil {
		return fmt.Errorf("open %s: %w", info.Selected, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	t.setConnected(true)
	t.log.Info("device connected", zap.String("port", info.Selected), zap.Int("baud", t.opts.Baud))

	sc := bufio.NewScanner(ctxReader{ctx: ctx, r: port})
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		sink(ctx, t.dec.OnLine(line))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", info.Selected, err)
	}
	return fmt.Errorf("read %s: %w", info.Selected, io.EOF)
}

func (t *Transport) setConnected(v bool) {
	t.dec.SetConnected(v)
	if t.onStatus != nil {
		t.onStatus(t.dec.Snapshot())
	}
}

// ctxReader retries zero-byte timeout reads until data arrives or ctx ends.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	for {
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
	}
}
