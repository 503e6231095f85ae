// Package device decodes the sorting appliance's newline-delimited text protocol
// and tracks the last known device state for dashboard readers.
package device

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/model"
)

// Exact tokens the firmware prints after classifying an item.
var deviceTokens = map[string]category.Category{
	"RECYCABLE": category.Recyclable,
	"NON-BIO":   category.NonBiodegradable,
	"BIO":       category.Biodegradable,
	"UNSORTED":  category.Unsorted,
}

// Tokens accepted after a "TYPE:" prefix, dashes already folded to underscores.
var typeTokens = map[string]category.Category{
	"RECYCABLE":  category.Recyclable,
	"RECYCLABLE": category.Recyclable,
	"NON_BIO":    category.NonBiodegradable,
	"BIO":        category.Biodegradable,
	"UNSORTED":   category.Unsorted,
}

var (
	weightLine = regexp.MustCompile(`(?i)^WEIGHT:\s*(.*)$`)
	typeLine   = regexp.MustCompile(`(?i)^TYPE:\s*(.*)$`)
	leadingNum = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)`)
)

// PortInfo records which serial port the transport tried and which it chose.
type PortInfo struct {
	Configured string
	Selected   string
	Available  []string
}

// State is a point-in-time view of the device. It is a value type and safe to
// use after the decoder lock is released.
type State struct {
	LastCategory    *category.Category
	LastWeightGrams *float64
	LastLine        string
	LastUpdatedAt   time.Time
	Connected       bool
	LastError       string
	Port            PortInfo
}

// Decoder classifies device lines. All state mutation is serialized by mu, so
// lines must be fed in device order from a single producer.
type Decoder struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
	log   *zap.Logger
}

// NewDecoder constructs a decoder. A nil logger disables diagnostics.
func NewDecoder(log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{now: time.Now, log: log.With(zap.String("component", "decoder"))}
}

// OnLine classifies one raw line and updates the device state.
func (d *Decoder) OnLine(raw string) model.DeviceEvent {
	line := strings.TrimSpace(raw)
	upper := strings.ToUpper(line)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.state.LastLine = line
	d.state.LastUpdatedAt = now

	if c, ok := deviceTokens[upper]; ok {
		return d.detected(c, now)
	}

	if m := weightLine.FindStringSubmatch(line); m != nil {
		if grams, ok := parseGrams(m[1]); ok {
			d.state.LastWeightGrams = &grams
			return model.WeightReading(grams, now)
		}
		return d.fallback(line, upper, now)
	}

	if m := typeLine.FindStringSubmatch(line); m != nil {
		return d.detected(typeOverride(m[1]), now)
	}

	return d.fallback(line, upper, now)
}

// fallback applies substring matching for noisy or partial lines.
func (d *Decoder) fallback(line, upper string, now time.Time) model.DeviceEvent {
	switch {
	case strings.Contains(upper, "RECYCABLE"), strings.Contains(upper, "RECYCLABLE"):
		return d.detected(category.Recyclable, now)
	case strings.Contains(upper, "NON-BIO"), strings.Contains(upper, "NON_BIO"):
		return d.detected(category.NonBiodegradable, now)
	case strings.Contains(upper, "BIO") && !strings.Contains(upper, "NON"):
		return d.detected(category.Biodegradable, now)
	case strings.Contains(upper, "UNSORTED"):
		return d.detected(category.Unsorted, now)
	}
	// NORMAL/WEIGHT status chatter and everything else leave the category alone.
	d.log.Debug("unrecognized device line", zap.String("line", line))
	return model.Unrecognized(line, now)
}

func (d *Decoder) detected(c category.Category, now time.Time) model.DeviceEvent {
	d.state.LastCategory = &c
	return model.CategoryDetected(c, now)
}

func typeOverride(token string) category.Category {
	token = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(token), "-", "_"))
	if token == "" {
		return category.Unsorted
	}
	if c, ok := typeTokens[token]; ok {
		return c
	}
	return category.Normalize(token)
}

func parseGrams(s string) (float64, bool) {
	num := leadingNum.FindString(strings.TrimSpace(s))
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetConnected records the transport connection state.
func (d *Decoder) SetConnected(connected bool) {
	d.mu.Lock()
	d.state.Connected = connected
	if connected {
		d.state.LastError = ""
	}
	d.mu.Unlock()
}

// SetError records the last transport error. A nil error is ignored.
func (d *Decoder) SetError(err error) {
	if err == nil {
		return
	}
	d.mu.Lock()
	d.state.LastError = err.Error()
	d.mu.Unlock()
}

// SetPort records port discovery results for diagnostics.
func (d *Decoder) SetPort(info PortInfo) {
	info.Available = append([]string(nil), info.Available...)
	d.mu.Lock()
	d.state.Port = info
	d.mu.Unlock()
}

// Snapshot returns a deep copy of the current state.
func (d *Decoder) Snapshot() State {
	d.mu.Lock()
	s := d.state
	d.mu.Unlock()

	if s.LastCategory != nil {
		c := *s.LastCategory
		s.LastCategory = &c
	}
	if s.LastWeightGrams != nil {
		w := *s.LastWeightGrams
		s.LastWeightGrams = &w
	}
	s.Port.Available = append([]string(nil), s.Port.Available...)
	return s
}
