// Package metrics records operational counters and timers for webpay.
//
// It plays the role a statsd client plays in a Django stack: callers bump
// counters and time blocks by dotted key, and a metricz registry keeps the
// values until Report writes them to the log.
package metrics

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

// Client records counters and timings into a metricz registry.
type Client struct {
	registry *metricz.Registry
	clock    clockz.Clock
}

// New creates a metrics client backed by a fresh registry.
func New() *Client {
	return &Client{registry: metricz.New(), clock: clockz.RealClock}
}

// Incr increments the counter stored under key.
func (c *Client) Incr(key string) {
	if c == nil {
		return
	}
	c.registry.Counter(metricz.Key(key)).Inc()
}

// Count returns the current value of the counter stored under key.
func (c *Client) Count(key string) float64 {
	if c == nil {
		return 0
	}
	return c.registry.Counter(metricz.Key(key)).Value()
}

// Timer starts timing key. The returned stop function records the elapsed
// milliseconds in the "<key>.ms" gauge and bumps the "<key>.calls" counter.
func (c *Client) Timer(key string) (stop func()) {
	if c == nil {
		return func() {}
	}
	started := c.clock.Now()
	return func() {
		elapsed := c.clock.Since(started)
		c.registry.Gauge(metricz.Key(key + ".ms")).Set(float64(elapsed / time.Millisecond))
		c.registry.Counter(metricz.Key(key + ".calls")).Inc()
	}
}

// Snapshot returns every counter and gauge value keyed by name.
func (c *Client) Snapshot() map[string]float64 {
	if c == nil {
		return nil
	}
	counters := c.registry.GetCounters()
	gauges := c.registry.GetGauges()
	values := make(map[string]float64, len(counters)+len(gauges))
	for key, counter := range counters {
		values[string(key)] = counter.Value()
	}
	for key, gauge := range gauges {
		values[string(key)] = gauge.Value()
	}
	return values
}

// Format renders a snapshot as sorted key=value pairs.
func Format(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(values[key], 'f', -1, 64))
	}
	return b.String()
}

// Report logs a snapshot through logf every interval, and once more when ctx
// ends. Empty snapshots are not logged.
func (c *Client) Report(ctx context.Context, interval time.Duration, logf func(format string, args ...any)) {
	if c == nil || logf == nil || interval <= 0 {
		return
	}
	emit := func() {
		if values := c.Snapshot(); len(values) > 0 {
			logf("metrics: %s", Format(values))
		}
	}
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			emit()
			return
		case <-ticker.C():
			emit()
		}
	}
}
