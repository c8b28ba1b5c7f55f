// Package consumer defines the frame sinks of a channel and the fan-out hub
// that distributes each tick's composite to all of them. Every consumer owns
// its own bounded queue and worker; backpressure is expressed by dropping,
// never by stalling the tick thread.
package consumer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zsiec/lumen/internal/media"
)

// Consumer is a sink for composite frames.
//
// Send offers one frame and returns immediately; the future completes with
// true once the frame was accepted or deliberately dropped, false only on a
// consumer that can no longer make progress. Ready reports whether the
// consumer finished initializing. String is the print-name carried on every
// log line and diagnostics graph.
type Consumer interface {
	Send(frame *media.Frame) <-chan bool
	Ready() bool
	Close() error
	String() string
}

// Stats is a point-in-time snapshot of one registered consumer.
type Stats struct {
	Key       string
	Name      string
	Delivered int64
}

// Output is the fan-out hub for one channel. Registration keys are opaque
// and unique per Add, so the same consumer implementation can be attached
// twice (fill + key outputs).
type Output struct {
	log *slog.Logger

	mu        sync.RWMutex
	consumers map[string]Consumer

	delivered map[string]*atomic.Int64
}

// NewOutput creates an empty fan-out hub. If log is nil, slog.Default() is
// used.
func NewOutput(log *slog.Logger) *Output {
	if log == nil {
		log = slog.Default()
	}
	return &Output{
		log:       log.With("component", "output"),
		consumers: make(map[string]Consumer),
		delivered: make(map[string]*atomic.Int64),
	}
}

// Add registers c and returns its registration key.
func (o *Output) Add(c Consumer) string {
	key := uuid.NewString()
	o.mu.Lock()
	o.consumers[key] = c
	o.delivered[key] = &atomic.Int64{}
	o.mu.Unlock()
	o.log.Info("consumer added", "consumer", c.String(), "key", key)
	return key
}

// Remove detaches and closes the consumer under key.
func (o *Output) Remove(key string) {
	o.mu.Lock()
	c, ok := o.consumers[key]
	if ok {
		delete(o.consumers, key)
		delete(o.delivered, key)
	}
	o.mu.Unlock()

	if ok {
		if err := c.Close(); err != nil {
			o.log.Warn("consumer close failed", "consumer", c.String(), "error", err)
		}
		o.log.Info("consumer removed", "consumer", c.String(), "key", key)
	}
}

// Send fans the frame out to every consumer. Per-consumer futures are
// fire-and-forget: a consumer that drops has already accounted for it.
func (o *Output) Send(frame *media.Frame) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for key, c := range o.consumers {
		c.Send(frame)
		o.delivered[key].Add(1)
	}
}

// Len returns the number of attached consumers.
func (o *Output) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.consumers)
}

// StatsAll snapshots every attached consumer.
func (o *Output) StatsAll() []Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Stats, 0, len(o.consumers))
	for key, c := range o.consumers {
		out = append(out, Stats{
			Key:       key,
			Name:      c.String(),
			Delivered: o.delivered[key].Load(),
		})
	}
	return out
}

// Close detaches and closes every consumer.
func (o *Output) Close() {
	o.mu.Lock()
	consumers := o.consumers
	o.consumers = make(map[string]Consumer)
	o.delivered = make(map[string]*atomic.Int64)
	o.mu.Unlock()

	for _, c := range consumers {
		if err := c.Close(); err != nil {
			o.log.Warn("consumer close failed", "consumer", c.String(), "error", err)
		}
	}
}
