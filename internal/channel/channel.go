// Package channel assembles one playout context: a fixed video format, the
// producer device ticking over its layers, the mixer flattening each tick's
// composite, and the output fanning the result out to consumers. A manager
// tracks the channels of a running server.
package channel

import (
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/zsiec/lumen/internal/consumer"
	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
	"github.com/zsiec/lumen/internal/mixer"
	"github.com/zsiec/lumen/internal/producer"
)

// Channel is one independent playout context. The producer device free-runs
// against the channel: each composite it sends blocks until the frame clock
// ticks, is mixed down, and fans out to every consumer.
type Channel struct {
	log    *slog.Logger
	num    int
	format format.Video
	clk    clock.Clock

	factory *media.FrameFactory
	mixer   *mixer.Mixer
	output  *consumer.Output
	device  *producer.Device

	ticker *clock.Ticker
	done   chan struct{}
	stop   sync.Once
}

// New creates and starts a channel. A nil clk selects the wall clock; a nil
// log selects slog.Default().
func New(num int, v format.Video, clk clock.Clock, log *slog.Logger) *Channel {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("channel", num)

	c := &Channel{
		log:     log,
		num:     num,
		format:  v,
		clk:     clk,
		factory: media.NewFrameFactory(v),
		output:  consumer.NewOutput(log),
		ticker:  clk.Ticker(v.FrameInterval()),
		done:    make(chan struct{}),
	}
	c.mixer = mixer.New(c.factory, log)
	c.device = producer.NewDevice(c.factory, c, log)
	c.log.Info("channel started", "format", v.Name, "fps", v.FPS())
	return c
}

// Send implements the device's frame sink: it paces the device to the frame
// clock, mixes the composite down and fans it out.
func (c *Channel) Send(composite *media.Frame) {
	select {
	case <-c.ticker.C:
	case <-c.done:
		return
	}
	frame := c.mixer.Mix(composite)
	c.output.Send(frame)
}

// Num returns the channel number.
func (c *Channel) Num() int { return c.num }

// Format returns the channel's video format.
func (c *Channel) Format() format.Video { return c.format }

// Device exposes the producer device for load/play/pause/stop commands.
func (c *Channel) Device() *producer.Device { return c.device }

// Output exposes the consumer fan-out for attach/detach.
func (c *Channel) Output() *consumer.Output { return c.output }

// Factory exposes the channel's frame factory.
func (c *Channel) Factory() *media.FrameFactory { return c.factory }

// Close stops the tick loop, the device and every consumer.
func (c *Channel) Close() {
	c.stop.Do(func() {
		close(c.done)
		c.device.Close()
		c.ticker.Stop()
		c.output.Close()
		c.log.Info("channel stopped")
	})
}

// Manager tracks the channels of a server by number.
type Manager struct {
	log *slog.Logger
	clk clock.Clock

	mu       sync.RWMutex
	channels map[int]*Channel
}

// NewManager creates a channel manager. If log is nil, slog.Default() is
// used; a nil clk selects the wall clock.
func NewManager(clk clock.Clock, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		log:      log.With("component", "channel-manager"),
		clk:      clk,
		channels: make(map[int]*Channel),
	}
}

// Create registers and starts a channel. Returns the channel and true if
// created, or nil and false if the number is taken.
func (m *Manager) Create(num int, v format.Video) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[num]; ok {
		m.log.Warn("channel already exists, rejecting duplicate", "channel", num)
		return nil, false
	}
	c := New(num, v, m.clk, m.log)
	m.channels[num] = c
	return c, true
}

// Get resolves a channel by number.
func (m *Manager) Get(num int) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[num]
	return c, ok
}

// Remove stops and removes a channel.
func (m *Manager) Remove(num int) {
	m.mu.Lock()
	c, ok := m.channels[num]
	if ok {
		delete(m.channels, num)
	}
	m.mu.Unlock()

	if ok {
		c.Close()
		m.log.Info("channel removed", "channel", num)
	}
}

// List returns all channels.
func (m *Manager) List() []*Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Channel, 0, len(m.channels))
	for _, c := range m.channels {
		out = append(out, c)
	}
	return out
}

// Close stops every channel.
func (m *Manager) Close() {
	m.mu.Lock()
	channels := m.channels
	m.channels = make(map[int]*Channel)
	m.mu.Unlock()

	for _, c := range channels {
		c.Close()
	}
}
