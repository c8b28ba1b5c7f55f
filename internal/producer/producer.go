// Package producer defines the pull-driven frame sources of a channel and
// the per-layer state machines that schedule them. A producer yields one
// frame per channel tick until it reports end of stream with io.EOF, and may
// advertise a successor that takes over at that point.
package producer

import (
	"errors"
	"io"
	"log/slog"

	"github.com/zsiec/lumen/internal/media"
)

// Producer is a lazy source of timed frames.
//
// Receive returns the next frame at the channel cadence, or io.EOF once the
// stream has ended; after the first io.EOF every later call returns io.EOF.
// Following returns the successor to chain to at end of stream, or nil.
// SetLeading injects the outgoing producer for transition contexts.
// Initialize binds the producer to the channel's frame allocation context
// and must be called before the first Receive.
type Producer interface {
	Receive() (*media.Frame, error)
	Following() Producer
	SetLeading(Producer)
	Initialize(ff *media.FrameFactory) error
	String() string
}

// Base provides no-op successor plumbing for producers that never chain.
type Base struct{}

// Following returns nil: no successor.
func (Base) Following() Producer { return nil }

// SetLeading ignores the outgoing producer.
func (Base) SetLeading(Producer) {}

type emptyProducer struct{ Base }

func (emptyProducer) Receive() (*media.Frame, error)      { return media.NewEmpty(), nil }
func (emptyProducer) Initialize(*media.FrameFactory) error { return nil }
func (emptyProducer) String() string                       { return "empty" }

// Empty returns the producer that yields empty frames forever.
func Empty() Producer { return emptyProducer{} }

// receiveChained polls p and, when p ends, promotes its following producer:
// the successor is initialized, given p as its leading producer, and polled
// in p's place. The returned producer is whichever one yielded the frame.
//
// Any failure — a receive error or a successor that fails to initialize —
// drops the chain permanently: the caller gets io.EOF and must not poll p
// again.
func receiveChained(p Producer, ff *media.FrameFactory, log *slog.Logger) (*media.Frame, Producer, error) {
	for p != nil {
		frame, err := p.Receive()
		if err == nil {
			return frame, p, nil
		}
		if !errors.Is(err, io.EOF) {
			log.Warn("producer failed, removing it", "producer", p.String(), "error", err)
			return nil, nil, io.EOF
		}

		following := p.Following()
		if following == nil {
			return nil, nil, io.EOF
		}
		if err := following.Initialize(ff); err != nil {
			log.Warn("failed to initialize following producer, removing it",
				"producer", following.String(), "error", err)
			return nil, nil, io.EOF
		}
		following.SetLeading(p)
		p = following
	}
	return nil, nil, io.EOF
}
