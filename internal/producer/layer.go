package producer

import (
	"log/slog"

	"github.com/zsiec/lumen/internal/media"
)

// Layer is one z-ordered slot in a channel: at most one foreground producer
// being played or paused, and at most one background producer pre-loaded for
// a later Play. Layers are owned by the Device and only ever touched on its
// executor.
type Layer struct {
	log *slog.Logger
	ff  *media.FrameFactory

	foreground Producer
	background Producer
	paused     bool
	last       *media.Frame
}

// NewLayer creates an empty layer. If log is nil, slog.Default() is used.
func NewLayer(ff *media.FrameFactory, log *slog.Logger) *Layer {
	if log == nil {
		log = slog.Default()
	}
	return &Layer{log: log, ff: ff, last: media.NewEmpty()}
}

// Load stages p. With autoPlay the producer replaces the foreground and
// starts playing immediately; otherwise it waits in the background slot.
func (l *Layer) Load(p Producer, autoPlay bool) {
	if autoPlay {
		l.foreground = p
		l.paused = false
		l.last = media.NewEmpty()
		return
	}
	l.background = p
}

// Play promotes the background producer if one is staged, otherwise resumes
// a paused foreground. Calling Play while already playing is a no-op.
func (l *Layer) Play() {
	if l.background != nil {
		l.foreground = l.background
		l.background = nil
		l.last = media.NewEmpty()
	}
	l.paused = false
}

// Pause freezes the layer: the foreground is not polled and Receive keeps
// returning the last emitted frame.
func (l *Layer) Pause() {
	l.paused = true
}

// Stop clears the foreground. The background, if any, stays staged.
func (l *Layer) Stop() {
	l.foreground = nil
	l.paused = false
	l.last = media.NewEmpty()
}

// Clear empties both slots.
func (l *Layer) Clear() {
	l.foreground = nil
	l.background = nil
	l.paused = false
	l.last = media.NewEmpty()
}

// Foreground returns the playing or paused producer, nil when empty.
func (l *Layer) Foreground() Producer { return l.foreground }

// Background returns the staged producer, nil when none.
func (l *Layer) Background() Producer { return l.background }

// Empty reports whether both slots are vacant.
func (l *Layer) Empty() bool { return l.foreground == nil && l.background == nil }

// Receive produces this layer's contribution to the current tick. A paused
// or empty layer repeats its last frame; a playing layer polls the
// foreground, chaining to its following producer at end of stream. A
// foreground that ends with no successor leaves the layer empty.
func (l *Layer) Receive() *media.Frame {
	if l.paused || l.foreground == nil {
		return l.last
	}

	frame, next, err := receiveChained(l.foreground, l.ff, l.log)
	if err != nil {
		l.foreground = nil
		l.last = media.NewEmpty()
		return l.last
	}
	l.foreground = next
	l.last = frame
	return frame
}
