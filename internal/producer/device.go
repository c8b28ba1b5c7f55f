package producer

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/lumen/internal/executor"
	"github.com/zsiec/lumen/internal/media"
)

// FrameSink receives one composite frame per tick. Send blocks until the
// downstream stage has accepted the frame; that blocking is what paces the
// device to the channel rate.
type FrameSink interface {
	Send(*media.Frame)
}

// Device owns a channel's layer map and the executor that serializes every
// mutation of it. A private self-rescheduling tick polls all layers in
// parallel, composites their frames in ascending layer order, and forwards
// the result downstream. A failing tick clears the layer map and re-arms;
// the device never stops ticking until Close.
type Device struct {
	log  *slog.Logger
	exec *executor.Executor
	ff   *media.FrameFactory
	sink FrameSink

	// Owned by the executor goroutine.
	layers map[int]*Layer
}

// NewDevice creates a device and starts its tick loop. If log is nil,
// slog.Default() is used.
func NewDevice(ff *media.FrameFactory, sink FrameSink, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	d := &Device{
		log:    log.With("component", "producer-device"),
		exec:   executor.New("producer-device", 0),
		ff:     ff,
		sink:   sink,
		layers: make(map[int]*Layer),
	}
	d.exec.Begin(d.tick)
	return d
}

func (d *Device) tick() {
	// The next tick is always scheduled, even after a failure.
	defer d.exec.Begin(d.tick)

	frames, err := d.receiveAll()
	if err != nil {
		d.log.Error("unexpected error, cleared layers in producer device", "error", err)
		d.layers = make(map[int]*Layer)
		return
	}
	d.sink.Send(media.Composite(frames))
}

// receiveAll polls every layer concurrently. Composition order is ascending
// layer index; producers on different layers observe no ordering between
// their Receive calls.
func (d *Device) receiveAll() ([]*media.Frame, error) {
	indexes := slices.Sorted(maps.Keys(d.layers))
	frames := make([]*media.Frame, len(indexes))

	var g errgroup.Group
	for i, idx := range indexes {
		l := d.layers[idx]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("layer %d receive panic: %v", idx, r)
				}
			}()
			frames[i] = l.Receive()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// Load initializes p against the channel's frame factory and stages it on
// the given layer. Configuration failures surface here, before the command
// is enqueued.
func (d *Device) Load(layer int, p Producer, autoPlay bool) error {
	if err := p.Initialize(d.ff); err != nil {
		return fmt.Errorf("initialize %s: %w", p.String(), err)
	}
	d.exec.Begin(func() {
		l, ok := d.layers[layer]
		if !ok {
			l = NewLayer(d.ff, d.log.With("layer", layer))
			d.layers[layer] = l
		}
		l.Load(p, autoPlay)
	})
	return nil
}

// Play starts or resumes the given layer.
func (d *Device) Play(layer int) {
	d.exec.Begin(func() {
		if l, ok := d.layers[layer]; ok {
			l.Play()
		}
	})
}

// Pause freezes the given layer on its last frame.
func (d *Device) Pause(layer int) {
	d.exec.Begin(func() {
		if l, ok := d.layers[layer]; ok {
			l.Pause()
		}
	})
}

// Stop clears the layer's foreground; the layer itself is removed unless a
// background producer is staged.
func (d *Device) Stop(layer int) {
	d.exec.Begin(func() {
		if l, ok := d.layers[layer]; ok {
			l.Stop()
			if l.Background() == nil {
				delete(d.layers, layer)
			}
		}
	})
}

// Clear removes the given layer entirely.
func (d *Device) Clear(layer int) {
	d.exec.Begin(func() {
		if l, ok := d.layers[layer]; ok {
			l.Clear()
			delete(d.layers, layer)
		}
	})
}

// ClearAll removes every layer.
func (d *Device) ClearAll() {
	d.exec.Begin(func() {
		d.layers = make(map[int]*Layer)
	})
}

// Foreground resolves the layer's foreground producer on the executor.
func (d *Device) Foreground(layer int) <-chan Producer {
	return executor.Invoke(d.exec, func() Producer {
		if l, ok := d.layers[layer]; ok {
			return l.Foreground()
		}
		return nil
	})
}

// Background resolves the layer's background producer on the executor.
func (d *Device) Background(layer int) <-chan Producer {
	return executor.Invoke(d.exec, func() Producer {
		if l, ok := d.layers[layer]; ok {
			return l.Background()
		}
		return nil
	})
}

// Close stops the tick loop and waits for the in-flight tick to finish.
func (d *Device) Close() {
	d.exec.Stop()
	d.exec.Join()
}
