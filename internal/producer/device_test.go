package producer

import (
	"errors"
	"testing"
	"time"

	"github.com/zsiec/lumen/internal/media"
)

var errInit = errors.New("init failure")

// captureSink hands each composite to the test; the unbuffered channel is
// what paces the device's tick loop. Closing the sink unblocks the device so
// tests that only exercise commands can let ticks free-run.
type captureSink struct {
	ch   chan *media.Frame
	done chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan *media.Frame), done: make(chan struct{})}
}

func (s *captureSink) Send(f *media.Frame) {
	select {
	case s.ch <- f:
	case <-s.done:
	}
}

func (s *captureSink) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *captureSink) next(t *testing.T) *media.Frame {
	t.Helper()
	select {
	case f := <-s.ch:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a composite")
		return nil
	}
}

func TestDeviceTicksWithoutLayers(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	d := NewDevice(testFactory(), sink, nil)
	defer d.Close()
	defer sink.Close()

	f := sink.next(t)
	if len(f.Children) != 0 {
		t.Errorf("empty device composite children: got %d, want 0", len(f.Children))
	}
}

func TestDeviceLoadVisibleNextTick(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	d := NewDevice(testFactory(), sink, nil)
	defer d.Close()
	defer sink.Close()

	if err := d.Load(10, &scriptProducer{name: "a", total: 100}, true); err != nil {
		t.Fatal(err)
	}

	// The load is serialized behind the in-flight tick; it must become
	// visible in a later composite.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f := sink.next(t); len(f.Children) == 1 {
			return
		}
	}
	t.Fatal("loaded producer never appeared in a composite")
}

func TestDeviceCompositeOrderAscendingLayer(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	d := NewDevice(testFactory(), sink, nil)
	defer d.Close()
	defer sink.Close()

	d.Load(5, &scriptProducer{name: "upper", total: 1000, mark: 5}, true)
	d.Load(1, &scriptProducer{name: "lower", total: 1000, mark: 1}, true)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f := sink.next(t)
		if len(f.Children) != 2 {
			continue
		}
		if got := f.Children[0].Transform.TranslateX; got != 1 {
			t.Fatalf("composite order: first child mark %v, want layer 1", got)
		}
		if got := f.Children[1].Transform.TranslateX; got != 5 {
			t.Fatalf("composite order: second child mark %v, want layer 5", got)
		}
		return
	}
	t.Fatal("expected a two-layer composite")
}

func TestDeviceStopRemovesLayer(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	d := NewDevice(testFactory(), sink, nil)
	defer d.Close()
	defer sink.Close()

	d.Load(0, &scriptProducer{name: "a", total: 1000}, true)
	d.Stop(0)

	// Once the stop command has run, composites are layer-free again and
	// stay that way.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f := sink.next(t); len(f.Children) == 0 {
			return
		}
	}
	t.Fatal("stopped layer still present in composites")
}

func TestDeviceStopKeepsLayerWithBackground(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	sink.Close() // free-run: this test only exercises commands
	d := NewDevice(testFactory(), sink, nil)
	defer d.Close()

	bg := &scriptProducer{name: "bg", total: 1000}
	d.Load(0, &scriptProducer{name: "fg", total: 1000}, true)
	d.Load(0, bg, false)
	d.Stop(0)

	if got := <-d.Background(0); got != bg {
		t.Error("background should survive Stop")
	}
	if got := <-d.Foreground(0); got != nil {
		t.Error("foreground should be cleared by Stop")
	}
}

func TestDeviceClearAll(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	sink.Close()
	d := NewDevice(testFactory(), sink, nil)
	defer d.Close()

	d.Load(0, &scriptProducer{name: "a", total: 1000}, true)
	d.Load(1, &scriptProducer{name: "b", total: 1000}, true)
	d.ClearAll()

	if p := <-d.Foreground(0); p != nil {
		t.Error("layer 0 still referenced after ClearAll")
	}
	if p := <-d.Foreground(1); p != nil {
		t.Error("layer 1 still referenced after ClearAll")
	}
}

func TestDeviceLoadInitFailure(t *testing.T) {
	t.Parallel()

	sink := newCaptureSink()
	sink.Close()
	d := NewDevice(testFactory(), sink, nil)
	defer d.Close()

	p := &scriptProducer{name: "bad", total: 1, initErr: errInit}
	if err := d.Load(0, p, true); err == nil {
		t.Fatal("Load should surface initialization failure")
	}
}
