package consumer

import (
	"testing"

	"github.com/zsiec/lumen/internal/media"
)

type fakeConsumer struct {
	name   string
	frames []*media.Frame
	closed bool
}

func (f *fakeConsumer) Send(frame *media.Frame) <-chan bool {
	f.frames = append(f.frames, frame)
	ch := make(chan bool, 1)
	ch <- true
	return ch
}

func (f *fakeConsumer) Ready() bool   { return true }
func (f *fakeConsumer) Close() error  { f.closed = true; return nil }
func (f *fakeConsumer) String() string { return "fake[" + f.name + "]" }

func TestOutputFansOut(t *testing.T) {
	t.Parallel()

	o := NewOutput(nil)
	a := &fakeConsumer{name: "a"}
	b := &fakeConsumer{name: "b"}
	o.Add(a)
	o.Add(b)

	frame := media.NewEmpty()
	o.Send(frame)

	if len(a.frames) != 1 || len(b.frames) != 1 {
		t.Fatalf("fan-out: a=%d b=%d, want 1 each", len(a.frames), len(b.frames))
	}
	if a.frames[0] != frame {
		t.Error("consumer received a different frame")
	}
}

func TestOutputRemoveCloses(t *testing.T) {
	t.Parallel()

	o := NewOutput(nil)
	a := &fakeConsumer{name: "a"}
	key := o.Add(a)
	o.Remove(key)

	if !a.closed {
		t.Error("Remove should close the consumer")
	}
	o.Send(media.NewEmpty())
	if len(a.frames) != 0 {
		t.Error("removed consumer still receives frames")
	}
}

func TestOutputStats(t *testing.T) {
	t.Parallel()

	o := NewOutput(nil)
	o.Add(&fakeConsumer{name: "a"})
	o.Send(media.NewEmpty())
	o.Send(media.NewEmpty())

	stats := o.StatsAll()
	if len(stats) != 1 {
		t.Fatalf("stats entries: got %d, want 1", len(stats))
	}
	if stats[0].Delivered != 2 {
		t.Errorf("delivered: got %d, want 2", stats[0].Delivered)
	}
}

func TestOutputClose(t *testing.T) {
	t.Parallel()

	o := NewOutput(nil)
	a := &fakeConsumer{name: "a"}
	b := &fakeConsumer{name: "b"}
	o.Add(a)
	o.Add(b)
	o.Close()

	if !a.closed || !b.closed {
		t.Error("Close should close every consumer")
	}
	if o.Len() != 0 {
		t.Errorf("Len after Close: got %d, want 0", o.Len())
	}
}
