package producer

import (
	"errors"
	"io"
	"testing"

	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
)

// scriptProducer plays a fixed number of distinct frames, then reports end
// of stream. It records the calls the contract cares about.
type scriptProducer struct {
	Base
	name      string
	total     int
	pos       int
	mark      float64 // stamped on TranslateX so tests can identify frames
	following Producer
	leading   Producer
	initErr   error
	recvErr   error

	initialized     bool
	receiveAfterEOF bool
}

func (s *scriptProducer) Receive() (*media.Frame, error) {
	if s.recvErr != nil {
		return nil, s.recvErr
	}
	if s.pos >= s.total {
		if s.pos > s.total {
			s.receiveAfterEOF = true
		}
		s.pos++
		return nil, io.EOF
	}
	s.pos++
	tr := media.Identity()
	tr.TranslateX = s.mark
	return &media.Frame{Transform: tr}, nil
}

func (s *scriptProducer) Following() Producer               { return s.following }
func (s *scriptProducer) SetLeading(p Producer)             { s.leading = p }
func (s *scriptProducer) Initialize(*media.FrameFactory) error {
	s.initialized = true
	return s.initErr
}
func (s *scriptProducer) String() string { return "script[" + s.name + "]" }

func testFactory() *media.FrameFactory {
	return media.NewFrameFactory(format.PAL)
}

func TestLayerLoadAutoPlay(t *testing.T) {
	t.Parallel()

	l := NewLayer(testFactory(), nil)
	p := &scriptProducer{name: "a", total: 3}
	l.Load(p, true)

	if f := l.Receive(); f.IsEmpty() {
		t.Fatal("playing layer should emit producer frames")
	}
	if l.Foreground() != p {
		t.Error("autoPlay load should promote producer to foreground")
	}
}

func TestLayerLoadBackgroundThenPlay(t *testing.T) {
	t.Parallel()

	l := NewLayer(testFactory(), nil)
	p := &scriptProducer{name: "a", total: 3}
	l.Load(p, false)

	if l.Foreground() != nil {
		t.Fatal("background load must not touch foreground")
	}
	if f := l.Receive(); !f.IsEmpty() {
		t.Fatal("layer without foreground should emit empty")
	}

	l.Play()
	if l.Foreground() != p || l.Background() != nil {
		t.Error("Play should swap background into foreground")
	}
}

func TestLayerPauseFreezesLastFrame(t *testing.T) {
	t.Parallel()

	l := NewLayer(testFactory(), nil)
	p := &scriptProducer{name: "a", total: 10}
	l.Load(p, true)

	first := l.Receive()
	l.Pause()
	l.Pause() // idempotent

	for i := 0; i < 3; i++ {
		if got := l.Receive(); got != first {
			t.Fatal("paused layer must repeat the last emitted frame")
		}
	}
	if p.pos != 1 {
		t.Errorf("paused foreground was polled: pos=%d, want 1", p.pos)
	}

	l.Play()
	l.Play() // idempotent
	l.Receive()
	if p.pos != 2 {
		t.Errorf("resumed foreground not polled: pos=%d, want 2", p.pos)
	}
}

func TestLayerStopClearsForeground(t *testing.T) {
	t.Parallel()

	l := NewLayer(testFactory(), nil)
	l.Load(&scriptProducer{name: "a", total: 3}, true)
	l.Receive()
	l.Stop()

	if l.Foreground() != nil {
		t.Error("Stop must clear foreground")
	}
	if f := l.Receive(); !f.IsEmpty() {
		t.Error("stopped layer should emit empty")
	}
}

func TestLayerFollowingPromotion(t *testing.T) {
	t.Parallel()

	next := &scriptProducer{name: "next", total: 2}
	first := &scriptProducer{name: "first", total: 1, following: next}

	l := NewLayer(testFactory(), nil)
	l.Load(first, true)

	l.Receive() // first's only frame
	l.Receive() // EOS -> promote next, retry

	if !next.initialized {
		t.Error("following producer was not initialized")
	}
	if next.leading != first {
		t.Error("following producer did not capture the finished one as leading")
	}
	if l.Foreground() != next {
		t.Error("following producer did not replace foreground")
	}
}

func TestLayerFollowingInitFailure(t *testing.T) {
	t.Parallel()

	next := &scriptProducer{name: "next", total: 2, initErr: errors.New("no gpu")}
	first := &scriptProducer{name: "first", total: 1, following: next}

	l := NewLayer(testFactory(), nil)
	l.Load(first, true)
	l.Receive()

	if f := l.Receive(); !f.IsEmpty() {
		t.Error("failed promotion should leave the layer empty")
	}
	if l.Foreground() != nil {
		t.Error("foreground should be cleared after failed promotion")
	}
}

func TestLayerNeverPollsAfterEOF(t *testing.T) {
	t.Parallel()

	p := &scriptProducer{name: "a", total: 1}
	l := NewLayer(testFactory(), nil)
	l.Load(p, true)

	for i := 0; i < 5; i++ {
		l.Receive()
	}
	if p.receiveAfterEOF {
		t.Error("producer polled again after reporting end of stream")
	}
}

func TestLayerReceiveErrorDropsProducer(t *testing.T) {
	t.Parallel()

	p := &scriptProducer{name: "bad", recvErr: errors.New("decode failure")}
	l := NewLayer(testFactory(), nil)
	l.Load(p, true)

	if f := l.Receive(); !f.IsEmpty() {
		t.Error("failing producer should yield empty")
	}
	if l.Foreground() != nil {
		t.Error("failing producer should be dropped")
	}
}
