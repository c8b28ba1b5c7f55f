package transition

import (
	"errors"
	"io"
	"testing"

	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
	"github.com/zsiec/lumen/internal/producer"
)

// side is a scripted producer emitting marked frames so tests can tell the
// two inputs apart inside a composite.
type side struct {
	producer.Base
	name      string
	total     int
	pos       int
	mark      float64
	following producer.Producer
	leading   producer.Producer
	initErr   error

	initialized     bool
	receiveAfterEOF bool
}

func (s *side) Receive() (*media.Frame, error) {
	if s.pos >= s.total {
		if s.pos > s.total {
			s.receiveAfterEOF = true
		}
		s.pos++
		return nil, io.EOF
	}
	s.pos++
	tr := media.Identity()
	tr.TranslateY = s.mark
	return &media.Frame{Transform: tr}, nil
}

func (s *side) Following() producer.Producer { return s.following }
func (s *side) SetLeading(p producer.Producer) { s.leading = p }
func (s *side) Initialize(*media.FrameFactory) error {
	s.initialized = true
	return s.initErr
}
func (s *side) String() string { return "side[" + s.name + "]" }

func newTransition(t *testing.T, dest producer.Producer, info Info) *Producer {
	t.Helper()
	tr, err := New(dest, info, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Initialize(media.NewFrameFactory(format.PAL)); err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestZeroDurationEmitsEOSImmediately(t *testing.T) {
	t.Parallel()

	tr := newTransition(t, &side{name: "dest", total: 10}, Info{Type: Mix, Duration: 0})
	if _, err := tr.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("duration=0 first receive: got %v, want io.EOF", err)
	}
}

func TestCutReturnsDestUntilBoundary(t *testing.T) {
	t.Parallel()

	dest := &side{name: "dest", total: 10, mark: 2}
	tr := newTransition(t, dest, Info{Type: Cut, Duration: 5})
	tr.SetLeading(&side{name: "src", total: 10, mark: 1})

	for k := 0; k < 5; k++ {
		f, err := tr.Receive()
		if err != nil {
			t.Fatalf("tick %d: %v", k, err)
		}
		if f.Transform.TranslateY != 2 {
			t.Fatalf("tick %d: cut should show dest, got mark %v", k, f.Transform.TranslateY)
		}
	}
	if _, err := tr.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("tick 5: got %v, want io.EOF", err)
	}
}

func TestMixAlphaAndVolumeRamp(t *testing.T) {
	t.Parallel()

	const duration = 4
	dest := &side{name: "dest", total: 10, mark: 2}
	tr := newTransition(t, dest, Info{Type: Mix, Duration: duration})
	tr.SetLeading(&side{name: "src", total: 10, mark: 1})

	for k := 0; k < duration; k++ {
		f, err := tr.Receive()
		if err != nil {
			t.Fatalf("tick %d: %v", k, err)
		}
		if len(f.Children) != 2 {
			t.Fatalf("tick %d: want src+dest composite, got %d children", k, len(f.Children))
		}
		src, dst := f.Children[0], f.Children[1]

		alpha := float64(k) / duration
		if got := dst.Transform.Alpha; got != alpha {
			t.Errorf("tick %d: dest alpha got %v, want %v", k, got, alpha)
		}
		wantVol := uint8(alpha * 256)
		if got := dst.Transform.Volume; got != wantVol {
			t.Errorf("tick %d: dest volume got %d, want %d", k, got, wantVol)
		}
		if got := src.Transform.Volume; got != 255-wantVol {
			t.Errorf("tick %d: src volume got %d, want %d", k, got, 255-wantVol)
		}
	}
	if _, err := tr.Receive(); !errors.Is(err, io.EOF) {
		t.Fatal("transition should end at duration boundary")
	}
}

func TestPushTranslatesBothSides(t *testing.T) {
	t.Parallel()

	tr := newTransition(t, &side{name: "dest", total: 10}, Info{Type: Push, Duration: 4})
	tr.SetLeading(&side{name: "src", total: 10})

	f, err := tr.Receive() // k=0, alpha=0
	if err != nil {
		t.Fatal(err)
	}
	src, dst := f.Children[0], f.Children[1]
	if dst.Transform.TranslateX != -1 {
		t.Errorf("dest translate at alpha=0: got %v, want -1", dst.Transform.TranslateX)
	}
	if src.Transform.TranslateX != 0 {
		t.Errorf("src translate at alpha=0: got %v, want 0", src.Transform.TranslateX)
	}

	f, _ = tr.Receive() // k=1, alpha=0.25
	src, dst = f.Children[0], f.Children[1]
	if dst.Transform.TranslateX != -0.75 {
		t.Errorf("dest translate at alpha=0.25: got %v, want -0.75", dst.Transform.TranslateX)
	}
	if src.Transform.TranslateX != 0.25 {
		t.Errorf("src translate at alpha=0.25: got %v, want 0.25", src.Transform.TranslateX)
	}
}

func TestWipeNarrowsSampleWindow(t *testing.T) {
	t.Parallel()

	tr := newTransition(t, &side{name: "dest", total: 10}, Info{Type: Wipe, Duration: 2})
	tr.SetLeading(&side{name: "src", total: 10})

	tr.Receive()          // k=0
	f, err := tr.Receive() // k=1, alpha=0.5
	if err != nil {
		t.Fatal(err)
	}
	dst := f.Children[1]
	want := media.Rect{X0: -0.5, Y0: 0, X1: 0.5, Y1: 1}
	if dst.Transform.TexCoord != want {
		t.Errorf("wipe texcoord: got %+v, want %+v", dst.Transform.TexCoord, want)
	}
}

func TestNoLeadingBehavesAsEOSSource(t *testing.T) {
	t.Parallel()

	tr := newTransition(t, &side{name: "dest", total: 10, mark: 2}, Info{Type: Mix, Duration: 3})

	f, err := tr.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Children) != 2 {
		t.Fatalf("want composite of empty src + dest, got %d children", len(f.Children))
	}
	if !f.Children[0].Children[0].IsEmpty() {
		t.Error("missing source should be composited as the empty frame")
	}
}

func TestBothSidesEOSEndsTransition(t *testing.T) {
	t.Parallel()

	tr := newTransition(t, &side{name: "dest", total: 1}, Info{Type: Mix, Duration: 10})
	tr.SetLeading(&side{name: "src", total: 1})

	tr.Receive() // consumes both sides' only frames
	if _, err := tr.Receive(); !errors.Is(err, io.EOF) {
		t.Fatalf("both sides dry: got %v, want io.EOF", err)
	}
}

func TestSidePromotesItsFollowing(t *testing.T) {
	t.Parallel()

	next := &side{name: "next", total: 10, mark: 3}
	src := &side{name: "src", total: 1, mark: 1, following: next}
	tr := newTransition(t, &side{name: "dest", total: 10, mark: 2}, Info{Type: Mix, Duration: 6})
	tr.SetLeading(src)

	tr.Receive() // src's only frame
	f, err := tr.Receive()
	if err != nil {
		t.Fatal(err)
	}
	if !next.initialized || next.leading != src {
		t.Error("source side did not promote its following producer")
	}
	if !f.Discontinuity {
		t.Error("promotion should mark the next frame as a discontinuity")
	}
	if got := f.Children[0].Children[0].Transform.TranslateY; got != 3 {
		t.Errorf("promoted source frame mark: got %v, want 3", got)
	}
}

func TestFollowingIsDest(t *testing.T) {
	t.Parallel()

	dest := &side{name: "dest", total: 10}
	tr := newTransition(t, dest, Info{Type: Mix, Duration: 1})
	if tr.Following() != producer.Producer(dest) {
		t.Error("transition must expose dest as its following producer")
	}
}

func TestSideNeverPolledAfterEOF(t *testing.T) {
	t.Parallel()

	src := &side{name: "src", total: 1}
	tr := newTransition(t, &side{name: "dest", total: 20}, Info{Type: Mix, Duration: 10})
	tr.SetLeading(src)

	for i := 0; i < 10; i++ {
		tr.Receive()
	}
	if src.receiveAfterEOF {
		t.Error("source polled again after end of stream")
	}
}
