// Package transition implements the two-input transition producer: it pulls
// a leading (outgoing) and a destination (incoming) producer in parallel for
// a fixed number of frames and composes them according to the transition
// type, then ends so that the destination takes over as its following
// producer.
package transition

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/lumen/internal/media"
	"github.com/zsiec/lumen/internal/producer"
)

// Type selects the visual effect applied across the transition window.
type Type int

const (
	Cut Type = iota
	Mix
	Slide
	Push
	Wipe
)

func (t Type) String() string {
	switch t {
	case Cut:
		return "cut"
	case Mix:
		return "mix"
	case Slide:
		return "slide"
	case Push:
		return "push"
	case Wipe:
		return "wipe"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Direction is the horizontal travel of slide/push/wipe effects.
type Direction int

const (
	FromLeft Direction = iota
	FromRight
)

// Info fixes a transition's parameters at construction.
type Info struct {
	Type      Type
	Duration  uint32 // frames
	Direction Direction
}

// Producer is the transition producer. The destination side is mandatory;
// the source side arrives later via SetLeading when a layer swaps this
// producer in.
type Producer struct {
	log  *slog.Logger
	info Info
	ff   *media.FrameFactory

	current uint32

	source producer.Producer
	dest   producer.Producer

	// The original destination stays exposed as the following producer even
	// after dest has chained past it; downstream promotes it at our EOS and
	// the chain state lives inside it.
	orgDest producer.Producer

	// Set when a side promoted its following producer; the next composed
	// frame carries the discontinuity flag downstream.
	discontinuity bool
}

// New creates a transition toward dest. If log is nil, slog.Default() is
// used.
func New(dest producer.Producer, info Info, log *slog.Logger) (*Producer, error) {
	if dest == nil {
		return nil, errors.New("transition: dest producer is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		log:     log.With("component", "transition", "type", info.Type.String()),
		info:    info,
		dest:    dest,
		orgDest: dest,
	}, nil
}

// Initialize binds the destination side; the source side is initialized by
// whoever owned it before handing it over.
func (p *Producer) Initialize(ff *media.FrameFactory) error {
	if err := p.dest.Initialize(ff); err != nil {
		return err
	}
	p.ff = ff
	return nil
}

// Following exposes the destination so that it takes over when the
// transition ends.
func (p *Producer) Following() producer.Producer { return p.orgDest }

// SetLeading injects the outgoing producer.
func (p *Producer) SetLeading(source producer.Producer) { p.source = source }

// Receive advances the transition by one frame. Both sides are polled in
// parallel; a side that ends tries its following producer and is otherwise
// dropped for the rest of the transition. The final frame (current ==
// duration) is EOS, never a full-destination frame.
func (p *Producer) Receive() (*media.Frame, error) {
	if p.current == 0 {
		p.log.Info("transition started", "duration", p.info.Duration)
	}
	if p.current >= p.info.Duration {
		return nil, io.EOF
	}

	var srcFrame, dstFrame *media.Frame
	var srcPromoted, dstPromoted bool
	var g errgroup.Group
	g.Go(func() error {
		dstFrame, p.dest, dstPromoted = p.receiveSide(p.dest)
		return nil
	})
	g.Go(func() error {
		srcFrame, p.source, srcPromoted = p.receiveSide(p.source)
		return nil
	})
	g.Wait()
	if srcPromoted || dstPromoted {
		p.discontinuity = true
	}

	if srcFrame == nil && dstFrame == nil {
		p.log.Info("transition ended early, both sides at end of stream")
		return nil, io.EOF
	}

	frame := p.compose(dstFrame, srcFrame)
	if p.discontinuity {
		frame.Discontinuity = true
		p.discontinuity = false
	}
	p.current++
	if p.current == p.info.Duration {
		p.log.Info("transition ended")
	}
	return frame, nil
}

// receiveSide polls one side, promoting its following producer at end of
// stream. A side that fails or runs dry comes back nil and is never polled
// again. promoted reports that a successor took over, breaking PTS
// continuity.
func (p *Producer) receiveSide(side producer.Producer) (frame *media.Frame, next producer.Producer, promoted bool) {
	for side != nil {
		frame, err := side.Receive()
		if err == nil {
			return frame, side, promoted
		}
		if !errors.Is(err, io.EOF) {
			p.log.Warn("removed producer from transition", "producer", side.String(), "error", err)
			return nil, nil, promoted
		}

		following := side.Following()
		if following == nil {
			return nil, nil, promoted
		}
		if err := following.Initialize(p.ff); err != nil {
			p.log.Warn("failed to initialize following producer, removing it",
				"producer", following.String(), "error", err)
			return nil, nil, promoted
		}
		following.SetLeading(side)
		side = following
		promoted = true
	}
	return nil, nil, promoted
}

// compose blends the two side frames for the current position. A missing
// side is composited as a zero frame.
func (p *Producer) compose(dst, src *media.Frame) *media.Frame {
	if src == nil {
		src = media.NewEmpty()
	}
	if dst == nil {
		dst = media.NewEmpty()
	}

	if p.info.Type == Cut {
		// A cut shows the incoming side immediately; the window only delays
		// the handoff of the chain.
		if !dst.IsEmpty() || src.IsEmpty() {
			return dst
		}
		return src
	}

	alpha := float64(p.current) / float64(p.info.Duration)
	volume := uint8(min(int(alpha*256.0), media.VolumeUnity))

	srcTr := media.Identity()
	srcTr.Volume = media.VolumeUnity - volume
	dstTr := media.Identity()
	dstTr.Volume = volume

	dir := 1.0
	if p.info.Direction == FromRight {
		dir = -1.0
	}

	switch p.info.Type {
	case Mix:
		dstTr.Alpha = alpha
	case Slide:
		dstTr.TranslateX = (alpha - 1.0) * dir
	case Push:
		dstTr.TranslateX = (alpha - 1.0) * dir
		srcTr.TranslateX = alpha * dir
	case Wipe:
		dstTr.TranslateX = (alpha - 1.0) * dir
		dstTr.TexCoord = media.Rect{
			X0: (alpha - 1.0) * dir,
			Y0: 0,
			X1: 1.0 - (1.0-alpha)*dir,
			Y1: 1,
		}
	}

	return media.Composite([]*media.Frame{
		media.WithTransform(src, srcTr),
		media.WithTransform(dst, dstTr),
	})
}

func (p *Producer) String() string {
	src := "empty"
	if p.source != nil {
		src = p.source.String()
	}
	return "transition[" + p.info.Type.String() + " dest: " + p.orgDest.String() + " src: " + src + "]"
}
