package mux

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
)

// Inner-queue overflow limits. Hitting one means the feeder is pushing far
// faster than the channel drains, which in practice is wrong source
// frame-rate metadata.
const (
	maxEpochVideoFrames   = 32
	maxEpochAudioCadences = 32
)

var (
	ErrVideoOverflow = errors.New("video-stream overflow, check clip frame-rate metadata")
	ErrAudioOverflow = errors.New("audio-stream overflow, check clip frame-rate metadata")
)

// Config assembles a Muxer.
type Config struct {
	InFPS      float64
	Format     format.Video
	Factory    *media.FrameFactory
	FilterExpr string
	Channels   int  // audio channels in pushed sample buffers
	IsMXF      bool // enables the IMX 720x608 VBI crop
	NewFilter  FilterFactory
	Log        *slog.Logger
}

// Muxer reassembles demultiplexed video and audio into composite-ready
// frames at the channel cadence. Both lanes are queues of epochs: flush
// markers open a new epoch, and the two lanes drain in lockstep so an
// incomplete epoch is dropped from both sides together.
type Muxer struct {
	log *slog.Logger
	cfg Config

	mode    Mode
	cadence *cadenceRing

	filter   Filter
	filterIn media.Image // format signature the current filter was built for

	videoStreams [][]*media.Frame
	audioStreams [][]int32
	frameBuffer  []*media.Frame

	truncatedVideo int
	truncatedAudio int
}

// New creates a muxer for a source running at cfg.InFPS against the channel
// format. A nil NewFilter selects the pass-through factory; a nil Log
// selects slog.Default().
func New(cfg Config) *Muxer {
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if cfg.NewFilter == nil {
		cfg.NewFilter = Passthrough()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Muxer{
		log:          cfg.Log.With("component", "frame-muxer"),
		cfg:          cfg,
		mode:         ModeInvalid,
		cadence:      newCadenceRing(cfg.Format.Cadence),
		videoStreams: [][]*media.Frame{nil},
		audioStreams: [][]int32{nil},
	}
}

// Mode returns the current display mode.
func (m *Muxer) Mode() Mode { return m.mode }

// Truncated returns how many video frames and audio samples lockstep
// truncation has dropped so far.
func (m *Muxer) Truncated() (videoFrames, audioSamples int) {
	return m.truncatedVideo, m.truncatedAudio
}

func (m *Muxer) formatChanged(pic Picture) bool {
	return pic.Image.Width != m.filterIn.Width ||
		pic.Image.Height != m.filterIn.Height ||
		pic.Image.Format != m.filterIn.Format
}

// PushVideo feeds one decoded picture. The first picture (and any picture
// that changes the source format) runs the display-mode decision and builds
// the filter. A flush marker alone does not re-run it: a new epoch whose
// pictures match the current filter keeps the current mode. A format change
// rebuilds the filter inside the current epoch; no new epoch is opened.
func (m *Muxer) PushVideo(pic Picture) error {
	if pic.Image.Width == 0 || pic.Image.Height == 0 {
		return nil
	}

	if m.filter == nil || m.formatChanged(pic) {
		if m.filter != nil {
			m.log.Debug("frame format has changed, resetting display mode")
		}
		m.mode = ModeInvalid
	}
	if m.mode == ModeInvalid {
		if err := m.updateMode(pic); err != nil {
			return err
		}
	}

	if err := m.filter.Push(pic); err != nil {
		return fmt.Errorf("filter push: %w", err)
	}
	for {
		out, ok, err := m.filter.Poll()
		if err != nil {
			return fmt.Errorf("filter poll: %w", err)
		}
		if !ok {
			break
		}
		frame := m.cfg.Factory.WrapImage(out.Image)
		back := len(m.videoStreams) - 1
		m.videoStreams[back] = append(m.videoStreams[back], frame)
	}

	if len(m.videoStreams[len(m.videoStreams)-1]) > maxEpochVideoFrames {
		return ErrVideoOverflow
	}
	return nil
}

// PushEmptyVideo appends a blank write-frame and forces simple mode, for
// sources that are momentarily without pictures.
func (m *Muxer) PushEmptyVideo() {
	back := len(m.videoStreams) - 1
	m.videoStreams[back] = append(m.videoStreams[back], m.cfg.Factory.NewFrame())
	m.mode = ModeSimple
}

// FlushVideo closes the current video epoch.
func (m *Muxer) FlushVideo() {
	m.videoStreams = append(m.videoStreams, nil)
}

// PushAudio appends interleaved samples to the current audio epoch.
func (m *Muxer) PushAudio(samples []int32) error {
	back := len(m.audioStreams) - 1
	m.audioStreams[back] = append(m.audioStreams[back], samples...)
	if len(m.audioStreams[back]) > maxEpochAudioCadences*m.cadence.Front()*m.cfg.Channels {
		return ErrAudioOverflow
	}
	return nil
}

// SilenceSlotsPerFrame returns how many cadence slots a silent source must
// push per video frame for the current display mode.
func (m *Muxer) SilenceSlotsPerFrame() int {
	return m.mode.cadenceSlotsPerInput()
}

// PushSilence appends one cadence slot of zero samples.
func (m *Muxer) PushSilence() {
	back := len(m.audioStreams) - 1
	m.audioStreams[back] = append(m.audioStreams[back],
		media.Silence(m.cadence.Front(), m.cfg.Channels)...)
}

// FlushAudio closes the current audio epoch.
func (m *Muxer) FlushAudio() {
	m.audioStreams = append(m.audioStreams, nil)
}

// VideoReady reports whether the video lane can contribute to an emit.
func (m *Muxer) VideoReady() bool {
	return len(m.videoStreams) > 1 ||
		(len(m.videoStreams) >= len(m.audioStreams) && m.videoReadyCurrent())
}

// AudioReady reports whether the audio lane can contribute to an emit.
func (m *Muxer) AudioReady() bool {
	return len(m.audioStreams) > 1 ||
		(len(m.audioStreams) >= len(m.videoStreams) && m.audioReadyCurrent())
}

func (m *Muxer) videoReadyCurrent() bool {
	return len(m.videoStreams[0]) >= m.mode.framesPerOutput()
}

func (m *Muxer) audioReadyCurrent() bool {
	need := m.cadence.Front() * m.cfg.Channels * m.mode.cadenceSlotsPerInput()
	return len(m.audioStreams[0]) >= need
}

// Poll emits the next composite-ready frame, or ok=false when more source
// material is needed.
func (m *Muxer) Poll() (*media.Frame, bool) {
	if len(m.frameBuffer) > 0 {
		return m.popBuffered()
	}

	// Lockstep truncation: when both lanes have moved on to a newer epoch
	// but the current one cannot complete, drop both current epochs.
	if len(m.videoStreams) > 1 && len(m.audioStreams) > 1 &&
		(!m.videoReadyCurrent() || !m.audioReadyCurrent()) {
		if len(m.videoStreams[0]) > 0 || len(m.audioStreams[0]) > 0 {
			m.truncatedVideo += len(m.videoStreams[0])
			m.truncatedAudio += len(m.audioStreams[0])
			m.log.Warn("truncating epoch",
				"videoFrames", len(m.videoStreams[0]),
				"audioSamples", len(m.audioStreams[0]))
		}
		m.videoStreams = m.videoStreams[1:]
		m.audioStreams = m.audioStreams[1:]
	}

	if m.mode == ModeInvalid || !m.videoReadyCurrent() || !m.audioReadyCurrent() {
		return nil, false
	}

	frame := m.popVideo()
	frame.Audio = m.popAudio()
	frame.Channels = m.cfg.Channels

	switch m.mode {
	case ModeInterlace, ModeScaleInterlaced:
		second := m.popVideo()
		m.frameBuffer = append(m.frameBuffer, m.weave(frame, second))
	case ModeDuplicate:
		dup := &media.Frame{
			Image:     frame.Image,
			Transform: frame.Transform,
			Audio:     m.popAudio(),
			Channels:  m.cfg.Channels,
		}
		m.frameBuffer = append(m.frameBuffer, frame, dup)
	case ModeHalf:
		m.popVideo() // second source frame is discarded
		m.frameBuffer = append(m.frameBuffer, frame)
	default:
		m.frameBuffer = append(m.frameBuffer, frame)
	}
	return m.popBuffered()
}

func (m *Muxer) popBuffered() (*media.Frame, bool) {
	f := m.frameBuffer[0]
	m.frameBuffer = m.frameBuffer[1:]
	return f, true
}

func (m *Muxer) popVideo() *media.Frame {
	f := m.videoStreams[0][0]
	m.videoStreams[0] = m.videoStreams[0][1:]
	return f
}

func (m *Muxer) popAudio() []int32 {
	need := m.cadence.Front() * m.cfg.Channels
	cur := m.audioStreams[0]
	samples := cur[:need:need]
	m.audioStreams[0] = cur[need:]
	m.cadence.Rotate()
	return samples
}

// weave interleaves two frames' lines into one interlaced output. For an
// upper-field-first channel the first frame supplies even lines, otherwise
// odd. The first frame's audio rides along.
func (m *Muxer) weave(first, second *media.Frame) *media.Frame {
	a, b := first.Image, second.Image
	if a.Blank() || b.Blank() || a.Height != b.Height || a.Stride != b.Stride {
		return first
	}
	out := media.Image{
		Format: a.Format,
		Width:  a.Width,
		Height: a.Height,
		Stride: a.Stride,
		Data:   make([]byte, len(a.Data)),
	}
	evenSrc, oddSrc := a, b
	if m.cfg.Format.FieldMode == format.Lower {
		evenSrc, oddSrc = b, a
	}
	for y := 0; y < a.Height; y++ {
		src := evenSrc
		if y%2 == 1 {
			src = oddSrc
		}
		row := src.Data[y*src.Stride : y*src.Stride+src.Stride]
		copy(out.Data[y*out.Stride:], row)
	}
	return &media.Frame{
		Image:     out,
		Transform: media.Identity(),
		Audio:     first.Audio,
		Channels:  first.Channels,
	}
}

// updateMode classifies the display mode for pic and rebuilds the filter
// with whatever crop/deinterlace/scale stages the mode needs.
func (m *Muxer) updateMode(pic Picture) error {
	srcMode := sourceFieldMode(pic.Interlaced, pic.TopFieldFirst, pic.Image.Height, m.cfg.InFPS)
	mode := classify(srcMode, m.cfg.InFPS, m.cfg.Format)

	// An interlaced source on an interlaced channel with a differing raster
	// must be scaled as fields, not as full frames. NTSC DV (480 on 486)
	// and IMX with VBI (608 on 576, cropped below) keep their pairing.
	if mode == ModeSimple && srcMode != format.Progressive &&
		m.cfg.Format.FieldMode != format.Progressive &&
		pic.Image.Height != m.cfg.Format.Height &&
		!(pic.Image.Height == 480 && m.cfg.Format.Height == 486) &&
		!(pic.Image.Width == 720 && pic.Image.Height == 608 && m.cfg.Format.Height == 576) {
		mode = ModeScaleInterlaced
	}

	expr := m.cfg.FilterExpr
	if m.cfg.IsMXF && pic.Image.Width == 720 && pic.Image.Height == 608 {
		expr = appendFilter(expr, "CROP=720:576:0:32")
	}
	switch mode {
	case ModeDeinterlace:
		expr = appendFilter(expr, "YADIF=0:-1")
	case ModeDeinterlaceBob:
		expr = appendFilter(expr, "YADIF=1:-1")
	case ModeScaleInterlaced:
		expr = appendFilter(expr, fmt.Sprintf("SCALE=w=%d:h=%d:interl=1", m.cfg.Format.Width, m.cfg.Format.Height))
	}

	if mode == ModeInvalid {
		m.log.Debug("auto-transcode: failed to detect display mode")
		mode = ModeSimple
	}

	fpsNum, fpsDen := fpsToRational(m.cfg.InFPS)
	f, err := m.cfg.NewFilter(FilterSpec{
		Width:  pic.Image.Width,
		Height: pic.Image.Height,
		Format: pic.Image.Format,
		FPSNum: fpsNum,
		FPSDen: fpsDen,
		Expr:   expr,
	})
	if err != nil {
		return fmt.Errorf("build filter %q: %w", expr, err)
	}
	if m.filter != nil {
		m.filter.Close()
	}
	m.filter = f
	m.filterIn = pic.Image
	m.mode = mode
	m.log.Debug("display mode chosen",
		"mode", mode.String(),
		"source", fmt.Sprintf("%dx%d %s %.3f fps", pic.Image.Width, pic.Image.Height, srcMode, m.cfg.InFPS),
		"filter", expr)
	return nil
}

// Clear drops all buffered material and reopens fresh epochs.
func (m *Muxer) Clear() {
	m.videoStreams = [][]*media.Frame{nil}
	m.audioStreams = [][]int32{nil}
	m.frameBuffer = nil
	if m.filter != nil {
		m.filter.Close()
		m.filter = nil
	}
	m.mode = ModeInvalid
}

func appendFilter(expr, stage string) string {
	if expr == "" {
		return stage
	}
	return expr + "," + stage
}

// fpsToRational maps the common broadcast rates to exact rationals and
// falls back to a millihertz approximation.
func fpsToRational(fps float64) (num, den int) {
	switch {
	case nearFPS(fps, 23.976):
		return 24000, 1001
	case nearFPS(fps, 29.97):
		return 30000, 1001
	case nearFPS(fps, 59.94):
		return 60000, 1001
	case fps == float64(int(fps)):
		return int(fps), 1
	default:
		return int(fps * 1000), 1000
	}
}
