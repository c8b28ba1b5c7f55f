// Package mixer flattens the producer device's per-tick composite tree into
// one BGRA image and one interleaved stereo buffer at the channel cadence.
// It is the CPU rendition of the compositor contract: alpha, translation and
// sample-window transforms are honored; anything fancier belongs to a GPU
// implementation behind the same entry point.
package mixer

import (
	"log/slog"
	"math"

	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
)

// OutputChannels is the channel count of mixed audio.
const OutputChannels = 2

// Mixer renders composite frames. It is owned by the channel's tick goroutine
// and is not safe for concurrent use.
type Mixer struct {
	log     *slog.Logger
	ff      *media.FrameFactory
	format  format.Video
	cadence []int
	slot    int
}

// New creates a mixer rendering at the factory's channel format. If log is
// nil, slog.Default() is used.
func New(ff *media.FrameFactory, log *slog.Logger) *Mixer {
	if log == nil {
		log = slog.Default()
	}
	return &Mixer{
		log:     log.With("component", "mixer"),
		ff:      ff,
		format:  ff.Format(),
		cadence: ff.Format().Cadence,
	}
}

// Mix flattens composite into a single frame: children are drawn bottom
// first in composite order, and their audio is summed with saturation into
// one cadence slot of stereo samples.
func (m *Mixer) Mix(composite *media.Frame) *media.Frame {
	out := m.ff.NewFrame()
	samples := m.cadence[m.slot]
	m.slot = (m.slot + 1) % len(m.cadence)
	out.Audio = media.Silence(samples, OutputChannels)
	out.Channels = OutputChannels
	out.Discontinuity = composite.Discontinuity

	m.walk(out, composite, media.Identity())
	return out
}

func (m *Mixer) walk(out *media.Frame, f *media.Frame, parent media.Transform) {
	if f.IsEmpty() {
		return
	}
	if f.Discontinuity {
		out.Discontinuity = true
	}
	eff := f.Transform.Over(parent)
	if len(f.Children) > 0 {
		for _, c := range f.Children {
			m.walk(out, c, eff)
		}
		return
	}
	if !f.Image.Blank() && f.Image.Format == media.PixelFormatBGRA {
		m.blit(out.Image, f.Image, eff)
	}
	if len(f.Audio) > 0 {
		mixAudio(out.Audio, f.Audio, f.Channels, eff.Volume)
	}
}

// blit draws src into dst with translation, the sample window, and opacity.
func (m *Mixer) blit(dst, src media.Image, tr media.Transform) {
	if tr.Alpha <= 0 {
		return
	}
	offX := int(math.Round(tr.TranslateX * float64(dst.Width)))
	offY := int(math.Round(tr.TranslateY * float64(dst.Height)))

	// The sample window bounds the drawn region in destination space.
	winX0 := int(math.Round(tr.TexCoord.X0 * float64(dst.Width)))
	winX1 := int(math.Round(tr.TexCoord.X1 * float64(dst.Width)))
	winY0 := int(math.Round(tr.TexCoord.Y0 * float64(dst.Height)))
	winY1 := int(math.Round(tr.TexCoord.Y1 * float64(dst.Height)))

	alpha := uint32(math.Round(tr.Alpha * 255))
	opaque := alpha >= 255

	for sy := 0; sy < src.Height; sy++ {
		dy := sy + offY
		if dy < 0 || dy >= dst.Height || dy < winY0 || dy >= winY1 {
			continue
		}
		srcRow := src.Data[sy*src.Stride:]
		dstRow := dst.Data[dy*dst.Stride:]
		for sx := 0; sx < src.Width; sx++ {
			dx := sx + offX
			if dx < 0 || dx >= dst.Width || dx < winX0 || dx >= winX1 {
				continue
			}
			si := sx * 4
			di := dx * 4
			sa := uint32(srcRow[si+3]) * alpha / 255
			if sa == 0 {
				continue
			}
			if opaque && sa == 255 {
				copy(dstRow[di:di+4], srcRow[si:si+4])
				continue
			}
			for c := 0; c < 3; c++ {
				s := uint32(srcRow[si+c])
				d := uint32(dstRow[di+c])
				dstRow[di+c] = byte((s*sa + d*(255-sa)) / 255)
			}
			da := uint32(dstRow[di+3])
			dstRow[di+3] = byte(sa + da*(255-sa)/255)
		}
	}
}

// mixAudio sums src into dst with the given 8-bit gain, saturating at the
// int32 range. Mono sources are spread across both output channels; wider
// sources fold their first two channels in.
func mixAudio(dst, src []int32, srcChannels int, volume uint8) {
	if volume == media.VolumeMute || len(src) == 0 {
		return
	}
	if srcChannels <= 0 {
		srcChannels = OutputChannels
	}
	frames := len(src) / srcChannels
	outFrames := len(dst) / OutputChannels
	if frames > outFrames {
		frames = outFrames
	}
	vol := int64(volume)
	for i := 0; i < frames; i++ {
		for c := 0; c < OutputChannels; c++ {
			sc := c
			if sc >= srcChannels {
				sc = srcChannels - 1
			}
			s := int64(src[i*srcChannels+sc]) * vol / media.VolumeUnity
			dst[i*OutputChannels+c] = saturate(int64(dst[i*OutputChannels+c]) + s)
		}
	}
}

func saturate(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
