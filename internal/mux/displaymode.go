package mux

import (
	"fmt"
	"math"

	"github.com/zsiec/lumen/internal/format"
)

// Mode is the muxer's choice of how source frames map to output frames
// given the field/rate relationship between source and channel.
type Mode int

const (
	ModeSimple          Mode = iota // one source frame, one output frame
	ModeDuplicate                   // one source frame emitted twice
	ModeHalf                        // two source frames, first one emitted
	ModeInterlace                   // two progressive frames woven into one interlaced
	ModeDeinterlace                 // interlaced source, progressive out, same rate
	ModeDeinterlaceBob              // interlaced source, progressive out, double rate
	ModeScaleInterlaced             // interlaced source scaled to a differing raster
	ModeInvalid
)

func (m Mode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeDuplicate:
		return "duplicate"
	case ModeHalf:
		return "half"
	case ModeInterlace:
		return "interlace"
	case ModeDeinterlace:
		return "deinterlace"
	case ModeDeinterlaceBob:
		return "deinterlace-bob"
	case ModeScaleInterlaced:
		return "scale-interlaced"
	case ModeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// framesPerOutput returns how many source video frames one emit consumes.
func (m Mode) framesPerOutput() int {
	switch m {
	case ModeInterlace, ModeScaleInterlaced, ModeHalf:
		return 2
	default:
		return 1
	}
}

// cadenceSlotsPerInput returns how many audio cadence slots must be buffered
// per source frame before the mode can emit.
func (m Mode) cadenceSlotsPerInput() int {
	if m == ModeDuplicate {
		return 2
	}
	return 1
}

func nearFPS(a, b float64) bool {
	return math.Abs(a-b) < 0.05
}

// classify picks the display mode for a source field mode and frame rate
// against the channel format.
func classify(src format.FieldMode, srcFPS float64, channel format.Video) Mode {
	dstFPS := channel.FPS()
	srcProgressive := src == format.Progressive
	dstProgressive := channel.FieldMode == format.Progressive

	switch {
	case srcProgressive && dstProgressive:
		switch {
		case nearFPS(srcFPS, dstFPS):
			return ModeSimple
		case nearFPS(srcFPS*2, dstFPS):
			return ModeDuplicate
		case nearFPS(srcFPS, dstFPS*2):
			return ModeHalf
		}
	case srcProgressive && !dstProgressive:
		switch {
		case nearFPS(srcFPS, dstFPS*2):
			return ModeInterlace
		case nearFPS(srcFPS, dstFPS):
			return ModeSimple
		}
	case !srcProgressive && dstProgressive:
		switch {
		case nearFPS(srcFPS, dstFPS):
			return ModeDeinterlace
		case nearFPS(srcFPS*2, dstFPS):
			return ModeDeinterlaceBob
		}
	default:
		// Both interlaced: pass fields through; a raster mismatch is
		// promoted to scale-interlaced by the muxer afterwards.
		return ModeSimple
	}
	return ModeInvalid
}

// sourceFieldMode derives the source's effective field mode, fixing the
// common SD metadata lie: a "progressive" source below 720 lines and below
// 50 fps is really upper-field-first interlaced.
func sourceFieldMode(interlaced, topFieldFirst bool, height int, fps float64) format.FieldMode {
	if interlaced {
		if topFieldFirst {
			return format.Upper
		}
		return format.Lower
	}
	if height < 720 && fps < 50 {
		return format.Upper
	}
	return format.Progressive
}
