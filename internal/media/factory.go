package media

import (
	"sync"

	"github.com/zsiec/lumen/internal/format"
)

// FrameFactory allocates blank write-frames of a channel's format. Image
// buffers are taken from a sync.Pool, but frames never put them back: a frame
// keeps its buffer until the last holder drops the frame, at which point the
// garbage collector reclaims it.
type FrameFactory struct {
	format format.Video
	pool   sync.Pool
}

// NewFrameFactory creates a factory bound to the given channel format.
func NewFrameFactory(f format.Video) *FrameFactory {
	size := f.Width * f.Height * 4
	return &FrameFactory{
		format: f,
		pool: sync.Pool{New: func() any {
			return make([]byte, size)
		}},
	}
}

// Format returns the channel format this factory allocates for.
func (ff *FrameFactory) Format() format.Video {
	return ff.format
}

// NewFrame returns a zeroed BGRA write-frame of the channel raster.
func (ff *FrameFactory) NewFrame() *Frame {
	buf := ff.pool.Get().([]byte)
	clear(buf)
	return &Frame{
		Image: Image{
			Format: PixelFormatBGRA,
			Width:  ff.format.Width,
			Height: ff.format.Height,
			Stride: ff.format.Width * 4,
			Data:   buf,
		},
		Transform: Identity(),
	}
}

// WrapImage builds a frame around an already-decoded picture without copying.
func (ff *FrameFactory) WrapImage(img Image) *Frame {
	return &Frame{Image: img, Transform: Identity()}
}

// Silence returns one cadence slot's worth of interleaved zero samples for
// the given slot size and channel count.
func Silence(samples, channels int) []int32 {
	return make([]int32, samples*channels)
}
