// Package media defines the frame types that flow through the Lumen
// compositing pipeline, from producers through the mixer to consumers.
//
// Frames are value-like: once produced, image and audio buffers are read-only.
// Transforms compose by wrapping a frame in a parent frame carrying the
// transform, so a producer downstream never mutates what it received.
package media

// Audio volume is expressed as an 8-bit gain where 255 is unity. Mixing and
// transitions split this range between two sources (dest + source == 255).
const (
	VolumeUnity = 255
	VolumeMute  = 0
)

// PixelFormat identifies the layout of an image plane set. The compositor
// works in BGRA; other formats appear only between decoders and the muxer's
// filter stage.
type PixelFormat string

const (
	PixelFormatBGRA    PixelFormat = "bgra"
	PixelFormatYUV420P PixelFormat = "yuv420p"
	PixelFormatYUV422P PixelFormat = "yuv422p"
	PixelFormatGray8   PixelFormat = "gray8"
	PixelFormatUnknown PixelFormat = ""
)

// BytesPerPixel returns the packed pixel size for single-plane formats and 0
// for planar formats, where per-plane strides apply instead.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatBGRA:
		return 4
	case PixelFormatGray8:
		return 1
	default:
		return 0
	}
}

// Image is a single picture: one packed plane (BGRA, Gray8) or the first plane
// of a planar set. Data is read-only once the image is inside a Frame.
type Image struct {
	Format PixelFormat
	Width  int
	Height int
	Stride int
	Data   []byte
}

// Blank reports whether the image carries no pixels.
func (img Image) Blank() bool {
	return len(img.Data) == 0 || img.Width == 0 || img.Height == 0
}

// Rect is a normalized texture-coordinate window, (0,0)-(1,1) meaning the
// whole image. Transitions narrow it for wipes.
type Rect struct {
	X0, Y0 float64
	X1, Y1 float64
}

// UnitRect is the identity sample window.
func UnitRect() Rect {
	return Rect{X0: 0, Y0: 0, X1: 1, Y1: 1}
}

// Transform is the affine state applied to a frame when composited: opacity,
// 2D translation in normalized screen units, a sample window, and audio gain.
type Transform struct {
	Alpha      float64
	TranslateX float64
	TranslateY float64
	TexCoord   Rect
	Volume     uint8
}

// Identity returns the no-op transform.
func Identity() Transform {
	return Transform{Alpha: 1, TexCoord: UnitRect(), Volume: VolumeUnity}
}

// Over composes t applied inside parent: opacities and gains multiply,
// translations add, and the sample window narrows to the inner one.
func (t Transform) Over(parent Transform) Transform {
	out := t
	out.Alpha = t.Alpha * parent.Alpha
	out.TranslateX = t.TranslateX + parent.TranslateX
	out.TranslateY = t.TranslateY + parent.TranslateY
	out.Volume = uint8(int(t.Volume) * int(parent.Volume) / VolumeUnity)
	if parent.TexCoord != UnitRect() && t.TexCoord == UnitRect() {
		out.TexCoord = parent.TexCoord
	}
	return out
}

// Frame is the unit of data exchanged between producers, the mixer and
// consumers. A frame either carries its own image+audio or is a composite
// holding child frames; the mixer flattens the tree in child order.
type Frame struct {
	Image     Image
	Audio     []int32 // interleaved signed 32-bit samples
	Channels  int     // audio channel count for Audio
	Transform Transform

	// Children, when non-empty, make this a composite frame. The frame's own
	// Transform applies to every child.
	Children []*Frame

	// Discontinuity marks the first frame after an upstream producer handoff
	// broke PTS continuity. Consumers may ignore it; PTS stays monotonic.
	Discontinuity bool

	empty bool
}

// NewEmpty returns the distinguished empty frame: composited as fully
// transparent, contributing silence.
func NewEmpty() *Frame {
	return &Frame{Transform: Identity(), empty: true}
}

// IsEmpty reports whether f is an empty frame (or nil).
func (f *Frame) IsEmpty() bool {
	return f == nil || f.empty
}

// WithTransform wraps f in a composite applying t. The original frame and its
// buffers are shared, never copied.
func WithTransform(f *Frame, t Transform) *Frame {
	return &Frame{Transform: t, Children: []*Frame{f}}
}

// Composite groups frames into one composite with an identity transform.
// Child order is compositing order, bottom first.
func Composite(children []*Frame) *Frame {
	return &Frame{Transform: Identity(), Children: children}
}
