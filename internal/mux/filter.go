package mux

import "github.com/zsiec/lumen/internal/media"

// Picture is one decoded source picture together with the source
// characteristics the muxer classifies on. Timecode carries the recorder
// frame number when the source provides one, -1 otherwise.
type Picture struct {
	Image         media.Image
	Interlaced    bool
	TopFieldFirst bool
	Timecode      int

	// Native optionally carries the backend's decoded frame handle; a
	// conversion Filter consumes it instead of Image.Data. Post-filter
	// pictures always carry pixel data in Image.
	Native any
}

// FilterSpec describes the conversion stage the muxer needs in front of its
// video queue: the source geometry plus the textual filter expression the
// display-mode decision assembled (crop, yadif, scale, ...).
type FilterSpec struct {
	Width  int
	Height int
	Format media.PixelFormat
	FPSNum int
	FPSDen int
	Expr   string
}

// Filter is the conversion pipeline the muxer pushes decoded pictures
// through. Poll reports ok=false when the graph has no output yet
// (would-block); a drained graph returns io.EOF.
type Filter interface {
	Push(Picture) error
	Poll() (pic Picture, ok bool, err error)
	Close() error
}

// FilterFactory builds a Filter for a spec. The muxer calls it once per
// display-mode decision and again whenever the source format changes.
type FilterFactory func(FilterSpec) (Filter, error)

// passthrough is the default filter when no conversion backend is wired: a
// plain queue, equivalent to the empty-expression fast path.
type passthrough struct {
	frames []Picture
}

// Passthrough returns a FilterFactory that never converts.
func Passthrough() FilterFactory {
	return func(FilterSpec) (Filter, error) {
		return &passthrough{}, nil
	}
}

func (p *passthrough) Push(pic Picture) error {
	p.frames = append(p.frames, pic)
	return nil
}

func (p *passthrough) Poll() (Picture, bool, error) {
	if len(p.frames) == 0 {
		return Picture{}, false, nil
	}
	pic := p.frames[0]
	p.frames = p.frames[1:]
	return pic, true, nil
}

func (p *passthrough) Close() error {
	p.frames = nil
	return nil
}
