package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/lumen/internal/media"
	"github.com/zsiec/lumen/internal/mux"
)

// ErrInputChanged is returned by Push when a picture no longer matches the
// format the graph was built for; the caller must rebuild the filter.
var ErrInputChanged = errors.New("filter input format changed")

// filterGraph adapts a libavfilter graph to the muxer's Filter interface.
// An empty expression takes the fast path: no graph, frames only converted
// to BGRA at the boundary when they are not BGRA already.
type filterGraph struct {
	spec mux.FilterSpec
	fast bool

	graph *astiav.FilterGraph
	src   *astiav.FilterContext
	sink  *astiav.FilterContext

	sws      *astiav.SoftwareScaleContext
	swsFrame *astiav.Frame
	pull     *astiav.Frame

	queue []mux.Picture // fast-path output
}

// Factory returns the muxer filter factory backed by libavfilter.
func Factory() mux.FilterFactory {
	return NewFilter
}

// NewFilter builds a filter for the given spec.
func NewFilter(spec mux.FilterSpec) (mux.Filter, error) {
	f := &filterGraph{
		spec: spec,
		fast: spec.Expr == "",
		pull: astiav.AllocFrame(),
	}
	if f.fast {
		return f, nil
	}
	if err := f.buildGraph(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (f *filterGraph) buildGraph() error {
	f.graph = astiav.AllocFilterGraph()

	buffersrc := astiav.FindFilterByName("buffer")
	buffersink := astiav.FindFilterByName("buffersink")
	if buffersrc == nil || buffersink == nil {
		return errors.New("buffer/buffersink filters unavailable")
	}

	var err error
	f.src, err = f.graph.NewFilterContext(buffersrc, "in", astiav.FilterArgs{
		"pix_fmt":      strconv.Itoa(int(toAstiavPixelFormat(f.spec.Format))),
		"pixel_aspect": "1/1",
		"time_base":    fmt.Sprintf("%d/%d", f.spec.FPSDen, f.spec.FPSNum),
		"frame_rate":   fmt.Sprintf("%d/%d", f.spec.FPSNum, f.spec.FPSDen),
		"video_size":   fmt.Sprintf("%dx%d", f.spec.Width, f.spec.Height),
	})
	if err != nil {
		return wrapErr("create buffersrc", err)
	}

	f.sink, err = f.graph.NewFilterContext(buffersink, "out", nil)
	if err != nil {
		return wrapErr("create buffersink", err)
	}

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(f.sink)
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(f.src)
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	// Compositing downstream wants packed BGRA, so the graph always ends in
	// a format conversion.
	expr := strings.ToLower(f.spec.Expr) + ",format=bgra"
	if err := f.graph.Parse(expr, inputs, outputs); err != nil {
		return wrapErr(fmt.Sprintf("parse %q", expr), err)
	}
	if err := f.graph.Configure(); err != nil {
		return wrapErr("configure graph", err)
	}
	return nil
}

// Push feeds one decoded picture into the graph (or the fast-path queue).
func (f *filterGraph) Push(pic mux.Picture) error {
	if pic.Image.Width != f.spec.Width || pic.Image.Height != f.spec.Height ||
		pic.Image.Format != f.spec.Format {
		return ErrInputChanged
	}
	native, _ := pic.Native.(*astiav.Frame)

	if f.fast {
		out, err := f.asBGRA(pic, native)
		if err != nil {
			return err
		}
		f.queue = append(f.queue, out)
		return nil
	}

	if native == nil {
		return errors.New("graph path needs a native frame")
	}
	if err := f.src.BuffersrcAddFrame(native, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return wrapErr("buffersrc add frame", err)
	}
	return nil
}

// Poll pulls the next converted picture. ok=false with a nil error means the
// graph would block; a drained graph reports io.EOF.
func (f *filterGraph) Poll() (mux.Picture, bool, error) {
	if f.fast {
		if len(f.queue) == 0 {
			return mux.Picture{}, false, nil
		}
		pic := f.queue[0]
		f.queue = f.queue[1:]
		return pic, true, nil
	}

	err := f.sink.BuffersinkGetFrame(f.pull, astiav.NewBuffersinkFlags())
	if wouldBlock, eof := drainable(err); wouldBlock {
		return mux.Picture{}, false, nil
	} else if eof {
		return mux.Picture{}, false, io.EOF
	} else if err != nil {
		return mux.Picture{}, false, wrapErr("buffersink get frame", err)
	}
	defer f.pull.Unref()

	img, err := imageFromFrame(f.pull)
	if err != nil {
		return mux.Picture{}, false, err
	}
	return mux.Picture{
		Image:         img,
		Interlaced:    f.pull.InterlacedFrame(),
		TopFieldFirst: f.pull.TopFieldFirst(),
		Timecode:      -1,
	}, true, nil
}

// asBGRA realizes a picture's pixels as packed BGRA without a graph.
func (f *filterGraph) asBGRA(pic mux.Picture, native *astiav.Frame) (mux.Picture, error) {
	if native == nil {
		// Already carried as bytes; pass through untouched.
		return pic, nil
	}
	if native.PixelFormat() == astiav.PixelFormatBgra {
		img, err := imageFromFrame(native)
		if err != nil {
			return mux.Picture{}, err
		}
		out := pic
		out.Image = img
		out.Native = nil
		return out, nil
	}

	if f.sws == nil {
		var err error
		f.sws, err = astiav.CreateSoftwareScaleContext(
			native.Width(), native.Height(), native.PixelFormat(),
			native.Width(), native.Height(), astiav.PixelFormatBgra,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return mux.Picture{}, wrapErr("create scale context", err)
		}
		f.swsFrame = astiav.AllocFrame()
	}
	f.swsFrame.Unref()
	if err := f.sws.ScaleFrame(native, f.swsFrame); err != nil {
		return mux.Picture{}, wrapErr("scale frame", err)
	}
	img, err := imageFromFrame(f.swsFrame)
	if err != nil {
		return mux.Picture{}, err
	}
	out := pic
	out.Image = img
	out.Native = nil
	return out, nil
}

func (f *filterGraph) Close() error {
	if f.graph != nil {
		f.graph.Free()
		f.graph = nil
	}
	if f.sws != nil {
		f.sws.Free()
		f.sws = nil
	}
	if f.swsFrame != nil {
		f.swsFrame.Free()
		f.swsFrame = nil
	}
	if f.pull != nil {
		f.pull.Free()
		f.pull = nil
	}
	f.queue = nil
	return nil
}

// imageFromFrame copies a packed BGRA frame's pixels into an Image.
func imageFromFrame(frame *astiav.Frame) (media.Image, error) {
	data, err := frame.Data().Bytes(1)
	if err != nil {
		return media.Image{}, wrapErr("frame bytes", err)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return media.Image{
		Format: fromAstiavPixelFormat(frame.PixelFormat()),
		Width:  frame.Width(),
		Height: frame.Height(),
		Stride: frame.Width() * 4,
		Data:   buf,
	}, nil
}
