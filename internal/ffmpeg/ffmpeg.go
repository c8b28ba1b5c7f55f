// Package ffmpeg binds the compositing core to libav via go-astiav: the
// filter-graph adaptor used by the frame muxer, the encoder consumer that
// turns composite frames into container files or network streams, and the
// file producer that decodes clips into the muxer.
package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/lumen/internal/media"
)

func toAstiavPixelFormat(pf media.PixelFormat) astiav.PixelFormat {
	switch pf {
	case media.PixelFormatBGRA:
		return astiav.PixelFormatBgra
	case media.PixelFormatYUV420P:
		return astiav.PixelFormatYuv420P
	case media.PixelFormatYUV422P:
		return astiav.PixelFormatYuv422P
	case media.PixelFormatGray8:
		return astiav.PixelFormatGray8
	default:
		return astiav.PixelFormatNone
	}
}

func fromAstiavPixelFormat(pf astiav.PixelFormat) media.PixelFormat {
	switch pf {
	case astiav.PixelFormatBgra:
		return media.PixelFormatBGRA
	case astiav.PixelFormatYuv420P:
		return media.PixelFormatYUV420P
	case astiav.PixelFormatYuv422P:
		return media.PixelFormatYUV422P
	case astiav.PixelFormatGray8:
		return media.PixelFormatGray8
	default:
		return media.PixelFormatUnknown
	}
}

// drainable reports whether err is the encoder/filter way of saying "feed me
// more" or "stream over" rather than a real failure.
func drainable(err error) (wouldBlock, eof bool) {
	return errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof)
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
