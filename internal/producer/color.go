package producer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zsiec/lumen/internal/media"
)

// Color is an endless producer of a solid-color frame, used for test
// patterns and as transition filler. The frame is rendered once at
// Initialize and shared by every Receive.
type Color struct {
	Base
	name  string
	argb  uint32
	frame *media.Frame
}

// NewColor parses a "#AARRGGBB" or "#RRGGBB" color string.
func NewColor(s string) (*Color, error) {
	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 6:
		hex = "FF" + hex
	case 8:
	default:
		return nil, fmt.Errorf("color %q: want #RRGGBB or #AARRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("color %q: %w", s, err)
	}
	return &Color{name: s, argb: uint32(v)}, nil
}

// Initialize renders the color into a write-frame of the channel raster.
func (c *Color) Initialize(ff *media.FrameFactory) error {
	f := ff.NewFrame()
	a := byte(c.argb >> 24)
	r := byte(c.argb >> 16)
	g := byte(c.argb >> 8)
	b := byte(c.argb)
	for i := 0; i+3 < len(f.Image.Data); i += 4 {
		f.Image.Data[i] = b
		f.Image.Data[i+1] = g
		f.Image.Data[i+2] = r
		f.Image.Data[i+3] = a
	}
	c.frame = f
	return nil
}

// Receive returns the shared color frame; the stream never ends.
func (c *Color) Receive() (*media.Frame, error) {
	if c.frame == nil {
		return media.NewEmpty(), nil
	}
	return c.frame, nil
}

func (c *Color) String() string { return "color[" + c.name + "]" }
