// Package format declares the fixed video formats a channel can run at,
// including field order and the per-frame audio sample cadence that keeps
// fractional frame rates aligned with the audio clock.
package format

import (
	"fmt"
	"strings"
	"time"
)

// FieldMode describes how a picture's lines are sampled in time.
type FieldMode int

const (
	Progressive FieldMode = iota
	Upper                 // upper (top) field first
	Lower                 // lower (bottom) field first
)

func (m FieldMode) String() string {
	switch m {
	case Progressive:
		return "progressive"
	case Upper:
		return "upper"
	case Lower:
		return "lower"
	default:
		return fmt.Sprintf("field-mode(%d)", int(m))
	}
}

// SampleRate is the audio clock shared by all channel formats.
const SampleRate = 48000

// Video is a channel's fixed output format. FPS is TimeScale/Duration frames
// per second; Cadence lists the audio samples consumed per frame over one
// cadence cycle (a single entry for integer rates).
type Video struct {
	Name      string
	Width     int
	Height    int
	FieldMode FieldMode
	TimeScale int
	Duration  int
	Cadence   []int
}

// FPS returns the frame rate.
func (v Video) FPS() float64 {
	return float64(v.TimeScale) / float64(v.Duration)
}

// FrameInterval returns the wall-clock duration of one frame.
func (v Video) FrameInterval() time.Duration {
	return time.Duration(int64(time.Second) * int64(v.Duration) / int64(v.TimeScale))
}

func (v Video) String() string {
	return v.Name
}

// Formats a channel can be configured with. NTSC carries the 487-line
// broadcast raster trimmed to 486; the 1001-denominator modes carry rotated
// multi-entry cadences so the audio clock never drifts.
var (
	PAL = Video{Name: "PAL", Width: 720, Height: 576, FieldMode: Upper,
		TimeScale: 25, Duration: 1, Cadence: []int{1920}}
	NTSC = Video{Name: "NTSC", Width: 720, Height: 486, FieldMode: Lower,
		TimeScale: 30000, Duration: 1001, Cadence: []int{1602, 1601, 1602, 1601, 1602}}
	HD720p50 = Video{Name: "720p5000", Width: 1280, Height: 720, FieldMode: Progressive,
		TimeScale: 50, Duration: 1, Cadence: []int{960}}
	HD720p5994 = Video{Name: "720p5994", Width: 1280, Height: 720, FieldMode: Progressive,
		TimeScale: 60000, Duration: 1001, Cadence: []int{801, 800, 801, 801, 801}}
	HD1080i50 = Video{Name: "1080i5000", Width: 1920, Height: 1080, FieldMode: Upper,
		TimeScale: 25, Duration: 1, Cadence: []int{1920}}
	HD1080i5994 = Video{Name: "1080i5994", Width: 1920, Height: 1080, FieldMode: Upper,
		TimeScale: 30000, Duration: 1001, Cadence: []int{1602, 1601, 1602, 1601, 1602}}
	HD1080p25 = Video{Name: "1080p2500", Width: 1920, Height: 1080, FieldMode: Progressive,
		TimeScale: 25, Duration: 1, Cadence: []int{1920}}
	HD1080p2997 = Video{Name: "1080p2997", Width: 1920, Height: 1080, FieldMode: Progressive,
		TimeScale: 30000, Duration: 1001, Cadence: []int{1602, 1601, 1602, 1601, 1602}}
	HD1080p50 = Video{Name: "1080p5000", Width: 1920, Height: 1080, FieldMode: Progressive,
		TimeScale: 50, Duration: 1, Cadence: []int{960}}
	HD1080p5994 = Video{Name: "1080p5994", Width: 1920, Height: 1080, FieldMode: Progressive,
		TimeScale: 60000, Duration: 1001, Cadence: []int{801, 800, 801, 801, 801}}
)

var all = []Video{
	PAL, NTSC,
	HD720p50, HD720p5994,
	HD1080i50, HD1080i5994,
	HD1080p25, HD1080p2997, HD1080p50, HD1080p5994,
}

// Lookup resolves a format by name, case-insensitively.
func Lookup(name string) (Video, bool) {
	for _, v := range all {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Video{}, false
}
