package mixer

import (
	"math"
	"testing"

	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
)

func solid(ff *media.FrameFactory, b, g, r, a byte) *media.Frame {
	f := ff.NewFrame()
	for i := 0; i+3 < len(f.Image.Data); i += 4 {
		f.Image.Data[i] = b
		f.Image.Data[i+1] = g
		f.Image.Data[i+2] = r
		f.Image.Data[i+3] = a
	}
	return f
}

func smallFactory() *media.FrameFactory {
	return media.NewFrameFactory(format.Video{
		Name: "tiny", Width: 4, Height: 4, FieldMode: format.Progressive,
		TimeScale: 25, Duration: 1, Cadence: []int{8},
	})
}

func TestMixOpaqueLayerCovers(t *testing.T) {
	t.Parallel()

	ff := smallFactory()
	m := New(ff, nil)

	red := solid(ff, 0, 0, 255, 255)
	out := m.Mix(media.Composite([]*media.Frame{red}))

	if out.Image.Data[2] != 255 || out.Image.Data[0] != 0 {
		t.Errorf("opaque layer: got BGRA %v", out.Image.Data[:4])
	}
}

func TestMixAlphaBlendsLayers(t *testing.T) {
	t.Parallel()

	ff := smallFactory()
	m := New(ff, nil)

	under := solid(ff, 255, 0, 0, 255) // blue
	over := solid(ff, 0, 0, 255, 255)  // red
	tr := media.Identity()
	tr.Alpha = 0.5

	out := m.Mix(media.Composite([]*media.Frame{under, media.WithTransform(over, tr)}))

	// Half red over blue: both components near 127.
	b, r := out.Image.Data[0], out.Image.Data[2]
	if math.Abs(float64(b)-127) > 2 || math.Abs(float64(r)-127) > 2 {
		t.Errorf("blend: got b=%d r=%d, want ~127 each", b, r)
	}
}

func TestMixCompositeOrderBottomFirst(t *testing.T) {
	t.Parallel()

	ff := smallFactory()
	m := New(ff, nil)

	bottom := solid(ff, 1, 1, 1, 255)
	top := solid(ff, 9, 9, 9, 255)
	out := m.Mix(media.Composite([]*media.Frame{bottom, top}))

	if out.Image.Data[0] != 9 {
		t.Errorf("top layer should win: got %d", out.Image.Data[0])
	}
}

func TestMixAudioSumsWithVolume(t *testing.T) {
	t.Parallel()

	ff := smallFactory()
	m := New(ff, nil)

	f := &media.Frame{
		Transform: media.Identity(),
		Audio:     []int32{1000, 1000, 1000, 1000},
		Channels:  2,
	}
	tr := media.Identity()
	tr.Volume = 128

	out := m.Mix(media.Composite([]*media.Frame{media.WithTransform(f, tr)}))
	want := int32(1000 * 128 / 255)
	if out.Audio[0] != want {
		t.Errorf("audio gain: got %d, want %d", out.Audio[0], want)
	}
}

func TestMixAudioSaturates(t *testing.T) {
	t.Parallel()

	ff := smallFactory()
	m := New(ff, nil)

	loud := func() *media.Frame {
		return &media.Frame{
			Transform: media.Identity(),
			Audio:     []int32{math.MaxInt32, math.MaxInt32},
			Channels:  2,
		}
	}
	out := m.Mix(media.Composite([]*media.Frame{loud(), loud()}))
	if out.Audio[0] != math.MaxInt32 {
		t.Errorf("saturation: got %d, want MaxInt32", out.Audio[0])
	}
}

func TestMixCadenceSlotSizes(t *testing.T) {
	t.Parallel()

	ff := media.NewFrameFactory(format.NTSC)
	m := New(ff, nil)

	var got []int
	for i := 0; i < 5; i++ {
		out := m.Mix(media.Composite(nil))
		got = append(got, len(out.Audio)/OutputChannels)
	}
	sum := 0
	for _, n := range got {
		sum += n
	}
	if sum != 8008 {
		t.Errorf("five NTSC ticks: got %v summing %d, want 8008", got, sum)
	}
}

func TestMixPropagatesDiscontinuity(t *testing.T) {
	t.Parallel()

	ff := smallFactory()
	m := New(ff, nil)

	child := media.Composite(nil)
	child.Discontinuity = true
	out := m.Mix(media.Composite([]*media.Frame{child}))
	if !out.Discontinuity {
		t.Error("discontinuity flag lost in mix")
	}
}
