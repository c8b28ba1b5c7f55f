package ffmpeg

import (
	"encoding/binary"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
	"github.com/zsiec/lumen/internal/mux"
)

// videoDecoder wraps one video stream's codec context and hands decoded
// pictures to the muxer as native frames.
type videoDecoder struct {
	stream *astiav.Stream
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	fps    float64
}

func newVideoDecoder(fc *astiav.FormatContext, stream *astiav.Stream) (*videoDecoder, error) {
	codec := astiav.FindDecoder(stream.CodecParameters().CodecID())
	if codec == nil {
		return nil, fmt.Errorf("no decoder for %s", stream.CodecParameters().CodecID().Name())
	}
	cc := astiav.AllocCodecContext(codec)
	if err := stream.CodecParameters().ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, wrapErr("video codec parameters", err)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, wrapErr("open video decoder", err)
	}
	fr := fc.GuessFrameRate(stream, nil)
	fps := 25.0
	if fr.Den() != 0 && fr.Num() != 0 {
		fps = float64(fr.Num()) / float64(fr.Den())
	}
	return &videoDecoder{stream: stream, cc: cc, frame: astiav.AllocFrame(), fps: fps}, nil
}

// decode sends pkt (nil to drain) and yields every complete picture. The
// native frame is only valid until the next call; the muxer consumes it
// synchronously.
func (d *videoDecoder) decode(pkt *astiav.Packet, yield func(mux.Picture) error) error {
	if err := d.cc.SendPacket(pkt); err != nil {
		if _, eof := drainable(err); eof && pkt == nil {
			return nil
		}
		return wrapErr("send video packet", err)
	}
	for {
		d.frame.Unref()
		err := d.cc.ReceiveFrame(d.frame)
		if wouldBlock, eof := drainable(err); wouldBlock || eof {
			return nil
		} else if err != nil {
			return wrapErr("receive video frame", err)
		}
		pic := mux.Picture{
			Image: media.Image{
				Format: fromAstiavPixelFormat(d.frame.PixelFormat()),
				Width:  d.frame.Width(),
				Height: d.frame.Height(),
			},
			Interlaced:    d.frame.InterlacedFrame(),
			TopFieldFirst: d.frame.TopFieldFirst(),
			Timecode:      -1,
			Native:        d.frame,
		}
		if err := yield(pic); err != nil {
			return err
		}
	}
}

func (d *videoDecoder) flushBuffers() { d.cc.FlushBuffers() }

func (d *videoDecoder) close() {
	if d.frame != nil {
		d.frame.Free()
	}
	if d.cc != nil {
		d.cc.Free()
	}
}

// audioDecoder decodes one audio stream and resamples everything to the
// channel's clock: 48 kHz interleaved signed 32-bit stereo.
type audioDecoder struct {
	stream *astiav.Stream
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	swr    *astiav.SoftwareResampleContext
	dst    *astiav.Frame
}

func newAudioDecoder(stream *astiav.Stream) (*audioDecoder, error) {
	codec := astiav.FindDecoder(stream.CodecParameters().CodecID())
	if codec == nil {
		return nil, fmt.Errorf("no decoder for %s", stream.CodecParameters().CodecID().Name())
	}
	cc := astiav.AllocCodecContext(codec)
	if err := stream.CodecParameters().ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, wrapErr("audio codec parameters", err)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, wrapErr("open audio decoder", err)
	}
	return &audioDecoder{
		stream: stream,
		cc:     cc,
		frame:  astiav.AllocFrame(),
		swr:    astiav.AllocSoftwareResampleContext(),
		dst:    astiav.AllocFrame(),
	}, nil
}

// decode sends pkt (nil to drain) and yields resampled interleaved S32
// sample runs.
func (d *audioDecoder) decode(pkt *astiav.Packet, yield func([]int32) error) error {
	if err := d.cc.SendPacket(pkt); err != nil {
		if _, eof := drainable(err); eof && pkt == nil {
			return nil
		}
		return wrapErr("send audio packet", err)
	}
	for {
		d.frame.Unref()
		err := d.cc.ReceiveFrame(d.frame)
		if wouldBlock, eof := drainable(err); wouldBlock || eof {
			return nil
		} else if err != nil {
			return wrapErr("receive audio frame", err)
		}

		d.dst.Unref()
		d.dst.SetSampleRate(format.SampleRate)
		d.dst.SetChannelLayout(astiav.ChannelLayoutStereo)
		d.dst.SetSampleFormat(astiav.SampleFormatS32)
		if err := d.swr.ConvertFrame(d.frame, d.dst); err != nil {
			return wrapErr("resample audio", err)
		}
		samples, err := samplesFromFrame(d.dst)
		if err != nil {
			return err
		}
		if len(samples) > 0 {
			if err := yield(samples); err != nil {
				return err
			}
		}
	}
}

func (d *audioDecoder) flushBuffers() { d.cc.FlushBuffers() }

func (d *audioDecoder) close() {
	if d.frame != nil {
		d.frame.Free()
	}
	if d.dst != nil {
		d.dst.Free()
	}
	if d.swr != nil {
		d.swr.Free()
	}
	if d.cc != nil {
		d.cc.Free()
	}
}

// samplesFromFrame copies an interleaved S32 frame into a sample slice.
func samplesFromFrame(f *astiav.Frame) ([]int32, error) {
	data, err := f.Data().Bytes(0)
	if err != nil {
		return nil, wrapErr("audio frame bytes", err)
	}
	n := f.NbSamples() * 2
	if len(data) < n*4 {
		n = len(data) / 4
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
