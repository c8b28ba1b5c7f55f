package ffmpeg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/lumen/internal/diag"
	"github.com/zsiec/lumen/internal/executor"
	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
)

// encodeQueueCapacity bounds each encoder's pending-frame queue; a full
// queue drops, it never stalls the tick thread.
const encodeQueueCapacity = 8

// encoder drives one container: a video stream, an optional audio stream,
// pixel-format scaling and audio resampling, all running on a dedicated
// single-goroutine executor.
type encoder struct {
	log     *slog.Logger
	cfg     ConsumerConfig
	channel format.Video
	keyOnly bool
	graph   *diag.Graph
	exec    *executor.Executor

	fc      *astiav.FormatContext
	ioCtx   *astiav.IOContext
	ownsPb  bool
	videoSt *astiav.Stream
	audioSt *astiav.Stream
	videoCC *astiav.CodecContext
	audioCC *astiav.CodecContext

	sws      *astiav.SoftwareScaleContext
	srcFrame *astiav.Frame
	encFrame *astiav.Frame

	swr        *astiav.SoftwareResampleContext
	audioSrc   *astiav.Frame
	audioDst   *astiav.Frame
	audioAccum []int32 // channel-interleaved S32 awaiting one encoder frame
	planar     bool

	pkt *astiav.Packet

	frameNumber  int64
	sampleNumber int64
	keyBuf       []byte
}

// newEncoder opens the container and its streams. pb, when non-nil, replaces
// the file IO (network consumers); forceFormat overrides the container guess.
// A construction failure removes any partial output file.
func newEncoder(cfg ConsumerConfig, channel format.Video, keyOnly bool, forceFormat string, pb *astiav.IOContext, log *slog.Logger) (e *encoder, err error) {
	if log == nil {
		log = slog.Default()
	}
	e = &encoder{
		log:     log.With("component", "ffmpeg-consumer", "filename", cfg.Filename),
		cfg:     cfg,
		channel: channel,
		keyOnly: keyOnly,
		graph:   diag.Register("ffmpeg-consumer[" + cfg.Filename + "]"),
		exec:    executor.New("ffmpeg-consumer", encodeQueueCapacity),
		ioCtx:   pb,
		pkt:     astiav.AllocPacket(),
	}

	defer func() {
		if err != nil {
			e.exec.Stop()
			e.cleanup()
			if pb == nil {
				os.Remove(cfg.Filename)
			}
		}
	}()

	formatName := forceFormat
	if formatName == "" && cfg.IsMXF() {
		formatName = "mxf_d10"
	}
	if e.fc, err = astiav.AllocOutputFormatContext(nil, formatName, cfg.Filename); err != nil {
		return nil, wrapErr("alloc output context", err)
	}

	if err = e.addVideoStream(); err != nil {
		return nil, err
	}
	if !keyOnly {
		if err = e.addAudioStream(); err != nil {
			return nil, err
		}
	}

	if pb != nil {
		e.fc.SetPb(pb)
	} else if !e.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		if e.ioCtx, err = astiav.OpenIOContext(cfg.Filename, astiav.NewIOContextFlags(astiav.IOContextFlagWrite)); err != nil {
			return nil, wrapErr("open output", err)
		}
		e.ownsPb = true
		e.fc.SetPb(e.ioCtx)
	}

	if err = e.fc.WriteHeader(e.containerOptions()); err != nil {
		return nil, wrapErr("write header", err)
	}

	e.log.Info("initialized", "container", formatName, "keyOnly", keyOnly)
	return e, nil
}

func (e *encoder) containerOptions() *astiav.Dictionary {
	opts := parseOptions(e.cfg.Options)
	if len(opts) == 0 {
		return nil
	}
	d := astiav.NewDictionary()
	for k, v := range opts {
		d.Set(k, v, astiav.NewDictionaryFlags())
	}
	return d
}

func (e *encoder) addVideoStream() error {
	name := e.cfg.VCodec
	if name == "" {
		if e.cfg.IsMXF() {
			name = "mpeg2video"
		} else {
			name = DefaultVideoCodec
		}
	}
	codec := astiav.FindEncoderByName(name)
	if codec == nil {
		return fmt.Errorf("video encoder %q not found", name)
	}

	st := e.fc.NewStream(codec)
	if st == nil {
		return errors.New("could not allocate video stream")
	}
	cc := astiav.AllocCodecContext(codec)

	cc.SetWidth(e.channel.Width)
	cc.SetHeight(e.channel.Height)
	cc.SetTimeBase(astiav.NewRational(e.channel.Duration, e.channel.TimeScale))
	cc.SetFramerate(astiav.NewRational(e.channel.TimeScale, e.channel.Duration))
	cc.SetGopSize(25)
	cc.SetPixelFormat(astiav.PixelFormatYuv420P)
	if e.channel.FieldMode != format.Progressive {
		cc.SetFlags(cc.Flags().
			Add(astiav.CodecContextFlagInterlacedDct).
			Add(astiav.CodecContextFlagInterlacedMe))
	}

	opts := astiav.NewDictionary()
	switch codec.ID() {
	case astiav.CodecIDH264:
		cc.SetBitRate(int64(e.channel.Height) * 14 * 1000)
		opts.Set("preset", "veryfast", astiav.NewDictionaryFlags())
	case astiav.CodecIDProres:
		cc.SetPixelFormat(astiav.PixelFormatYuv422P10Le)
		if e.channel.Width < 1280 {
			cc.SetBitRate(63 * 1000000)
		} else {
			cc.SetBitRate(220 * 1000000)
		}
	case astiav.CodecIDDnxhd:
		if e.channel.Width < 1280 || e.channel.Height < 720 {
			return errors.New("unsupported video dimensions for dnxhd")
		}
		cc.SetPixelFormat(astiav.PixelFormatYuv422P)
		cc.SetBitRate(220 * 1000000)
	case astiav.CodecIDQtrle:
		cc.SetPixelFormat(astiav.PixelFormatArgb)
	case astiav.CodecIDMpeg2Video:
		cc.SetPixelFormat(astiav.PixelFormatYuv422P)
		if e.cfg.IsMXF() && e.channel.Name == format.PAL.Name {
			// IMX50: constant 50 Mb/s with a 2 MB VBV and intra-only GOP.
			cc.SetBitRate(imxVideoBitRate)
			cc.SetGopSize(1)
			opts.Set("maxrate", fmt.Sprint(imxVideoBitRate), astiav.NewDictionaryFlags())
			opts.Set("minrate", fmt.Sprint(imxVideoBitRate), astiav.NewDictionaryFlags())
			opts.Set("bufsize", fmt.Sprint(imxVBVBufferSize), astiav.NewDictionaryFlags())
			opts.Set("rc_init_occupancy", fmt.Sprint(imxVBVBufferSize), astiav.NewDictionaryFlags())
		} else {
			cc.SetBitRate(15 * 1000000)
		}
	}
	if e.cfg.VRate != 0 {
		cc.SetBitRate(e.cfg.VRate * 1024)
	}
	cc.SetSampleAspectRatio(e.sampleAspectRatio())
	// B-frames are not supported downstream.
	opts.Set("bf", "0", astiav.NewDictionaryFlags())

	if e.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	if err := cc.Open(codec, opts); err != nil {
		return wrapErr("open video encoder "+name, err)
	}
	st.SetTimeBase(cc.TimeBase())
	if err := st.CodecParameters().FromCodecContext(cc); err != nil {
		return wrapErr("video codec parameters", err)
	}

	e.videoSt = st
	e.videoCC = cc
	return nil
}

func (e *encoder) sampleAspectRatio() astiav.Rational {
	wide := !e.cfg.Narrow
	switch e.channel.Name {
	case format.PAL.Name:
		if wide {
			return astiav.NewRational(64, 45)
		}
		return astiav.NewRational(16, 15)
	case format.NTSC.Name:
		if wide {
			return astiav.NewRational(32, 27)
		}
		return astiav.NewRational(8, 9)
	default:
		return astiav.NewRational(1, 1)
	}
}

func (e *encoder) addAudioStream() error {
	name := e.cfg.ACodec
	if name == "" {
		if e.cfg.IsMXF() {
			name = "pcm_s16le"
		} else {
			name = DefaultAudioCodec
		}
	}
	codec := astiav.FindEncoderByName(name)
	if codec == nil {
		return fmt.Errorf("audio encoder %q not found", name)
	}

	st := e.fc.NewStream(codec)
	if st == nil {
		return errors.New("could not allocate audio stream")
	}
	cc := astiav.AllocCodecContext(codec)

	cc.SetSampleRate(format.SampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	switch codec.ID() {
	case astiav.CodecIDAac:
		cc.SetSampleFormat(astiav.SampleFormatFltp)
		cc.SetBitRate(160 * 1024)
	case astiav.CodecIDFlv1:
		cc.SetSampleRate(44100)
	}
	if e.cfg.IsMXF() {
		// IMX D-10 audio: four channels of 16-bit PCM.
		cc.SetChannelLayout(astiav.ChannelLayout4Point0)
		cc.SetSampleFormat(astiav.SampleFormatS16)
	}
	if e.cfg.ARate != 0 {
		cc.SetBitRate(e.cfg.ARate * 1024)
	}
	cc.SetTimeBase(astiav.NewRational(1, cc.SampleRate()))

	if e.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	if err := cc.Open(codec, nil); err != nil {
		return wrapErr("open audio encoder "+name, err)
	}
	st.SetTimeBase(astiav.NewRational(1, cc.SampleRate()))
	if err := st.CodecParameters().FromCodecContext(cc); err != nil {
		return wrapErr("audio codec parameters", err)
	}

	e.audioSt = st
	e.audioCC = cc
	e.planar = cc.SampleFormat() == astiav.SampleFormatFltp
	return nil
}

// readyForFrame reports whether the bounded encode queue has room.
func (e *encoder) readyForFrame() bool {
	return e.exec.Len() < e.exec.Cap()
}

// markDropped accounts one frame dropped by backpressure.
func (e *encoder) markDropped() {
	e.graph.Tag("dropped-frame")
}

// send enqueues one composite frame for encoding; callers must have checked
// readyForFrame.
func (e *encoder) send(frame *media.Frame) {
	ok := e.exec.TryBegin(func() {
		start := time.Now()
		if err := e.encodeVideo(frame); err != nil {
			e.log.Error("video encode failed", "error", err)
		}
		if !e.keyOnly {
			if err := e.encodeAudio(frame); err != nil {
				e.log.Error("audio encode failed", "error", err)
			}
		}
		e.graph.FrameTime(time.Since(start).Seconds())
		e.graph.QueueDepth(e.exec.Len())
	})
	if !ok {
		e.markDropped()
	}
}

// convertVideo scales the composite BGRA image into the encoder's pixel
// format. Key-only encoders first spread the alpha plane across all lanes so
// the scaler sees a luminance image.
func (e *encoder) convertVideo(frame *media.Frame) (*astiav.Frame, error) {
	img := frame.Image
	if img.Blank() {
		return nil, errors.New("composite frame carries no image")
	}

	if e.sws == nil {
		var err error
		e.sws, err = astiav.CreateSoftwareScaleContext(
			img.Width, img.Height, astiav.PixelFormatBgra,
			e.videoCC.Width(), e.videoCC.Height(), e.videoCC.PixelFormat(),
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic),
		)
		if err != nil {
			return nil, wrapErr("create scale context", err)
		}
		e.srcFrame = astiav.AllocFrame()
		e.srcFrame.SetWidth(img.Width)
		e.srcFrame.SetHeight(img.Height)
		e.srcFrame.SetPixelFormat(astiav.PixelFormatBgra)
		if err := e.srcFrame.AllocBuffer(1); err != nil {
			return nil, wrapErr("alloc src frame", err)
		}
		e.encFrame = astiav.AllocFrame()
		e.encFrame.SetWidth(e.videoCC.Width())
		e.encFrame.SetHeight(e.videoCC.Height())
		e.encFrame.SetPixelFormat(e.videoCC.PixelFormat())
		if err := e.encFrame.AllocBuffer(1); err != nil {
			return nil, wrapErr("alloc enc frame", err)
		}
	}

	data := img.Data
	if e.keyOnly {
		if cap(e.keyBuf) < len(img.Data) {
			e.keyBuf = make([]byte, len(img.Data))
		}
		e.keyBuf = e.keyBuf[:len(img.Data)]
		for i := 0; i+3 < len(img.Data); i += 4 {
			a := img.Data[i+3]
			e.keyBuf[i] = a
			e.keyBuf[i+1] = a
			e.keyBuf[i+2] = a
			e.keyBuf[i+3] = a
		}
		data = e.keyBuf
	}
	if err := e.srcFrame.Data().SetBytes(data, 1); err != nil {
		return nil, wrapErr("fill src frame", err)
	}
	if err := e.sws.ScaleFrame(e.srcFrame, e.encFrame); err != nil {
		return nil, wrapErr("scale frame", err)
	}
	return e.encFrame, nil
}

func (e *encoder) encodeVideo(frame *media.Frame) error {
	f, err := e.convertVideo(frame)
	if err != nil {
		return err
	}
	f.SetPts(e.frameNumber)
	e.frameNumber++

	return e.encodeAndWrite(e.videoCC, e.videoSt, f)
}

// encodeAudio resamples the frame's S32 interleaved samples to the encoder
// layout, buffers until a full encoder frame is available, and writes every
// complete frame. Codecs without a fixed frame size flush the whole buffer.
func (e *encoder) encodeAudio(frame *media.Frame) error {
	if e.audioSt == nil || len(frame.Audio) == 0 {
		return nil
	}
	e.audioAccum = append(e.audioAccum, frame.Audio...)

	channels := frame.Channels
	if channels <= 0 {
		channels = 2
	}
	frameSize := e.audioCC.FrameSize()
	if frameSize == 0 {
		frameSize = len(e.audioAccum) / channels
	}
	if frameSize == 0 {
		return nil
	}

	for len(e.audioAccum) >= frameSize*channels {
		chunk := e.audioAccum[:frameSize*channels]
		e.audioAccum = e.audioAccum[frameSize*channels:]
		if err := e.encodeAudioChunk(chunk, channels, frameSize); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeAudioChunk(chunk []int32, channels, nbSamples int) error {
	if e.swr == nil {
		e.swr = astiav.AllocSoftwareResampleContext()
		e.audioSrc = astiav.AllocFrame()
		e.audioDst = astiav.AllocFrame()
	}

	e.audioSrc.Unref()
	e.audioSrc.SetSampleRate(format.SampleRate)
	e.audioSrc.SetChannelLayout(channelLayoutFor(channels))
	e.audioSrc.SetSampleFormat(astiav.SampleFormatS32)
	e.audioSrc.SetNbSamples(nbSamples)
	if err := e.audioSrc.AllocBuffer(0); err != nil {
		return wrapErr("alloc audio src", err)
	}
	buf := make([]byte, len(chunk)*4)
	for i, s := range chunk {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(s))
	}
	if err := e.audioSrc.Data().SetBytes(buf, 0); err != nil {
		return wrapErr("fill audio src", err)
	}

	e.audioDst.Unref()
	e.audioDst.SetSampleRate(e.audioCC.SampleRate())
	e.audioDst.SetChannelLayout(e.audioCC.ChannelLayout())
	e.audioDst.SetSampleFormat(e.audioCC.SampleFormat())
	if err := e.swr.ConvertFrame(e.audioSrc, e.audioDst); err != nil {
		return wrapErr("resample audio", err)
	}

	e.audioDst.SetPts(e.sampleNumber)
	e.sampleNumber += int64(e.audioDst.NbSamples())

	return e.encodeAndWrite(e.audioCC, e.audioSt, e.audioDst)
}

func channelLayoutFor(channels int) astiav.ChannelLayout {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono
	case 4:
		return astiav.ChannelLayout4Point0
	default:
		return astiav.ChannelLayoutStereo
	}
}

// encodeAndWrite runs one frame through cc, rescaling packet timestamps to
// the stream time base and interleaved-writing every produced packet. A nil
// frame drains the codec's delayed output.
func (e *encoder) encodeAndWrite(cc *astiav.CodecContext, st *astiav.Stream, f *astiav.Frame) error {
	if err := cc.SendFrame(f); err != nil {
		if _, eof := drainable(err); eof && f == nil {
			return nil
		}
		return wrapErr("send frame", err)
	}
	for {
		e.pkt.Unref()
		err := cc.ReceivePacket(e.pkt)
		if wouldBlock, eof := drainable(err); wouldBlock || eof {
			return nil
		} else if err != nil {
			return wrapErr("receive packet", err)
		}
		e.pkt.SetStreamIndex(st.Index())
		e.pkt.RescaleTs(cc.TimeBase(), st.TimeBase())
		if err := e.fc.WriteInterleavedFrame(e.pkt); err != nil {
			return wrapErr("write packet", err)
		}
	}
}

// close stops the executor, drains delayed codec output, writes the trailer
// and releases everything. Drain failures are logged; the trailer is still
// attempted.
func (e *encoder) close() error {
	e.exec.Stop()
	e.exec.Join()

	if e.fc != nil {
		if e.videoCC != nil {
			if err := e.encodeAndWrite(e.videoCC, e.videoSt, nil); err != nil {
				e.log.Warn("video drain failed", "error", err)
			}
		}
		if e.audioCC != nil {
			if err := e.encodeAndWrite(e.audioCC, e.audioSt, nil); err != nil {
				e.log.Warn("audio drain failed", "error", err)
			}
		}
		if err := e.fc.WriteTrailer(); err != nil {
			e.log.Warn("write trailer failed", "error", err)
		}
	}
	e.cleanup()
	e.log.Info("uninitialized")
	return nil
}

func (e *encoder) cleanup() {
	if e.videoCC != nil {
		e.videoCC.Free()
		e.videoCC = nil
	}
	if e.audioCC != nil {
		e.audioCC.Free()
		e.audioCC = nil
	}
	if e.sws != nil {
		e.sws.Free()
		e.sws = nil
	}
	if e.swr != nil {
		e.swr.Free()
		e.swr = nil
	}
	for _, f := range []**astiav.Frame{&e.srcFrame, &e.encFrame, &e.audioSrc, &e.audioDst} {
		if *f != nil {
			(*f).Free()
			*f = nil
		}
	}
	if e.pkt != nil {
		e.pkt.Free()
		e.pkt = nil
	}
	if e.ioCtx != nil && e.ownsPb {
		e.ioCtx.Closep()
		e.ioCtx = nil
	}
	if e.fc != nil {
		e.fc.Free()
		e.fc = nil
	}
}
