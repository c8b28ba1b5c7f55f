package ffmpeg

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/lumen/internal/media"
	"github.com/zsiec/lumen/internal/mux"
	"github.com/zsiec/lumen/internal/producer"
)

// FileConfig describes a clip producer.
type FileConfig struct {
	Filename   string
	FilterExpr string // extra filter stages in front of the muxer's own
	Loop       bool
}

// FileProducer decodes a clip and feeds the frame muxer, which adapts the
// clip's natural rate and field order to the channel. One frame comes out
// per Receive at the channel cadence.
type FileProducer struct {
	producer.Base
	log *slog.Logger
	cfg FileConfig

	fc    *astiav.FormatContext
	pkt   *astiav.Packet
	video *videoDecoder
	audio *audioDecoder
	muxer *mux.Muxer

	inputDone bool
	done      bool
}

// NewFileProducer creates a producer for the given clip. The media is opened
// at Initialize, when the channel's frame factory is known.
func NewFileProducer(cfg FileConfig, log *slog.Logger) *FileProducer {
	if log == nil {
		log = slog.Default()
	}
	return &FileProducer{
		log: log.With("component", "ffmpeg-producer", "filename", cfg.Filename),
		cfg: cfg,
	}
}

// Initialize opens the input, builds the decoders and wires the muxer to the
// channel's format.
func (p *FileProducer) Initialize(ff *media.FrameFactory) error {
	if p.fc != nil {
		return nil // already bound; a transition may re-initialize its dest
	}

	p.fc = astiav.AllocFormatContext()
	if err := p.fc.OpenInput(p.cfg.Filename, nil, nil); err != nil {
		return wrapErr("open input "+p.cfg.Filename, err)
	}
	if err := p.fc.FindStreamInfo(nil); err != nil {
		p.closeInput()
		return wrapErr("find stream info", err)
	}

	for _, s := range p.fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if p.video == nil {
				v, err := newVideoDecoder(p.fc, s)
				if err != nil {
					p.closeInput()
					return err
				}
				p.video = v
			}
		case astiav.MediaTypeAudio:
			if p.audio == nil {
				a, err := newAudioDecoder(s)
				if err != nil {
					p.closeInput()
					return err
				}
				p.audio = a
			}
		}
	}
	if p.video == nil {
		p.closeInput()
		return errors.New("no video stream in " + p.cfg.Filename)
	}

	p.pkt = astiav.AllocPacket()
	p.muxer = mux.New(mux.Config{
		InFPS:      p.video.fps,
		Format:     ff.Format(),
		Factory:    ff,
		FilterExpr: p.cfg.FilterExpr,
		Channels:   2,
		IsMXF:      strings.EqualFold(filepath.Ext(p.cfg.Filename), ".mxf"),
		NewFilter:  Factory(),
		Log:        p.log,
	})
	p.log.Info("opened", "fps", p.video.fps, "hasAudio", p.audio != nil)
	return nil
}

// Receive pulls the next channel-cadence frame, feeding the muxer from the
// input until it can emit.
func (p *FileProducer) Receive() (*media.Frame, error) {
	if p.done {
		return nil, io.EOF
	}
	for {
		if f, ok := p.muxer.Poll(); ok {
			return f, nil
		}
		if p.inputDone {
			p.done = true
			return nil, io.EOF
		}
		if err := p.feed(); err != nil {
			p.done = true
			return nil, err
		}
	}
}

// feed reads one packet and routes it; at end of input it either rewinds
// (loop) or drains the decoders and flushes the muxer epochs.
func (p *FileProducer) feed() error {
	p.pkt.Unref()
	err := p.fc.ReadFrame(p.pkt)
	if err != nil {
		if _, eof := drainable(err); !eof {
			return wrapErr("read frame", err)
		}
		if p.cfg.Loop {
			return p.rewind()
		}
		return p.drain()
	}

	switch {
	case p.video != nil && p.pkt.StreamIndex() == p.video.stream.Index():
		if err := p.pushVideoPackets(p.pkt); err != nil {
			return err
		}
	case p.audio != nil && p.pkt.StreamIndex() == p.audio.stream.Index():
		if err := p.audio.decode(p.pkt, p.muxer.PushAudio); err != nil {
			return err
		}
	}
	return nil
}

func (p *FileProducer) pushVideoPackets(pkt *astiav.Packet) error {
	return p.video.decode(pkt, func(pic mux.Picture) error {
		if err := p.muxer.PushVideo(pic); err != nil {
			return err
		}
		if p.audio == nil {
			for i := 0; i < p.muxer.SilenceSlotsPerFrame(); i++ {
				p.muxer.PushSilence()
			}
		}
		return nil
	})
}

func (p *FileProducer) rewind() error {
	if err := p.fc.SeekFrame(-1, 0, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return wrapErr("seek to start", err)
	}
	p.video.flushBuffers()
	if p.audio != nil {
		p.audio.flushBuffers()
	}
	p.log.Debug("looping clip")
	return nil
}

func (p *FileProducer) drain() error {
	if err := p.pushVideoPackets(nil); err != nil {
		return err
	}
	if p.audio != nil {
		if err := p.audio.decode(nil, p.muxer.PushAudio); err != nil {
			return err
		}
	}
	p.muxer.FlushVideo()
	p.muxer.FlushAudio()
	p.inputDone = true
	return nil
}

func (p *FileProducer) closeInput() {
	if p.video != nil {
		p.video.close()
		p.video = nil
	}
	if p.audio != nil {
		p.audio.close()
		p.audio = nil
	}
	if p.pkt != nil {
		p.pkt.Free()
		p.pkt = nil
	}
	if p.fc != nil {
		p.fc.CloseInput()
		p.fc.Free()
		p.fc = nil
	}
}

// Close releases the input; Receive afterwards reports end of stream.
func (p *FileProducer) Close() {
	p.done = true
	p.closeInput()
}

func (p *FileProducer) String() string {
	return "ffmpeg-producer[" + p.cfg.Filename + "]"
}
