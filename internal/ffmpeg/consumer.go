package ffmpeg

import (
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
)

// Recorder supplies the current frame timecode for recorder-gated captures.
type Recorder interface {
	Timecode() int
}

// Consumer is the encoder consumer: it encodes composite frames into a
// container/codec pair, optionally emitting a second key file carrying the
// alpha plane. Send never blocks the tick thread; a full encode queue drops
// the frame and accounts for it on the diagnostics graph.
type Consumer struct {
	log      *slog.Logger
	cfg      ConsumerConfig
	index    int
	recorder Recorder

	fill *encoder
	key  *encoder
}

// NewConsumer opens the output(s) described by cfg for the given channel
// format. If log is nil, slog.Default() is used.
func NewConsumer(cfg ConsumerConfig, channel format.Video, log *slog.Logger) (*Consumer, error) {
	return newConsumer(cfg, channel, nil, "", nil, log)
}

// NewRecorderConsumer opens a recorder-gated consumer: frames whose timecode
// falls outside [TCIn, TCOut) are silently discarded before encoding.
func NewRecorderConsumer(cfg ConsumerConfig, channel format.Video, rec Recorder, log *slog.Logger) (*Consumer, error) {
	return newConsumer(cfg, channel, rec, "", nil, log)
}

// NewStreamConsumer opens a consumer that writes a forced container format
// into a caller-provided IO context, for network egress. SeparateKey is not
// supported on streams.
func NewStreamConsumer(cfg ConsumerConfig, channel format.Video, containerFormat string, pb *astiav.IOContext, log *slog.Logger) (*Consumer, error) {
	cfg.SeparateKey = false
	return newConsumer(cfg, channel, nil, containerFormat, pb, log)
}

func newConsumer(cfg ConsumerConfig, channel format.Video, rec Recorder, forceFormat string, pb *astiav.IOContext, log *slog.Logger) (*Consumer, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Consumer{
		log:      log.With("component", "ffmpeg-consumer", "filename", cfg.Filename),
		cfg:      cfg,
		index:    consumerIndex(cfg.Filename),
		recorder: rec,
	}

	var err error
	if c.fill, err = newEncoder(cfg, channel, false, forceFormat, pb, log); err != nil {
		return nil, err
	}
	if cfg.SeparateKey {
		keyCfg := cfg
		keyCfg.Filename = keyFilename(cfg.Filename)
		if c.key, err = newEncoder(keyCfg, channel, true, forceFormat, nil, log); err != nil {
			c.fill.close()
			return nil, err
		}
	}
	return c, nil
}

// Index is a stable number derived from the output filename. The output
// fan-out does not order by it; it keys consumers by registration key.
func (c *Consumer) Index() int { return c.index }

// Ready reports whether the consumer finished initializing.
func (c *Consumer) Ready() bool { return c.fill != nil }

// Send offers one composite frame. The returned future always completes
// with true: a frame refused by a full queue is dropped and tagged, and a
// frame outside the recorder window is discarded without a tag. PTS only
// advances for frames actually encoded, so gaps compress.
func (c *Consumer) Send(frame *media.Frame) <-chan bool {
	done := make(chan bool, 1)

	ready := c.fill.readyForFrame()
	if c.key != nil {
		ready = ready && c.key.readyForFrame()
	}
	if !ready {
		c.fill.markDropped()
		if c.key != nil {
			c.key.markDropped()
		}
		done <- true
		return done
	}

	if c.recorder != nil {
		tc := c.recorder.Timecode()
		if tc < c.cfg.TCIn || tc >= c.cfg.tcOut() {
			done <- true
			return done
		}
	}

	c.fill.send(frame)
	if c.key != nil {
		c.key.send(frame)
	}
	done <- true
	return done
}

// Close drains and finalizes every output.
func (c *Consumer) Close() error {
	var err error
	if c.fill != nil {
		err = c.fill.close()
		c.fill = nil
	}
	if c.key != nil {
		if kerr := c.key.close(); err == nil {
			err = kerr
		}
		c.key = nil
	}
	return err
}

func (c *Consumer) String() string {
	return "ffmpeg-consumer[" + c.cfg.Filename + "]"
}
