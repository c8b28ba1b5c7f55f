// Package srt implements the MPEG-TS-over-SRT stream consumer: the encoder
// consumer with its container forced to mpegts, writing through a custom IO
// context straight into an SRT caller socket.
package srt

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/asticode/go-astiav"
	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/lumen/internal/ffmpeg"
	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/media"
)

// ioBufferSize holds a handful of TS packets per avio flush; SRT's payload
// sweet spot is 1316 bytes (7 TS packets).
const ioBufferSize = 1316 * 8

// DefaultLatency is the SRT latency window when the config leaves it unset.
const DefaultLatency = 120 * time.Millisecond

// Config describes an SRT egress.
type Config struct {
	Address  string // remote listener, host:port
	StreamID string
	Latency  time.Duration
	Encoder  ffmpeg.ConsumerConfig // codec/bitrate keys; Filename is ignored
}

// Consumer streams the channel as MPEG-TS over an SRT connection.
type Consumer struct {
	log   *slog.Logger
	cfg   Config
	conn  *srtgo.Conn
	ioCtx *astiav.IOContext
	inner *ffmpeg.Consumer
}

// NewConsumer dials the remote listener and opens the TS encoder on top of
// the connection. If log is nil, slog.Default() is used.
func NewConsumer(cfg Config, channel format.Video, log *slog.Logger) (*Consumer, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("srt consumer: address is required")
	}
	if cfg.Latency <= 0 {
		cfg.Latency = DefaultLatency
	}

	sCfg := srtgo.DefaultConfig()
	sCfg.Latency = cfg.Latency
	sCfg.StreamID = cfg.StreamID

	conn, err := srtgo.Dial(cfg.Address, sCfg)
	if err != nil {
		return nil, fmt.Errorf("srt dial %s: %w", cfg.Address, err)
	}

	c := &Consumer{
		log:  log.With("component", "srt-consumer", "address", cfg.Address),
		cfg:  cfg,
		conn: conn,
	}

	c.ioCtx, err = astiav.AllocIOContext(ioBufferSize, true, nil, nil, conn.Write)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("alloc io context: %w", err)
	}

	encCfg := cfg.Encoder
	encCfg.Filename = "srt://" + cfg.Address
	c.inner, err = ffmpeg.NewStreamConsumer(encCfg, channel, "mpegts", c.ioCtx, log)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c.log.Info("connected", "streamID", cfg.StreamID, "latency", cfg.Latency)
	return c, nil
}

// Send forwards the frame to the TS encoder; backpressure drops there.
func (c *Consumer) Send(frame *media.Frame) <-chan bool {
	return c.inner.Send(frame)
}

// Ready reports whether the encoder finished initializing.
func (c *Consumer) Ready() bool { return c.inner.Ready() }

// Close finalizes the TS stream and hangs up.
func (c *Consumer) Close() error {
	err := c.inner.Close()
	c.conn.Close()
	return err
}

func (c *Consumer) String() string {
	return "srt-consumer[" + c.cfg.Address + "]"
}
