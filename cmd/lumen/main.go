package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/lumen/internal/channel"
	"github.com/zsiec/lumen/internal/consumer/srt"
	"github.com/zsiec/lumen/internal/diag"
	"github.com/zsiec/lumen/internal/ffmpeg"
	"github.com/zsiec/lumen/internal/format"
	"github.com/zsiec/lumen/internal/producer"
)

var version = "dev"

func main() {
	var (
		formatName  = pflag.String("format", "PAL", "channel video format")
		background  = pflag.String("color", "#FF000000", "background color producer (#AARRGGBB)")
		clipPath    = pflag.String("file", "", "clip to play on layer 10")
		clipLoop    = pflag.Bool("loop", false, "loop the clip")
		filename    = pflag.String("filename", "", "file consumer output path")
		vcodec      = pflag.String("vcodec", "", "video encoder name (default per container)")
		acodec      = pflag.String("acodec", "", "audio encoder name (default per container)")
		vrate       = pflag.Int64("vrate", 0, "video bitrate in kbps (0 = codec default)")
		arate       = pflag.Int64("arate", 0, "audio bitrate in kbps (0 = codec default)")
		separateKey = pflag.Bool("separate-key", false, "also write a *_A key file")
		narrow      = pflag.Bool("narrow", false, "narrow (4:3) sample aspect ratio")
		options     = pflag.String("options", "", "comma-separated k=v container options")
		srtAddr     = pflag.String("srt", "", "SRT egress address (host:port)")
		srtStreamID = pflag.String("srt-stream-id", "", "SRT stream id")
		metricsAddr = pflag.String("metrics", "", "diagnostics listen address (e.g. :9100)")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.Info("lumen starting", "version", version)

	v, ok := format.Lookup(*formatName)
	if !ok {
		slog.Error("unknown format", "format", *formatName)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	mgr := channel.NewManager(nil, slog.Default())
	defer mgr.Close()

	ch, _ := mgr.Create(1, v)

	bg, err := producer.NewColor(*background)
	if err != nil {
		slog.Error("invalid background color", "error", err)
		os.Exit(1)
	}
	if err := ch.Device().Load(0, bg, true); err != nil {
		slog.Error("failed to load background", "error", err)
		os.Exit(1)
	}

	if *clipPath != "" {
		clip := ffmpeg.NewFileProducer(ffmpeg.FileConfig{Filename: *clipPath, Loop: *clipLoop}, slog.Default())
		if err := ch.Device().Load(10, clip, true); err != nil {
			slog.Error("failed to load clip", "file", *clipPath, "error", err)
			os.Exit(1)
		}
	}

	encCfg := ffmpeg.ConsumerConfig{
		Filename:    *filename,
		VCodec:      *vcodec,
		ACodec:      *acodec,
		VRate:       *vrate,
		ARate:       *arate,
		SeparateKey: *separateKey,
		Narrow:      *narrow,
		Options:     *options,
	}
	if *filename != "" {
		c, err := ffmpeg.NewConsumer(encCfg, v, slog.Default())
		if err != nil {
			slog.Error("failed to open file consumer", "filename", *filename, "error", err)
			os.Exit(1)
		}
		ch.Output().Add(c)
	}
	if *srtAddr != "" {
		c, err := srt.NewConsumer(srt.Config{
			Address:  *srtAddr,
			StreamID: *srtStreamID,
			Encoder:  encCfg,
		}, v, slog.Default())
		if err != nil {
			slog.Error("failed to open srt consumer", "address", *srtAddr, "error", err)
			os.Exit(1)
		}
		ch.Output().Add(c)
	}

	g, ctx := errgroup.WithContext(ctx)

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:    *metricsAddr,
			Handler: promhttp.HandlerFor(diag.Registry(), promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			slog.Info("diagnostics listening", "addr", *metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("lumen stopped")
}
