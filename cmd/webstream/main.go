package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/wachiwi/rpi-webstream/pkg/camera"
	"github.com/wachiwi/rpi-webstream/pkg/config"
	"github.com/wachiwi/rpi-webstream/pkg/framebuffer"
	"github.com/wachiwi/rpi-webstream/pkg/logger"
	"github.com/wachiwi/rpi-webstream/pkg/server"
	"github.com/wachiwi/rpi-webstream/pkg/stream"
	"github.com/wachiwi/rpi-webstream/pkg/telemetry"
	"golang.org/x/sync/errgroup"
)

func newFeed(cfg config.Config) (camera.Feed, error) {
	capture := camera.Config{
		Width:    cfg.Resolution.Width,
		Height:   cfg.Resolution.Height,
		FPS:      cfg.FPS,
		Rotation: cfg.Rotation,
	}
	switch cfg.Source.Kind {
	case config.SourceCamera:
		return &camera.CommandFeed{Config: capture}, nil
	case config.SourcePattern:
		return &camera.PatternFeed{Config: capture}, nil
	case config.SourceURL:
		return &camera.URLFeed{URL: cfg.Source.Target}, nil
	case config.SourceDir:
		return &camera.DirFeed{Dir: cfg.Source.Target}, nil
	}
	return nil, fmt.Errorf("%w: unknown source %q", config.ErrInvalidConfig, cfg.Source)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func main() {
	logger.Setup()

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "webstream")
	if err != nil {
		logger.Fatal("Failed to set up telemetry", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("Error shutting down telemetry", "error", err)
		}
	}()

	feed, err := newFeed(cfg)
	if err != nil {
		logger.Fatal("Invalid capture source", "error", err)
	}

	buf := framebuffer.New(framebuffer.WithPublishHook(stream.ObservePublished))

	srv, err := server.New(server.Options{
		Addr:   cfg.Addr(),
		Width:  cfg.Resolution.Width,
		Height: cfg.Resolution.Height,
	}, buf)
	if err != nil {
		logger.Fatal("Failed to build server", "error", err)
	}
	// Bind before the camera starts so a busy port fails fast.
	if err := srv.Listen(); err != nil {
		logger.Fatal("Failed to start server", "error", err)
	}

	c := cron.New(cron.WithLogger(&logger.CronLogger{Logger: slog.Default()}))
	if _, err := c.AddFunc(cfg.StatsInterval, srv.LogStats); err != nil {
		logger.Fatal("Invalid stats interval", "spec", cfg.StatsInterval, "error", err)
	}
	c.Start()
	defer c.Stop()

	slog.Info("Starting webstream", "source", cfg.Source.String(), "resolution", cfg.Resolution.String(),
		"fps", cfg.FPS, "rotation", cfg.Rotation, "port", cfg.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		if err := feed.Run(gctx, buf); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		// Deferred cleanups are skipped by os.Exit.
		c.Stop()
		stop()
		logger.Fatal("Webstream stopped", "error", err)
	}
	slog.Info("Webstream stopped")
}
