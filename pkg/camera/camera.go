// Package camera produces the raw JPEG byte stream that feeds the frame buffer.
//
// A Feed pushes chunks into a Sink from a single goroutine. CommandFeed reads
// the stdout of a capture process (rpicam-vid on a Raspberry Pi, ffmpeg
// elsewhere). PatternFeed renders a synthetic picture for development,
// URLFeed relays an upstream MJPEG stream and DirFeed publishes JPEG files as
// they appear in a directory.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrFeedEnded is returned when a source stops producing without being asked to.
var ErrFeedEnded = errors.New("camera: feed ended")

// Sink receives raw chunks. framebuffer.Buffer implements it.
type Sink interface {
	Ingest(chunk []byte)
	Flush()
}

// Feed produces chunks until ctx is done or the source fails. Run returns nil
// when ctx was cancelled.
type Feed interface {
	Run(ctx context.Context, sink Sink) error
}

// Config holds capture configuration.
type Config struct {
	Width    int
	Height   int
	FPS      int
	Rotation int // clockwise degrees: 0, 90, 180 or 270
}

func (c Config) withDefaults() Config {
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 480
	}
	if c.FPS == 0 {
		c.FPS = 25
	}
	return c
}

// CommandFeed runs a capture pipeline and streams the stdout of its last
// stage into the sink. Each stage's stdout feeds the next stage's stdin.
//
// With Commands empty the platform capture pipeline is used:
//   - linux/arm64: rpicam-vid (or libcamera-vid) for the Camera Module
//   - darwin: ffmpeg on the built-in webcam via AVFoundation
//   - elsewhere: ffmpeg on /dev/video0 via V4L2
type CommandFeed struct {
	Config   Config
	Commands [][]string
}

func (f *CommandFeed) commands() ([][]string, error) {
	if len(f.Commands) > 0 {
		return f.Commands, nil
	}
	return captureCommand(f.Config.withDefaults())
}

func (f *CommandFeed) Run(ctx context.Context, sink Sink) error {
	argvs, err := f.commands()
	if err != nil {
		return err
	}

	cmds := make([]*exec.Cmd, len(argvs))
	stderrs := make([]*bytes.Buffer, len(argvs))
	var links []io.Closer
	for i, argv := range argvs {
		if len(argv) == 0 {
			return fmt.Errorf("capture stage %d has no command", i)
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.WaitDelay = 2 * time.Second
		// Capture stderr for debugging
		stderrs[i] = &bytes.Buffer{}
		cmd.Stderr = stderrs[i]
		if i > 0 {
			link, err := cmds[i-1].StdoutPipe()
			if err != nil {
				return fmt.Errorf("failed to connect %s to %s: %w", argvs[i-1][0], argv[0], err)
			}
			cmd.Stdin = link
			links = append(links, link)
		}
		cmds[i] = cmd
	}

	last := cmds[len(cmds)-1]
	stdout, err := last.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			for _, started := range cmds[:i] {
				_ = started.Process.Kill()
				_ = started.Wait()
			}
			return fmt.Errorf("failed to start %s: %w", argvs[i][0], err)
		}
	}
	// The stages own the intermediate pipes now. Dropping our copies lets an
	// upstream stage see EPIPE when its reader exits.
	for _, link := range links {
		_ = link.Close()
	}
	cfg := f.Config.withDefaults()
	slog.Info("Started camera capture process", "command", pipelineName(argvs), "width", cfg.Width, "height", cfg.Height, "fps", cfg.FPS, "rotation", cfg.Rotation)

	pumpErr := Pump(stdout, sink)

	var waitErr error
	for i := len(cmds) - 1; i >= 0; i-- {
		if err := cmds[i].Wait(); err != nil && waitErr == nil {
			waitErr = fmt.Errorf("%s exited: %w, stderr: %s", argvs[i][0], err, strings.TrimSpace(stderrs[i].String()))
		}
	}

	if ctx.Err() != nil {
		slog.Info("Camera capture process stopped", "command", pipelineName(argvs))
		return nil
	}
	if waitErr != nil {
		return waitErr
	}
	if pumpErr != nil {
		return fmt.Errorf("read capture output: %w", pumpErr)
	}
	return fmt.Errorf("%w: %s exited cleanly", ErrFeedEnded, pipelineName(argvs))
}

func pipelineName(argvs [][]string) string {
	names := make([]string, len(argvs))
	for i, argv := range argvs {
		names[i] = argv[0]
	}
	return strings.Join(names, " | ")
}
