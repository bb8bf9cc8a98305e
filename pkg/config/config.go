// Package config parses the startup configuration of the streaming service.
//
// Values come from command-line flags, falling back to WEBSTREAM_* environment
// variables and then to defaults. Resolution, frame rate and rotation are
// restricted to the values the camera pipeline supports; everything is fixed
// for the lifetime of the process.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Resolution is a capture size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

var (
	// Resolutions lists the supported capture sizes.
	Resolutions = []Resolution{{640, 480}, {1280, 720}, {1920, 1080}}
	// FrameRates lists the supported capture rates.
	FrameRates = []int{25, 30, 60}
	// Rotations lists the supported clockwise rotations in degrees.
	Rotations = []int{0, 90, 180, 270}
)

// ParseResolution parses "WIDTHxHEIGHT" and checks it is supported.
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("%w: resolution %q is not WIDTHxHEIGHT", ErrInvalidConfig, s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: resolution width %q: %v", ErrInvalidConfig, w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: resolution height %q: %v", ErrInvalidConfig, h, err)
	}
	r := Resolution{Width: width, Height: height}
	if !slices.Contains(Resolutions, r) {
		return Resolution{}, fmt.Errorf("%w: resolution %s not in %v", ErrInvalidConfig, r, Resolutions)
	}
	return r, nil
}

// SourceKind selects the capture feed.
type SourceKind string

const (
	SourceCamera  SourceKind = "camera"
	SourcePattern SourceKind = "pattern"
	SourceURL     SourceKind = "url"
	SourceDir     SourceKind = "dir"
)

// Source is a parsed -source value such as "camera" or "url:http://cam/stream".
type Source struct {
	Kind   SourceKind
	Target string
}

func (s Source) String() string {
	if s.Target == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Target
}

// ParseSource parses a -source value.
func ParseSource(s string) (Source, error) {
	kind, target, _ := strings.Cut(strings.TrimSpace(s), ":")
	src := Source{Kind: SourceKind(kind), Target: target}
	switch src.Kind {
	case SourceCamera, SourcePattern:
		if target != "" {
			return Source{}, fmt.Errorf("%w: source %q takes no argument", ErrInvalidConfig, kind)
		}
	case SourceURL, SourceDir:
		if target == "" {
			return Source{}, fmt.Errorf("%w: source %q needs a target, e.g. %s:<value>", ErrInvalidConfig, kind, kind)
		}
	default:
		return Source{}, fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, s)
	}
	return src, nil
}

// Config is the startup configuration of cmd/webstream.
type Config struct {
	Port          int
	Resolution    Resolution
	FPS           int
	Rotation      int
	Source        Source
	StatsInterval string
}

// Addr is the listen address for Port on all interfaces.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Validate checks every enumerated field.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if !slices.Contains(Resolutions, c.Resolution) {
		return fmt.Errorf("%w: resolution %s not in %v", ErrInvalidConfig, c.Resolution, Resolutions)
	}
	if !slices.Contains(FrameRates, c.FPS) {
		return fmt.Errorf("%w: fps %d not in %v", ErrInvalidConfig, c.FPS, FrameRates)
	}
	if !slices.Contains(Rotations, c.Rotation) {
		return fmt.Errorf("%w: rotation %d not in %v", ErrInvalidConfig, c.Rotation, Rotations)
	}
	return nil
}

// Load parses args (without the program name) using os.Getenv for fallbacks.
// Usage goes to stderr; -h yields an error wrapping flag.ErrHelp.
func Load(args []string) (Config, error) {
	return load(args, os.Getenv, os.Stderr)
}

func load(args []string, getenv func(string) string, output io.Writer) (Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	fs := flag.NewFlagSet("webstream", flag.ContinueOnError)
	fs.SetOutput(output)

	resolution := fs.String("resolution", env("WEBSTREAM_RESOLUTION", "640x480"), "Camera resolution: 640x480, 1280x720 or 1920x1080")
	fps := fs.String("fps", env("WEBSTREAM_FPS", "25"), "Frames per second: 25, 30 or 60")
	rotation := fs.String("rotation", env("WEBSTREAM_ROTATION", "0"), "Frame rotation: 0, 90, 180 or 270")
	port := fs.String("port", env("WEBSTREAM_PORT", "8080"), "Port for the web server")
	source := fs.String("source", env("WEBSTREAM_SOURCE", "camera"), "Capture source: camera, pattern, url:<mjpeg url> or dir:<path>")
	stats := fs.String("stats-interval", env("WEBSTREAM_STATS_INTERVAL", "@every 1m"), "Cron spec for logging stream statistics")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var cfg Config
	var err error
	if cfg.Resolution, err = ParseResolution(*resolution); err != nil {
		return Config{}, err
	}
	if cfg.FPS, err = atoi("fps", *fps); err != nil {
		return Config{}, err
	}
	if cfg.Rotation, err = atoi("rotation", *rotation); err != nil {
		return Config{}, err
	}
	if cfg.Port, err = atoi("port", *port); err != nil {
		return Config{}, err
	}
	if cfg.Source, err = ParseSource(*source); err != nil {
		return Config{}, err
	}
	cfg.StatsInterval = *stats

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func atoi(name, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidConfig, name, v)
	}
	return n, nil
}
