package config

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, noEnv, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, Resolution{640, 480}, cfg.Resolution)
	assert.Equal(t, 25, cfg.FPS)
	assert.Equal(t, 0, cfg.Rotation)
	assert.Equal(t, Source{Kind: SourceCamera}, cfg.Source)
	assert.Equal(t, "@every 1m", cfg.StatsInterval)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadFlags(t *testing.T) {
	cfg, err := load([]string{
		"-resolution", "1920x1080",
		"-fps", "60",
		"-rotation", "180",
		"-port", "9000",
		"-source", "url:http://cam.local/stream.mjpg",
	}, noEnv, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, Resolution{1920, 1080}, cfg.Resolution)
	assert.Equal(t, 60, cfg.FPS)
	assert.Equal(t, 180, cfg.Rotation)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, Source{Kind: SourceURL, Target: "http://cam.local/stream.mjpg"}, cfg.Source)
}

func TestLoadEnvironmentFallback(t *testing.T) {
	env := map[string]string{
		"WEBSTREAM_RESOLUTION": "1280x720",
		"WEBSTREAM_FPS":        "30",
		"WEBSTREAM_PORT":       "8181",
	}
	cfg, err := load([]string{"-fps", "25"}, func(k string) string { return env[k] }, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, Resolution{1280, 720}, cfg.Resolution)
	assert.Equal(t, 25, cfg.FPS, "flags win over the environment")
	assert.Equal(t, 8181, cfg.Port)
}

func TestLoadRejectsUnsupportedValues(t *testing.T) {
	cases := map[string][]string{
		"resolution": {"-resolution", "800x600"},
		"malformed":  {"-resolution", "big"},
		"fps":        {"-fps", "24"},
		"rotation":   {"-rotation", "45"},
		"port zero":  {"-port", "0"},
		"port text":  {"-port", "http"},
		"source":     {"-source", "webcam"},
		"url empty":  {"-source", "url:"},
		"unknown":    {"-bogus"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(args, noEnv, io.Discard)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource("dir:/var/lib/frames")
	require.NoError(t, err)
	assert.Equal(t, SourceDir, src.Kind)
	assert.Equal(t, "/var/lib/frames", src.Target)
	assert.Equal(t, "dir:/var/lib/frames", src.String())

	src, err = ParseSource("pattern")
	require.NoError(t, err)
	assert.Equal(t, "pattern", src.String())

	_, err = ParseSource("camera:0")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolutionString(t *testing.T) {
	r, err := ParseResolution(" 1280X720 ")
	require.NoError(t, err)
	assert.Equal(t, "1280x720", r.String())
}

func TestLoadHelp(t *testing.T) {
	_, err := load([]string{"-h"}, noEnv, io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
