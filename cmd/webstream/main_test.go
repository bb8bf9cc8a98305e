package main

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wachiwi/rpi-webstream/pkg/camera"
	"github.com/wachiwi/rpi-webstream/pkg/config"
)

func TestNewFeedPicksSource(t *testing.T) {
	base := config.Config{
		Resolution: config.Resolution{Width: 1280, Height: 720},
		FPS:        30,
		Rotation:   90,
	}

	cases := []struct {
		source string
		check  func(t *testing.T, feed camera.Feed)
	}{
		{"camera", func(t *testing.T, feed camera.Feed) {
			cmd, ok := feed.(*camera.CommandFeed)
			require.True(t, ok)
			assert.Equal(t, camera.Config{Width: 1280, Height: 720, FPS: 30, Rotation: 90}, cmd.Config)
		}},
		{"pattern", func(t *testing.T, feed camera.Feed) {
			_, ok := feed.(*camera.PatternFeed)
			assert.True(t, ok)
		}},
		{"url:http://cam.local/stream.mjpg", func(t *testing.T, feed camera.Feed) {
			u, ok := feed.(*camera.URLFeed)
			require.True(t, ok)
			assert.Equal(t, "http://cam.local/stream.mjpg", u.URL)
		}},
		{"dir:/srv/frames", func(t *testing.T, feed camera.Feed) {
			d, ok := feed.(*camera.DirFeed)
			require.True(t, ok)
			assert.Equal(t, "/srv/frames", d.Dir)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.source, func(t *testing.T) {
			cfg := base
			var err error
			cfg.Source, err = config.ParseSource(tc.source)
			require.NoError(t, err)

			feed, err := newFeed(cfg)
			require.NoError(t, err)
			tc.check(t, feed)
		})
	}
}

func TestGinRunsInReleaseMode(t *testing.T) {
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}

func TestNewFeedRejectsUnknownSource(t *testing.T) {
	_, err := newFeed(config.Config{Source: config.Source{Kind: "webcam"}})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
