package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wachiwi/rpi-webstream/pkg/unit"
)

func TestRunUnitToStdout(t *testing.T) {
	var out strings.Builder
	err := runUnit([]string{
		"-exec", "/usr/local/bin/webstream -rotation 180 -fps 25",
		"-description", "MJPEG web stream",
		"-env", "LOG_LEVEL=debug",
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Description=MJPEG web stream\n")
	assert.Contains(t, out.String(), "ExecStart=/usr/local/bin/webstream -rotation 180 -fps 25\n")
	assert.Contains(t, out.String(), `Environment="LOG_LEVEL=debug"`)
}

func TestRunUnitToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamctl.service")
	require.NoError(t, runUnit([]string{"-exec", "/usr/local/bin/streamctl", "-o", path}, &strings.Builder{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WantedBy=multi-user.target")
}

func TestRunUnitValidates(t *testing.T) {
	assert.ErrorIs(t, runUnit(nil, &strings.Builder{}), unit.ErrMissingExec)
	assert.Error(t, runUnit([]string{"-exec", "x", "-env", "novalue"}, &strings.Builder{}))
}
