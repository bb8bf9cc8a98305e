package unit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	var b strings.Builder
	err := Render(&b, Service{
		Description: "Camera control API",
		Exec:        []string{"/usr/local/bin/streamctl", "-apps", "/etc/streamctl/apps.yaml"},
		User:        "pi",
		Environment: map[string]string{"STREAMCTL_USER": "pi", "LOG_LEVEL": "info"},
	})
	require.NoError(t, err)

	want := `[Unit]
Description=Camera control API
After=network.target

[Service]
Type=simple
Restart=always
User=pi
Environment="LOG_LEVEL=info"
Environment="STREAMCTL_USER=pi"
ExecStart=/usr/local/bin/streamctl -apps /etc/streamctl/apps.yaml

[Install]
WantedBy=multi-user.target
`
	assert.Equal(t, want, b.String())
}

func TestRenderDefaultsDescription(t *testing.T) {
	var b strings.Builder
	require.NoError(t, Render(&b, Service{Exec: []string{"/usr/local/bin/webstream"}}))
	assert.Contains(t, b.String(), "Description=/usr/local/bin/webstream\n")
	assert.NotContains(t, b.String(), "User=")
}

func TestRenderRequiresExec(t *testing.T) {
	assert.ErrorIs(t, Render(&strings.Builder{}, Service{}), ErrMissingExec)
}

func TestQuoteArgs(t *testing.T) {
	assert.Equal(t, `/bin/app "two words" "say \"hi\"" ""`, quoteArgs([]string{"/bin/app", "two words", `say "hi"`, ""}))
}
