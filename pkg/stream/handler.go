// Package stream serves the viewer page and the multipart MJPEG stream.
package stream

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"text/template"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rpi-webstream/pkg/framebuffer"
)

//go:embed templates/*
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Handler serves one shared frame source to every viewer.
type Handler struct {
	Source FrameSource
	page   []byte
	active atomic.Int64
}

// NewHandler renders the viewer page for a width x height stream.
func NewHandler(source FrameSource, width, height int) (*Handler, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, gin.H{"Width": width, "Height": height})
	if err != nil {
		return nil, err
	}
	return &Handler{Source: source, page: buf.Bytes()}, nil
}

// Register mounts the stream routes. Every other path falls through to the
// router's 404.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET(RootPath, h.Root)
	r.GET(IndexPath, h.Index)
	r.GET(StreamPath, h.Stream)
}

// Viewers is the number of streams currently being served.
func (h *Handler) Viewers() int64 {
	return h.active.Load()
}

func (h *Handler) Root(c *gin.Context) {
	c.Redirect(http.StatusMovedPermanently, IndexPath)
}

func (h *Handler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html", h.page)
}

func (h *Handler) Stream(c *gin.Context) {
	setStreamHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ctx := c.Request.Context()
	session := NewSession(h.Source, c.Writer, c.ClientIP())

	h.active.Add(1)
	viewersActive.Add(ctx, 1)
	defer func() {
		h.active.Add(-1)
		viewersActive.Add(context.Background(), -1)
	}()
	slog.Info("Added streaming client", "session", session.ID, "remote", session.Remote)

	err := session.Run(ctx)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		recordSessionClosed("disconnect")
		slog.Info("Streaming client disconnected", "session", session.ID, "remote", session.Remote,
			"segments", session.SegmentsWritten())
	case errors.Is(err, framebuffer.ErrClosed):
		recordSessionClosed("shutdown")
		slog.Info("Stream closed", "session", session.ID, "remote", session.Remote)
	default:
		recordSessionClosed("write_error")
		slog.Warn("Removed streaming client", "session", session.ID, "remote", session.Remote, "error", err)
	}
}
