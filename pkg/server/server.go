// Package server runs the HTTP side of the broadcast service: it binds the
// listen address, mounts the stream routes on a gin engine and shuts down
// in order when the process stops.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rpi-webstream/pkg/framebuffer"
	"github.com/wachiwi/rpi-webstream/pkg/logger"
	"github.com/wachiwi/rpi-webstream/pkg/stream"
)

// ErrNotListening is returned by Serve before a successful Listen.
var ErrNotListening = errors.New("server: not listening")

// Source is the frame buffer as seen by the server.
type Source interface {
	stream.FrameSource
	Stats() framebuffer.Stats
	Close()
}

// Options configures a Server.
type Options struct {
	Addr   string
	Width  int
	Height int
	// ShutdownGrace bounds how long Serve waits for in-flight requests once
	// ctx is done. Defaults to 5s.
	ShutdownGrace time.Duration
}

// Server serves the viewer page and the MJPEG stream of one Source.
type Server struct {
	opts    Options
	source  Source
	handler *stream.Handler
	engine  *gin.Engine
	http    *http.Server
	ln      net.Listener
}

// New builds the router. It does not bind the address; see Listen.
func New(opts Options, source Source) (*Server, error) {
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}

	h, err := stream.NewHandler(source, opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("render viewer page: %w", err)
	}

	engine := gin.New()
	// Paths match exactly; "/index.html/" is a 404, not a redirect.
	engine.RedirectTrailingSlash = false
	if err := engine.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	engine.Use(gin.Recovery(), logger.Middleware(slog.Default()))
	h.Register(engine)

	return &Server{
		opts:    opts,
		source:  source,
		handler: h,
		engine:  engine,
		http: &http.Server{
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Listen binds the configured address so that a busy port is reported before
// any capture starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	s.ln = ln
	return nil
}

// Addr is the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.opts.Addr
}

// Serve accepts connections until ctx is done. Shutdown closes the source
// first, which ends every open stream, and then drains the HTTP server.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return ErrNotListening
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		stopped <- s.shutdown()
	}()

	slog.Info("Server is running", "addr", s.Addr(), "width", s.opts.Width, "height", s.opts.Height)
	err := s.http.Serve(s.ln)
	if !errors.Is(err, http.ErrServerClosed) {
		s.source.Close()
		return fmt.Errorf("serve: %w", err)
	}
	return <-stopped
}

func (s *Server) shutdown() error {
	slog.Info("Shutting down server", "viewers", s.handler.Viewers())
	s.source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.Warn("Graceful shutdown timed out, closing connections", "error", err)
		return s.http.Close()
	}
	return nil
}

// LogStats writes one line with the stream counters. cmd/webstream runs it
// from a cron job.
func (s *Server) LogStats() {
	st := s.source.Stats()
	slog.Info("Stream statistics",
		"generation", st.Generation,
		"frames", st.FramesPublished,
		"discarded_chunks", st.ChunksDiscarded,
		"overflows", st.Overflows,
		"pending_bytes", st.PendingBytes,
		"viewers", s.handler.Viewers(),
	)
}
