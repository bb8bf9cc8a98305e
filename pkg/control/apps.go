package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/rpi-webstream/pkg/supervisor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AppsHandler exposes the supervisor as a JSON API.
type AppsHandler struct {
	Supervisor *supervisor.Supervisor
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrUnknownApp), errors.Is(err, supervisor.ErrNoLog):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// command wraps one supervisor call in a span and a counter increment.
func command(c *gin.Context, name string, fn func(ctx context.Context) (supervisor.Status, error)) {
	app := c.Param("name")
	ctx, span := tracer.Start(c.Request.Context(), "streamctl."+name,
		trace.WithAttributes(attribute.String("app", app)))
	defer span.End()

	st, err := fn(ctx)
	recordCommand(ctx, name, app, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if st.App == "" {
			c.JSON(statusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(statusCode(err), st)
		return
	}
	span.SetAttributes(attribute.String("state", string(st.State)))
	c.JSON(http.StatusOK, st)
}

func (h *AppsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.Supervisor.List())
}

func (h *AppsHandler) Status(c *gin.Context) {
	command(c, "status", func(context.Context) (supervisor.Status, error) {
		return h.Supervisor.Status(c.Param("name"))
	})
}

// Start keeps launching after the caller disconnects; the grace period can
// outlast an impatient client.
func (h *AppsHandler) Start(c *gin.Context) {
	command(c, "start", func(ctx context.Context) (supervisor.Status, error) {
		return h.Supervisor.Start(context.WithoutCancel(ctx), c.Param("name"))
	})
}

func (h *AppsHandler) Stop(c *gin.Context) {
	command(c, "stop", func(context.Context) (supervisor.Status, error) {
		return h.Supervisor.Stop(c.Param("name"))
	})
}

func (h *AppsHandler) Logs(c *gin.Context) {
	app := c.Param("name")
	n := 0
	if raw := c.Query("n"); raw != "" {
		var err error
		if n, err = strconv.Atoi(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be an integer number of lines"})
			return
		}
	}

	ctx, span := tracer.Start(c.Request.Context(), "streamctl.logs",
		trace.WithAttributes(attribute.String("app", app)))
	defer span.End()

	lines, err := h.Supervisor.TailApp(app, n)
	recordCommand(ctx, "logs", app, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.JSON(statusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"app": app, "lines": lines})
}
