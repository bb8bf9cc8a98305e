package stream

import (
	"context"
	"log/slog"

	"github.com/wachiwi/rpi-webstream/pkg/framebuffer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	framesPublished metric.Int64Counter
	viewersActive   metric.Int64UpDownCounter
	segmentsWritten metric.Int64Counter
	segmentBytes    metric.Int64Counter
	sessionsClosed  metric.Int64Counter
)

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/rpi-webstream/pkg/stream")

	framesPublished, err = meter.Int64Counter("webstream.frames.published",
		metric.WithDescription("Complete frames published by the frame buffer"),
		metric.WithUnit("{frames}"),
	)
	if err != nil {
		slog.Error("Failed to create frames metric", "error", err)
	}
	viewersActive, err = meter.Int64UpDownCounter("webstream.viewers.active",
		metric.WithDescription("Currently connected stream viewers"),
		metric.WithUnit("{viewers}"),
	)
	if err != nil {
		slog.Error("Failed to create viewers metric", "error", err)
	}
	segmentsWritten, err = meter.Int64Counter("webstream.segments.written",
		metric.WithDescription("Multipart segments written to viewers"),
		metric.WithUnit("{segments}"),
	)
	if err != nil {
		slog.Error("Failed to create segments metric", "error", err)
	}
	segmentBytes, err = meter.Int64Counter("webstream.segments.bytes",
		metric.WithDescription("JPEG bytes written to viewers"),
		metric.WithUnit("By"),
	)
	if err != nil {
		slog.Error("Failed to create bytes metric", "error", err)
	}
	sessionsClosed, err = meter.Int64Counter("webstream.sessions.closed",
		metric.WithDescription("Streaming sessions ended, by reason"),
		metric.WithUnit("{sessions}"),
	)
	if err != nil {
		slog.Error("Failed to create sessions metric", "error", err)
	}
}

// ObservePublished records a published frame. It is meant to be passed to
// framebuffer.WithPublishHook.
func ObservePublished(framebuffer.Frame) {
	framesPublished.Add(context.Background(), 1)
}

func recordSessionClosed(reason string) {
	sessionsClosed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}
