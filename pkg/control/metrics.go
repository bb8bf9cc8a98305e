package control

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentation = "github.com/wachiwi/rpi-webstream/pkg/control"

var (
	tracer          = otel.Tracer(instrumentation)
	commandsCounter metric.Int64Counter
)

func init() {
	var err error
	meter := otel.Meter(instrumentation)
	commandsCounter, err = meter.Int64Counter("streamctl.commands",
		metric.WithDescription("Control commands handled, by command and outcome"),
		metric.WithUnit("{commands}"),
	)
	if err != nil {
		slog.Error("Failed to create command metrics", "error", err)
	}
}

func recordCommand(ctx context.Context, command, app string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	commandsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("app", app),
		attribute.String("outcome", outcome),
	))
}
