package stream

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/phrazzld/taskwatch/internal/stream"

var meter = otel.Meter(instrumentationName)

var (
	linesCounter, _ = meter.Int64Counter("taskwatch.stream.lines",
		metric.WithDescription("Number of log lines appended by stream consumers"),
		metric.WithUnit("{line}"))
	errorsCounter, _ = meter.Int64Counter("taskwatch.stream.errors",
		metric.WithDescription("Number of stream failures by indicator"),
		metric.WithUnit("{error}"))
)

func recordLine(ctx context.Context) {
	if linesCounter != nil {
		linesCounter.Add(ctx, 1)
	}
}

func recordError(ctx context.Context, ind Indicator) {
	if errorsCounter != nil {
		errorsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("indicator", string(ind))))
	}
}
