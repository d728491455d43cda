package poll

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/phrazzld/taskwatch/internal/poll"

var (
	meter     = otel.Meter(instrumentationName)
	noopMeter = noop.NewMeterProvider().Meter(instrumentationName)
)

// fetchMetrics holds the counters shared by every synchronizer. Instruments
// that fail to register fall back to no-op counters.
type fetchMetrics struct {
	fetches   metric.Int64Counter
	errors    metric.Int64Counter
	discarded metric.Int64Counter
	attrs     metric.MeasurementOption
}

func newFetchMetrics(name string) *fetchMetrics {
	return &fetchMetrics{
		fetches: counter("taskwatch.poll.fetches",
			"Number of fetches issued by polling synchronizers"),
		errors: counter("taskwatch.poll.fetch_errors",
			"Number of fetches that returned an error"),
		discarded: counter("taskwatch.poll.discarded",
			"Number of fetch results dropped as stale or after stop"),
		attrs: metric.WithAttributes(attribute.String("synchronizer", name)),
	}
}

func counter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit("{fetch}"))
	if err != nil {
		c, _ = noopMeter.Int64Counter(name)
	}
	return c
}

func (m *fetchMetrics) fetch(ctx context.Context)   { m.fetches.Add(ctx, 1, m.attrs) }
func (m *fetchMetrics) failure(ctx context.Context) { m.errors.Add(ctx, 1, m.attrs) }
func (m *fetchMetrics) discard(ctx context.Context) { m.discarded.Add(ctx, 1, m.attrs) }
