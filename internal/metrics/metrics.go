// Package metrics exposes materialization measurements through an
// OpenTelemetry meter exported in Prometheus format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/dukerupert/chorly"

// Recorder implements chore.Recorder.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	created  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// New builds a meter provider backed by its own Prometheus registry.
func New() (*Recorder, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)

	r := &Recorder{
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if r.created, err = meter.Int64Counter("chorly_occurrences_created",
		metric.WithDescription("Occurrences created by materialization")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if r.failures, err = meter.Int64Counter("chorly_materialize_failures",
		metric.WithDescription("Materialization passes that returned an error")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if r.duration, err = meter.Float64Histogram("chorly_materialize_duration",
		metric.WithDescription("Duration of one materialization pass"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}
	return r, nil
}

// Handler serves the /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return r.handler
}

func (r *Recorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

func (r *Recorder) OccurrencesCreated(ctx context.Context, tenantID string, n int) {
	if n <= 0 {
		return
	}
	r.created.Add(ctx, int64(n), metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (r *Recorder) MaterializeFailed(ctx context.Context, tenantID string) {
	r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func (r *Recorder) MaterializeDuration(ctx context.Context, d time.Duration) {
	r.duration.Record(ctx, d.Seconds())
}
