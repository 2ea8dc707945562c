// Package otelsink implements httpmetrics.Sink on the OpenTelemetry metric
// API, with a Prometheus exporter setup for scraping.
package otelsink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"webmetrics/httpmetrics"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Setup initializes OpenTelemetry with a Prometheus exporter and installs
// it as the global meter provider. Returns a shutdown function that must be
// called on exit.
func Setup(ctx context.Context) (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// MetricsHandler returns an http.Handler that serves the Prometheus scrape
// endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Hint describes the unit, help text, and histogram buckets for an
// instrument name. Instruments without a hint use the SDK defaults.
type Hint struct {
	Unit        string
	Description string
	Buckets     []float64
}

// DefaultHints returns hints for the middleware's metric names: seconds
// with latency buckets for the duration histogram, bytes for the size
// histograms.
func DefaultHints(names httpmetrics.MetricNames) map[string]Hint {
	return map[string]Hint{
		names.RequestDuration: {
			Unit:        "s",
			Description: "HTTP request duration in seconds for all requests",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		names.RequestBodySize: {
			Unit:        "By",
			Description: "HTTP request size in bytes for all requests",
		},
		names.ResponseBodySize: {
			Unit:        "By",
			Description: "HTTP response size in bytes for all requests",
		},
		names.ActiveRequests: {
			Description: "Number of HTTP requests currently being served",
		},
	}
}

// Sink records observations on OpenTelemetry instruments. Each instrument
// is created at most once per name and cached, so the per-request path does
// no name interning.
type Sink struct {
	meter otelmetric.Meter
	hints map[string]Hint

	mu     sync.Mutex
	hists  map[string]otelmetric.Float64Histogram
	gauges map[string]otelmetric.Int64UpDownCounter
}

// New returns a Sink recording to instruments from meter. hints may be nil.
func New(meter otelmetric.Meter, hints map[string]Hint) *Sink {
	return &Sink{
		meter:  meter,
		hints:  hints,
		hists:  make(map[string]otelmetric.Float64Histogram),
		gauges: make(map[string]otelmetric.Int64UpDownCounter),
	}
}

// ObserveHistogram implements httpmetrics.Sink.
func (s *Sink) ObserveHistogram(ctx context.Context, name string, value float64, labels httpmetrics.LabelSet) {
	s.histogram(name).Record(ctx, value, otelmetric.WithAttributeSet(attrSet(labels)))
}

// AddGauge implements httpmetrics.Sink.
func (s *Sink) AddGauge(ctx context.Context, name string, delta int64, labels httpmetrics.LabelSet) {
	s.gauge(name).Add(ctx, delta, otelmetric.WithAttributeSet(attrSet(labels)))
}

func (s *Sink) histogram(name string) otelmetric.Float64Histogram {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hists[name]; ok {
		return h
	}

	opts := []otelmetric.Float64HistogramOption{}
	if hint, ok := s.hints[name]; ok {
		if hint.Unit != "" {
			opts = append(opts, otelmetric.WithUnit(hint.Unit))
		}
		if hint.Description != "" {
			opts = append(opts, otelmetric.WithDescription(hint.Description))
		}
		if len(hint.Buckets) > 0 {
			opts = append(opts, otelmetric.WithExplicitBucketBoundaries(hint.Buckets...))
		}
	}
	h, err := s.meter.Float64Histogram(name, opts...)
	if err != nil {
		// The API contract still returns a usable instrument on error.
		slog.Warn("creating histogram instrument", "name", name, "error", err)
	}
	s.hists[name] = h
	return h
}

func (s *Sink) gauge(name string) otelmetric.Int64UpDownCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[name]; ok {
		return g
	}

	opts := []otelmetric.Int64UpDownCounterOption{}
	if hint, ok := s.hints[name]; ok {
		if hint.Description != "" {
			opts = append(opts, otelmetric.WithDescription(hint.Description))
		}
	}
	g, err := s.meter.Int64UpDownCounter(name, opts...)
	if err != nil {
		slog.Warn("creating gauge instrument", "name", name, "error", err)
	}
	s.gauges[name] = g
	return g
}

func attrSet(labels httpmetrics.LabelSet) attribute.Set {
	kvs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		kvs[i] = attribute.String(l.Key, l.Value)
	}
	return attribute.NewSet(kvs...)
}
