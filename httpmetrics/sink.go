package httpmetrics

import "context"

// Sink receives metric observations from the middleware. Implementations
// must be safe for concurrent use and must treat calls as fire-and-forget:
// a sink failure must never propagate back to, or block, the request path.
//
// The middleware resolves all metric names once at construction and reuses
// them for every observation, so a sink may key its instruments by name
// without re-interning.
type Sink interface {
	// ObserveHistogram records a histogram observation for the named metric.
	ObserveHistogram(ctx context.Context, name string, value float64, labels LabelSet)
	// AddGauge moves the named gauge by delta.
	AddGauge(ctx context.Context, name string, delta int64, labels LabelSet)
}
