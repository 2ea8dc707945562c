// Package httpmetrics instruments net/http handlers with request duration,
// in-flight count, and request/response body size metrics, emitted to a
// pluggable Sink with bounded route-label cardinality.
//
// The middleware must wrap the router directly, with no request-copying
// middleware between them, because the router records its match on the
// request it is handed:
//
//	mux := http.NewServeMux()
//	mux.Handle("GET /posts/{language}/{slug}",
//		httpmetrics.KeepParams("language")(postHandler))
//
//	record, err := httpmetrics.New(sink, httpmetrics.Config{})
//	...
//	handler := record(mux)
//
// Matched requests are labeled with their route template rather than the
// raw path, so "/posts/en/my-post" and "/posts/fr/autre" share the label
// "/posts/{language}/{slug}". Parameters allow-listed with KeepParams keep
// their literal values. Requests that match no route collapse to a single
// mask label by default, so bot traffic cannot inflate label cardinality.
package httpmetrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// metrics holds the process-wide, read-only instrumentation state shared by
// all in-flight requests: interned metric and label names, compiled
// exclusion rules, and the constant label suffix.
type metrics struct {
	sink  Sink
	names MetricNames

	labels        LabelNames
	versionLabel  bool
	schemeInHist  bool
	constLabels   []Label
	rules         *exclusionRules
	mask          string
	maskEnabled   bool
	routeInfo     RouteInfoFunc
	logger        *slog.Logger
}

// New returns middleware that reports request metrics to sink. It returns
// an error if the configuration cannot be compiled (e.g. an invalid
// exclusion pattern).
func New(sink Sink, cfg Config) (func(http.Handler) http.Handler, error) {
	rules, err := newExclusionRules(cfg.ExcludePaths, cfg.ExcludePatterns, cfg.ExcludeStatus)
	if err != nil {
		return nil, err
	}

	mask := cfg.UnmatchedMask
	if mask == "" {
		mask = DefaultUnmatchedMask
	}
	routeInfo := cfg.RouteInfo
	if routeInfo == nil {
		routeInfo = muxRouteInfo
	}

	labels := cfg.Labels.withDefaults()
	m := &metrics{
		sink:         sink,
		names:        cfg.Names.WithDefaults().Prefixed(cfg.Namespace),
		labels:       labels,
		versionLabel: labels.ProtoVersion != "",
		schemeInHist: cfg.IncludeScheme,
		constLabels:  sortedConstLabels(cfg.ConstLabels),
		rules:        rules,
		mask:         mask,
		maskEnabled:  !cfg.DisableMasking,
		routeInfo:    routeInfo,
		logger:       slog.Default(),
	}
	return m.handler, nil
}

func (m *metrics) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := newTracker(r)
		version := protoVersion(r)

		override := &cardinalityOverride{}
		r = r.WithContext(context.WithValue(r.Context(), cardinalityKey{}, override))

		gaugeLabels := m.gaugeLabels(t)
		m.sink.AddGauge(r.Context(), m.names.ActiveRequests, 1, gaugeLabels)

		cw := &countingWriter{ResponseWriter: w, status: http.StatusOK}

		// The terminal hook runs exactly once on every exit path. The gauge
		// decrement is unconditional so the increment/decrement pair always
		// balances; the observations are skipped when the inner handler
		// panicked before producing a response.
		completed := false
		defer func() {
			m.sink.AddGauge(r.Context(), m.names.ActiveRequests, -1, gaugeLabels)
			if completed {
				m.record(r, t, version, cw, override.keep)
			}
		}()

		next.ServeHTTP(cw, r)
		completed = true
	})
}

// record resolves the final route label, applies the exclusion rules, and
// emits the duration and size observations for a completed request.
func (m *metrics) record(r *http.Request, t *tracker, version string, cw *countingWriter, keep []string) {
	info := m.routeInfo(r)
	rp := buildPatterns(r.URL.Path, info.Pattern, info.Params, keepSet(keep), m.logger.Warn)
	label := rp.finalLabel(cw.status, m.mask, m.maskEnabled)

	if !m.rules.shouldRecord(label, cw.status) {
		return
	}

	labels := m.requestLabels(label, t, version, cw.status)
	ctx := r.Context()
	m.sink.ObserveHistogram(ctx, m.names.RequestDuration, time.Since(t.start).Seconds(), labels)
	m.sink.ObserveHistogram(ctx, m.names.RequestBodySize, float64(t.requestSize), labels)
	m.sink.ObserveHistogram(ctx, m.names.ResponseBodySize, float64(cw.written), labels)
}

func (m *metrics) gaugeLabels(t *tracker) LabelSet {
	labels := make(LabelSet, 0, 2+len(m.constLabels))
	labels = append(labels,
		Label{Key: m.labels.Method, Value: t.method},
		Label{Key: m.labels.Scheme, Value: t.scheme},
	)
	return append(labels, m.constLabels...)
}

func (m *metrics) requestLabels(route string, t *tracker, version string, status int) LabelSet {
	labels := make(LabelSet, 0, 6+len(m.constLabels))
	labels = append(labels,
		Label{Key: m.labels.Route, Value: route},
		Label{Key: m.labels.Method, Value: t.method},
		Label{Key: m.labels.Status, Value: strconv.Itoa(status)},
		Label{Key: m.labels.Proto, Value: t.proto},
	)
	if m.versionLabel {
		labels = append(labels, Label{Key: m.labels.ProtoVersion, Value: version})
	}
	if m.schemeInHist {
		labels = append(labels, Label{Key: m.labels.Scheme, Value: t.scheme})
	}
	return append(labels, m.constLabels...)
}
