package httpmetrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"webmetrics/httpmetrics"
)

// observation is a single recorded sink call.
type observation struct {
	name   string
	value  float64
	labels httpmetrics.LabelSet
}

// testSink captures sink calls for assertions.
type testSink struct {
	mu         sync.Mutex
	histograms []observation
	gaugeAdds  []observation // value holds the delta
}

func (s *testSink) ObserveHistogram(_ context.Context, name string, value float64, labels httpmetrics.LabelSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histograms = append(s.histograms, observation{name: name, value: value, labels: labels})
}

func (s *testSink) AddGauge(_ context.Context, name string, delta int64, labels httpmetrics.LabelSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaugeAdds = append(s.gaugeAdds, observation{name: name, value: float64(delta), labels: labels})
}

// histogramsFor returns all histogram observations with the given name.
func (s *testSink) histogramsFor(name string) []observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []observation
	for _, o := range s.histograms {
		if o.name == name {
			out = append(out, o)
		}
	}
	return out
}

// gaugeValue sums all deltas recorded for the given gauge.
func (s *testSink) gaugeValue(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, o := range s.gaugeAdds {
		if o.name == name {
			total += int64(o.value)
		}
	}
	return total
}

func (s *testSink) gaugeAddCount(name string, delta int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.gaugeAdds {
		if o.name == name && int64(o.value) == delta {
			n++
		}
	}
	return n
}

func labelValue(labels httpmetrics.LabelSet, key string) (string, bool) {
	for _, l := range labels {
		if l.Key == key {
			return l.Value, true
		}
	}
	return "", false
}

// newInstrumented wraps handler with a middleware built from cfg, reporting
// to a fresh testSink.
func newInstrumented(t *testing.T, cfg httpmetrics.Config, handler http.Handler) (*testSink, http.Handler) {
	t.Helper()
	sink := &testSink{}
	record, err := httpmetrics.New(sink, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sink, record(handler)
}

func doRequest(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	h.ServeHTTP(rec, req)
	return rec
}

// defaultNames are the metric names used when Config.Names is zero.
var defaultNames = httpmetrics.MetricNames{}.WithDefaults()
