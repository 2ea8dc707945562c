package httpmetrics_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"webmetrics/httpmetrics"
)

func TestPassesThroughResponse(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	})

	_, h := newInstrumented(t, httpmetrics.Config{}, inner)
	rec := doRequest(h, http.MethodPost, "/things")

	if !called {
		t.Error("expected inner handler to be called")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if rec.Body.String() != "created" {
		t.Errorf("body altered: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("headers altered: %q", ct)
	}
}

func TestDefaultStatus200(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Write or WriteHeader.
	})
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", inner)

	sink, h := newInstrumented(t, httpmetrics.Config{}, mux)
	doRequest(h, http.MethodGet, "/healthz")

	labels := durationLabels(t, sink)
	if v, _ := labelValue(labels, "status"); v != "200" {
		t.Errorf("expected status label 200, got %q", v)
	}
}

func TestGaugeIncrementsWhileHandlerRuns(t *testing.T) {
	var sink *testSink
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := sink.gaugeValue(defaultNames.ActiveRequests); got != 1 {
			t.Errorf("expected gauge 1 during request, got %d", got)
		}
	})
	sink = &testSink{}
	record, err := httpmetrics.New(sink, httpmetrics.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doRequest(record(inner), http.MethodGet, "/")

	if got := sink.gaugeValue(defaultNames.ActiveRequests); got != 0 {
		t.Errorf("expected gauge back to 0, got %d", got)
	}
}

func TestGaugeLabels(t *testing.T) {
	sink, h := newInstrumented(t, httpmetrics.Config{
		ConstLabels: map[string]string{"app": "blog"},
	}, okHandler())

	doRequest(h, http.MethodGet, "/anything")

	if n := sink.gaugeAddCount(defaultNames.ActiveRequests, 1); n != 1 {
		t.Fatalf("expected 1 increment, got %d", n)
	}
	inc := sink.gaugeAdds[0]
	if v, _ := labelValue(inc.labels, "method"); v != "GET" {
		t.Errorf("expected method label GET, got %q", v)
	}
	if v, _ := labelValue(inc.labels, "scheme"); v != "http" {
		t.Errorf("expected scheme label http, got %q", v)
	}
	if v, _ := labelValue(inc.labels, "app"); v != "blog" {
		t.Errorf("expected const label on gauge, got %q", v)
	}
	if _, ok := labelValue(inc.labels, "endpoint"); ok {
		t.Error("gauge labels must not include the route label")
	}
}

func TestGaugeBalancedOnPanic(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	sink, h := newInstrumented(t, httpmetrics.Config{}, inner)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		doRequest(h, http.MethodGet, "/panic")
	}()

	if got := sink.gaugeValue(defaultNames.ActiveRequests); got != 0 {
		t.Errorf("expected gauge back to 0 after panic, got %d", got)
	}
	if obs := sink.histogramsFor(defaultNames.RequestDuration); len(obs) != 0 {
		t.Errorf("expected no observations for panicked request, got %d", len(obs))
	}
}

func TestGaugeBalancedUnderConcurrency(t *testing.T) {
	const n = 32
	release := make(chan struct{})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("done"))
	})
	sink, h := newInstrumented(t, httpmetrics.Config{}, inner)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doRequest(h, http.MethodGet, "/work")
		}()
	}

	close(release)
	wg.Wait()

	if got := sink.gaugeAddCount(defaultNames.ActiveRequests, 1); got != n {
		t.Errorf("expected %d increments, got %d", n, got)
	}
	if got := sink.gaugeAddCount(defaultNames.ActiveRequests, -1); got != n {
		t.Errorf("expected %d decrements, got %d", n, got)
	}
	if got := sink.gaugeValue(defaultNames.ActiveRequests); got != 0 {
		t.Errorf("expected gauge back to 0, got %d", got)
	}
	if obs := sink.histogramsFor(defaultNames.RequestDuration); len(obs) != n {
		t.Errorf("expected %d duration observations, got %d", n, len(obs))
	}
}

func TestRequestSizeFromContentLength(t *testing.T) {
	sink, h := newInstrumented(t, httpmetrics.Config{}, okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("hello"))
	h.ServeHTTP(rec, req)

	obs := sink.histogramsFor(defaultNames.RequestBodySize)
	if len(obs) != 1 {
		t.Fatalf("expected 1 request size observation, got %d", len(obs))
	}
	if obs[0].value != 5 {
		t.Errorf("expected request size 5, got %v", obs[0].value)
	}
}

func TestRequestSizeDefaultsToZero(t *testing.T) {
	sink, h := newInstrumented(t, httpmetrics.Config{}, okHandler())

	doRequest(h, http.MethodGet, "/no-body")

	obs := sink.histogramsFor(defaultNames.RequestBodySize)
	if len(obs) != 1 {
		t.Fatalf("expected 1 request size observation, got %d", len(obs))
	}
	if obs[0].value != 0 {
		t.Errorf("expected request size 0, got %v", obs[0].value)
	}
}

func TestResponseSizeAccumulation(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   float64
	}{
		{name: "empty body", chunks: nil, want: 0},
		{name: "single chunk", chunks: []string{"hello world"}, want: 11},
		{name: "multi chunk", chunks: []string{"first,", "second,", "third"}, want: 18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for _, c := range tt.chunks {
					io.WriteString(w, c)
					if f, ok := w.(http.Flusher); ok {
						f.Flush()
					}
				}
			})
			sink, h := newInstrumented(t, httpmetrics.Config{}, inner)

			rec := doRequest(h, http.MethodGet, "/stream")

			if got := float64(rec.Body.Len()); got != tt.want {
				t.Fatalf("test handler emitted %v bytes, want %v", got, tt.want)
			}
			obs := sink.histogramsFor(defaultNames.ResponseBodySize)
			if len(obs) != 1 {
				t.Fatalf("expected 1 response size observation, got %d", len(obs))
			}
			if obs[0].value != tt.want {
				t.Errorf("expected response size %v, got %v", tt.want, obs[0].value)
			}
		})
	}
}

func TestExcludeExactPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", okHandler())
	mux.Handle("GET /work", okHandler())
	sink, h := newInstrumented(t, httpmetrics.Config{ExcludePaths: []string{"/healthz"}}, mux)

	doRequest(h, http.MethodGet, "/healthz")
	doRequest(h, http.MethodGet, "/work")

	obs := sink.histogramsFor(defaultNames.RequestDuration)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if v, _ := labelValue(obs[0].labels, "endpoint"); v != "/work" {
		t.Errorf("expected only /work recorded, got %q", v)
	}
	// The gauge is never subject to exclusion.
	if got := sink.gaugeAddCount(defaultNames.ActiveRequests, 1); got != 2 {
		t.Errorf("expected 2 gauge increments, got %d", got)
	}
	if got := sink.gaugeValue(defaultNames.ActiveRequests); got != 0 {
		t.Errorf("expected gauge back to 0, got %d", got)
	}
}

func TestExcludePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /internal/{page}", okHandler())
	mux.Handle("GET /public", okHandler())
	sink, h := newInstrumented(t, httpmetrics.Config{ExcludePatterns: []string{"^/internal/"}}, mux)

	doRequest(h, http.MethodGet, "/internal/debug")
	doRequest(h, http.MethodGet, "/public")

	obs := sink.histogramsFor(defaultNames.RequestDuration)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if v, _ := labelValue(obs[0].labels, "endpoint"); v != "/public" {
		t.Errorf("expected only /public recorded, got %q", v)
	}
}

func TestExcludeStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /missing", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	mux.Handle("GET /present", okHandler())
	sink, h := newInstrumented(t, httpmetrics.Config{ExcludeStatus: []int{http.StatusNotFound}}, mux)

	doRequest(h, http.MethodGet, "/missing")
	doRequest(h, http.MethodGet, "/present")

	obs := sink.histogramsFor(defaultNames.RequestDuration)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if v, _ := labelValue(obs[0].labels, "status"); v != "200" {
		t.Errorf("expected only the 200 response recorded, got status %q", v)
	}
}

func TestInvalidExcludePattern(t *testing.T) {
	_, err := httpmetrics.New(&testSink{}, httpmetrics.Config{ExcludePatterns: []string{"("}})
	if err == nil {
		t.Fatal("expected error for invalid exclusion pattern")
	}
}

func TestEveryEligibleRequestEmitsAllThreeHistograms(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /posts/{language}/{slug}", okHandler())
	sink, h := newInstrumented(t, httpmetrics.Config{}, mux)

	for i := 0; i < 3; i++ {
		doRequest(h, http.MethodGet, fmt.Sprintf("/posts/en/post-%d", i))
	}

	for _, name := range []string{
		defaultNames.RequestDuration,
		defaultNames.RequestBodySize,
		defaultNames.ResponseBodySize,
	} {
		if obs := sink.histogramsFor(name); len(obs) != 3 {
			t.Errorf("expected 3 observations for %s, got %d", name, len(obs))
		}
	}
}
