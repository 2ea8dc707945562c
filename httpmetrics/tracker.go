package httpmetrics

import (
	"fmt"
	"net/http"
	"time"
)

// tracker is the per-request instrumentation state. Exactly one is created
// per request when the middleware receives it, and it is read exactly once
// by the terminal hook. It is owned by a single request and needs no
// synchronization.
type tracker struct {
	start       time.Time
	requestSize int64
	method      string
	proto       string
	scheme      string
}

func newTracker(r *http.Request) *tracker {
	return &tracker{
		start:       time.Now(),
		requestSize: declaredBodySize(r),
		method:      r.Method,
		proto:       r.Proto,
		scheme:      requestScheme(r),
	}
}

// declaredBodySize returns the request's declared content length, or 0 when
// it is absent or unparsable. net/http has already best-effort parsed the
// Content-Length header into r.ContentLength, with -1 meaning unknown.
func declaredBodySize(r *http.Request) int64 {
	if r.ContentLength > 0 {
		return r.ContentLength
	}
	return 0
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	return "http"
}

// protoVersion formats the numeric protocol version, e.g. "1.1".
func protoVersion(r *http.Request) string {
	return fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor)
}

// countingWriter wraps http.ResponseWriter to capture the status code and
// accumulate the exact number of body bytes written, without altering what
// the inner handler sees or emits.
type countingWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (w *countingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *countingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		// Implicit 200, same as net/http.
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Flush passes through so streaming handlers keep working when they assert
// http.Flusher on the wrapped writer.
func (w *countingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap supports http.ResponseController.
func (w *countingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
