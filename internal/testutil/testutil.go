package testutil

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FreeAddr returns a localhost address with a free port.
func FreeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// WaitForReady polls url until it answers or the deadline passes.
func WaitForReady(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server did not become ready at %s", url)
}

// Scrape fetches the Prometheus exposition from url and returns it as text.
func Scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("scraping %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading scrape body: %v", err)
	}
	return string(body)
}

// SeriesValues returns the distinct values of the given label across all
// sample lines of the named metric in a Prometheus exposition. Used to
// assert that label cardinality stays bounded.
func SeriesValues(exposition, metric, label string) map[string]bool {
	values := make(map[string]bool)
	needle := label + `="`
	for _, line := range strings.Split(exposition, "\n") {
		if !strings.HasPrefix(line, metric) || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, needle)
		if i < 0 {
			continue
		}
		rest := line[i+len(needle):]
		j := strings.IndexByte(rest, '"')
		if j < 0 {
			continue
		}
		values[rest[:j]] = true
	}
	return values
}

// IssueToken creates a signed HS256 JWT accepted by the demo auth middleware.
// A negative ttl produces an already-expired token.
func IssueToken(t *testing.T, secret []byte, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "test-user",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// StreamingHandler writes each chunk followed by a flush, exercising the
// streaming response path of the instrumentation.
func StreamingHandler(chunks ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		for _, c := range chunks {
			io.WriteString(w, c)
			rc.Flush()
		}
	})
}
