// Command demoserver runs an instrumented HTTP server demonstrating the
// httpmetrics middleware: route-template labels, per-route cardinality
// overrides, unmatched-path masking, exclusions, and a Prometheus scrape
// endpoint at /metrics.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	"webmetrics/httpmetrics"
	"webmetrics/httpmetrics/otelsink"
	"webmetrics/internal/demo/middleware"
	"webmetrics/internal/platform/config"
	"webmetrics/internal/platform/server"
)

func main() {
	cfg := config.Load()

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := otelsink.Setup(context.Background())
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	names := httpmetrics.MetricNames{}.WithDefaults().Prefixed(cfg.Metrics.Namespace)
	sink := otelsink.New(otel.Meter("demoserver"), otelsink.DefaultHints(names))

	record, err := httpmetrics.New(sink, httpmetrics.Config{
		Namespace:      cfg.Metrics.Namespace,
		UnmatchedMask:  cfg.Metrics.UnmatchedMask,
		DisableMasking: cfg.Metrics.DisableMasking,
		ExcludePaths:   cfg.Metrics.ExcludePaths,
		ExcludeStatus:  cfg.Metrics.ExcludeStatus,
		ConstLabels:    map[string]string{"service": "demoserver"},
	})
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", otelsink.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// All posts in one language share a label: /posts/en/{slug}.
	mux.Handle("GET /posts/{language}/{slug}", httpmetrics.KeepParams("language")(
		http.HandlerFunc(postHandler)))
	mux.HandleFunc("GET /users/{id}", userHandler)
	mux.Handle("GET /stream", http.HandlerFunc(streamHandler))

	// Auth is route-local, so a 401 is still recorded against the matched
	// /admin/{section} template rather than the mask label.
	auth := middleware.Auth([]byte(cfg.AuthSecret), "/admin/")
	mux.Handle("GET /admin/{section}", auth(http.HandlerFunc(adminHandler)))

	// The instrumentation wraps the router directly; the middleware above it
	// must not replace the request or the recorded route match is lost.
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery,
		middleware.MaxBodySize(1<<20),
		record,
	)

	srv := server.New(cfg.Addr, handler)
	slog.Info("demoserver starting", "addr", cfg.Addr, "namespace", cfg.Metrics.Namespace)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}

	if err := shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}

func postHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"language": r.PathValue("language"),
		"slug":     r.PathValue("slug"),
	})
}

func userHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": r.PathValue("id")})
}

func streamHandler(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	for i := 0; i < 4; i++ {
		w.Write([]byte("chunk of streamed data\n"))
		rc.Flush()
	}
}

func adminHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"section": r.PathValue("section")})
}
