package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the demo server.
type Config struct {
	Addr       string
	LogLevel   string
	AuthSecret string
	Metrics    MetricsConfig
}

// MetricsConfig holds the instrumentation knobs exposed via environment.
type MetricsConfig struct {
	Namespace      string
	UnmatchedMask  string
	DisableMasking bool
	ExcludePaths   []string
	ExcludeStatus  []int
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() Config {
	return Config{
		Addr:       envOr("DEMO_ADDR", ":8080"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
		AuthSecret: envOr("AUTH_SECRET", "demo-secret"),
		Metrics: MetricsConfig{
			Namespace:      os.Getenv("METRICS_NAMESPACE"),
			UnmatchedMask:  os.Getenv("METRICS_UNMATCHED_MASK"),
			DisableMasking: envBool("METRICS_DISABLE_MASKING", false),
			ExcludePaths:   envList("METRICS_EXCLUDE_PATHS", []string{"/metrics", "/healthz"}),
			ExcludeStatus:  envInts("METRICS_EXCLUDE_STATUS", nil),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return b
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}

func envInts(key string, fallback []int) []int {
	if v := os.Getenv(key); v != "" {
		var out []int
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				slog.Warn("invalid integer in env var, skipping", "key", key, "value", p)
				continue
			}
			out = append(out, n)
		}
		return out
	}
	return fallback
}
