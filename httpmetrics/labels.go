package httpmetrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Label is a single metric dimension.
type Label struct {
	Key   string
	Value string
}

// LabelSet is an ordered list of labels. The standard labels (route, method,
// status, protocol fields) always come first, followed by the configured
// constant labels sorted by key, so the same logical event always produces
// the same key order.
type LabelSet []Label

// sortedConstLabels turns a constant-label map into a slice with a stable,
// key-sorted order. Built once at middleware construction.
func sortedConstLabels(m map[string]string) []Label {
	labels := make([]Label, 0, len(m))
	for k, v := range m {
		labels = append(labels, Label{Key: k, Value: v})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Key < labels[j].Key })
	return labels
}

// routePatterns holds the two candidate route labels captured for a request.
type routePatterns struct {
	// mixed is the matched pattern with allow-listed parameters replaced by
	// their literal values and all others left as placeholders. Equals the
	// raw path when no route matched.
	mixed string
	// fallback is the unmodified matched pattern, or the raw path when no
	// route matched.
	fallback string
	matched  bool
}

// buildPatterns derives the candidate route labels for a request.
//
// path is the raw request path, pattern the router's matched template ("" if
// no route matched), params the parameter values bound by the match, and
// keep the set of parameter names whose literal values should be preserved
// in the label. A substitution failure falls back to the unmodified pattern;
// it never fails the request.
func buildPatterns(path, pattern string, params map[string]string, keep map[string]bool, warn func(msg string, args ...any)) routePatterns {
	if pattern == "" {
		return routePatterns{mixed: path, fallback: path}
	}

	mixed, err := substitutePattern(pattern, params, keep)
	if err != nil {
		warn("cannot build mixed cardinality route label", "pattern", pattern, "error", err)
		mixed = pattern
	}
	return routePatterns{mixed: mixed, fallback: pattern, matched: true}
}

// finalLabel applies the post-resolution correction and masking steps.
//
// A 404 or 405 on a label that differs from the fallback means the router
// accepted a prefix but rejected the sub-match, so the fallback label is
// used to avoid recording a misleadingly matched route. Masking applies
// only to requests that never matched a route at all, after the correction
// step, so corrected 404/405 responses keep their fallback label.
func (rp routePatterns) finalLabel(status int, mask string, maskEnabled bool) string {
	label := rp.mixed
	if rp.fallback != rp.mixed && (status == http.StatusNotFound || status == http.StatusMethodNotAllowed) {
		label = rp.fallback
	}
	if !rp.matched && maskEnabled {
		label = mask
	}
	return label
}

// substitutePattern rewrites a route template, substituting the literal
// value for every parameter named in keep and leaving the placeholder token
// for the rest. It reports an error for unbalanced braces or a kept
// parameter with no bound value.
func substitutePattern(pattern string, params map[string]string, keep map[string]bool) (string, error) {
	if len(keep) == 0 {
		return pattern, nil
	}

	var b strings.Builder
	b.Grow(len(pattern))
	rest := pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return "", fmt.Errorf("unbalanced '}' in pattern %q", pattern)
			}
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unbalanced '{' in pattern %q", pattern)
		}
		end += open

		b.WriteString(rest[:open])
		token := rest[open : end+1]
		name := paramName(token)
		if name != "" && keep[name] {
			val, ok := params[name]
			if !ok {
				return "", fmt.Errorf("no value bound for parameter %q in pattern %q", name, pattern)
			}
			b.WriteString(val)
		} else {
			b.WriteString(token)
		}
		rest = rest[end+1:]
	}
}

// paramName extracts the parameter name from a "{name}" token. Returns ""
// for tokens that do not bind a parameter, such as "{$}".
func paramName(token string) string {
	name := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
	name = strings.TrimSuffix(name, "...")
	if name == "" || name == "$" {
		return ""
	}
	return name
}
