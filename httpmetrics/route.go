package httpmetrics

import (
	"net/http"
	"strings"
)

// RouteInfo describes the router's match result for a request.
type RouteInfo struct {
	// Pattern is the matched route template, e.g. "/posts/{language}/{slug}".
	// Empty if no route matched.
	Pattern string
	// Params maps each parameter name in the template to the literal value
	// bound by the match.
	Params map[string]string
}

// RouteInfoFunc extracts the router's match result from a request. It is
// called after the inner handler has run, so the router has recorded its
// match on the request by then.
type RouteInfoFunc func(r *http.Request) RouteInfo

// muxRouteInfo reads the match recorded by net/http's ServeMux. The method
// and host prefixes of the pattern are stripped so the route label is the
// path template alone.
func muxRouteInfo(r *http.Request) RouteInfo {
	pat := patternPath(r.Pattern)
	if pat == "" {
		return RouteInfo{}
	}
	var params map[string]string
	for _, name := range patternParamNames(pat) {
		if params == nil {
			params = make(map[string]string)
		}
		params[name] = r.PathValue(name)
	}
	return RouteInfo{Pattern: pat, Params: params}
}

// patternPath strips the optional "METHOD " and host prefixes from a
// ServeMux pattern, leaving the path template.
func patternPath(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimLeft(pattern[i+1:], " ")
	}
	if pattern == "" || pattern[0] == '/' {
		return pattern
	}
	// Host-qualified pattern, e.g. "example.com/path".
	if i := strings.IndexByte(pattern, '/'); i >= 0 {
		return pattern[i:]
	}
	return pattern
}

// patternParamNames lists the parameter names bound by a path template, in
// order of appearance.
func patternParamNames(pattern string) []string {
	var names []string
	rest := pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return names
		}
		if name := paramName(rest[open : open+end+1]); name != "" {
			names = append(names, name)
		}
		rest = rest[open+end+1:]
	}
}

type cardinalityKey struct{}

// cardinalityOverride is seeded into the request context by the middleware
// and filled in by KeepParams as the request passes through the route's own
// handler chain, so the terminal hook can read it on the way out.
type cardinalityOverride struct {
	keep []string
}

// KeepParams returns route-local middleware that preserves the literal
// values of the named path parameters in the route label, instead of their
// placeholders. Attach it to individual route registrations:
//
//	mux.Handle("GET /posts/{language}/{slug}",
//		httpmetrics.KeepParams("language")(handler))
//
// Every parameter not named here keeps its placeholder, bounding the label
// cardinality of the route.
func KeepParams(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o, ok := r.Context().Value(cardinalityKey{}).(*cardinalityOverride); ok {
				o.keep = names
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keepSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
