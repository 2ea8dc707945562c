package httpmetrics

// DefaultUnmatchedMask is the route label recorded for requests that did not
// match any route, unless masking is reconfigured or disabled.
const DefaultUnmatchedMask = "UNKNOWN"

// MetricNames configures the names of the emitted metrics. Zero-value
// fields use the defaults. The namespace prefix from Config is applied on
// top of these.
type MetricNames struct {
	RequestDuration  string // default "http.server.request.duration"
	RequestBodySize  string // default "http.server.request.body.size"
	ResponseBodySize string // default "http.server.response.body.size"
	ActiveRequests   string // default "http.server.active_requests"
}

// WithDefaults fills in the default name for every empty field. Useful for
// callers that need the resolved names, e.g. to build sink hints.
func (n MetricNames) WithDefaults() MetricNames {
	if n.RequestDuration == "" {
		n.RequestDuration = "http.server.request.duration"
	}
	if n.RequestBodySize == "" {
		n.RequestBodySize = "http.server.request.body.size"
	}
	if n.ResponseBodySize == "" {
		n.ResponseBodySize = "http.server.response.body.size"
	}
	if n.ActiveRequests == "" {
		n.ActiveRequests = "http.server.active_requests"
	}
	return n
}

// Prefixed applies the namespace prefix to every name.
func (n MetricNames) Prefixed(namespace string) MetricNames {
	if namespace == "" {
		return n
	}
	n.RequestDuration = namespace + "_" + n.RequestDuration
	n.RequestBodySize = namespace + "_" + n.RequestBodySize
	n.ResponseBodySize = namespace + "_" + n.ResponseBodySize
	n.ActiveRequests = namespace + "_" + n.ActiveRequests
	return n
}

// LabelNames configures the keys of the standard labels. Zero-value fields
// use the defaults. ProtoVersion is opt-in: leave it empty to omit the
// protocol version label from the histograms.
type LabelNames struct {
	Route        string // default "endpoint"
	Method       string // default "method"
	Status       string // default "status"
	Proto        string // default "proto"; value is e.g. "HTTP/1.1"
	ProtoVersion string // no default; set to a key, e.g. "proto_version", to enable
	Scheme       string // default "scheme"
}

func (l LabelNames) withDefaults() LabelNames {
	if l.Route == "" {
		l.Route = "endpoint"
	}
	if l.Method == "" {
		l.Method = "method"
	}
	if l.Status == "" {
		l.Status = "status"
	}
	if l.Proto == "" {
		l.Proto = "proto"
	}
	if l.Scheme == "" {
		l.Scheme = "scheme"
	}
	return l
}

// Config configures the instrumentation middleware. The zero value is
// usable: default metric and label names, masking of unmatched paths with
// DefaultUnmatchedMask, and no exclusions.
type Config struct {
	// Namespace is prefixed (with an underscore separator) to every metric
	// name.
	Namespace string

	// ConstLabels are appended to every emitted label set, sorted by key.
	ConstLabels map[string]string

	// ExcludePaths lists route labels whose observations are dropped.
	ExcludePaths []string
	// ExcludePatterns lists regular expressions; a route label matching any
	// of them has its observations dropped.
	ExcludePatterns []string
	// ExcludeStatus lists response status codes whose observations are
	// dropped.
	ExcludeStatus []int

	// UnmatchedMask replaces the route label of requests that matched no
	// route. Empty means DefaultUnmatchedMask.
	UnmatchedMask string
	// DisableMasking records the raw request path for unmatched requests
	// instead of the mask. This trades cardinality safety for label
	// fidelity: every distinct unmatched path becomes its own label value.
	DisableMasking bool

	// IncludeScheme adds the URL scheme label to the histogram label sets.
	// The active-request gauge always carries the scheme label.
	IncludeScheme bool

	Names  MetricNames
	Labels LabelNames

	// RouteInfo overrides how the router's match result is read from a
	// request. Defaults to the net/http ServeMux pattern and path values.
	RouteInfo RouteInfoFunc
}
