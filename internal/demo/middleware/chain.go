// Package middleware holds the supporting middleware for the demo server:
// request IDs, logging, panic recovery, bearer auth, and body limits. The
// instrumentation itself lives in the public httpmetrics package.
package middleware

import "net/http"

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in order: the first middleware is the outermost wrapper.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}
