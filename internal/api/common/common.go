// Package common holds the pieces every internal/api/* handler set
// shares: the Route/middleware-chain shape, JSON response helpers, and
// the authenticated-caller context key, mirroring the teacher's
// internal/api/v1/common.
package common

import "net/http"

// ContextKey namespaces context.Context values this package sets.
type ContextKey string

const (
	// CallerContextKey is where WithAuth stores the request's
	// authenticated caller (spec §1: "an opaque authenticated caller").
	CallerContextKey ContextKey = "caller"
)

// ErrorResponse is the standard JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Route is one HTTP route: a path, method, handler, and the
// middleware chain it runs under. internal/api/snowflake,
// internal/api/ui, and internal/api/auth each expose a Routes()
// []Route that the server wires into its mux.
type Route struct {
	Path       string
	Method     string
	Handler    http.HandlerFunc
	Middleware []func(http.HandlerFunc) http.HandlerFunc
}

// Chain applies a route's middleware around its handler, outermost
// first, matching the order routes list them in.
func (r Route) Chain() http.HandlerFunc {
	h := r.Handler
	for i := len(r.Middleware) - 1; i >= 0; i-- {
		h = r.Middleware[i](h)
	}
	return h
}
