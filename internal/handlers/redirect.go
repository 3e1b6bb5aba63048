package handlers

import "github.com/nullware/webserv/internal/config"

// ServeRedirect implements spec.md §4.5: a 302 to route.Redirect,
// regardless of method (still subject to the method gate upstream).
func ServeRedirect(route *config.Route) Result {
	r := newResult(302, nil)
	r.Header.Set("Location", route.Redirect)
	r.Header.Set("Content-Length", "0")
	return r
}

// MethodGate implements spec.md §4.5's "Method gate": 405 with an
// Allow header listing the route's methods when m is not permitted.
func MethodGate(route *config.Route, method config.Method) (Result, bool) {
	if route.AllowsMethod(method) {
		return Result{}, true
	}
	r := ErrorResult(405)
	r.Header.Set("Allow", route.AllowHeader())
	return r, false
}
