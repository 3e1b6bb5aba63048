// Package router resolves an incoming (endpoint, Host, path) triple
// to a concrete route, per spec.md §4.4. Virtual-host selection lives
// on config.ServerConfig itself (config.ResolveVHost); this package
// owns the longest-prefix, segment-aligned route match.
package router

import (
	"strings"

	"github.com/nullware/webserv/internal/config"
)

// Resolution is the outcome of a routing decision.
type Resolution struct {
	VHost *config.VirtualHost
	Route *config.Route // nil => no matching route (404)
}

// Resolve implements spec.md §4.4.
func Resolve(cfg *config.ServerConfig, ep config.ListenerEndpoint, hostHeader, path string) Resolution {
	vhost := cfg.ResolveVHost(ep, hostHeader)
	if vhost == nil {
		return Resolution{}
	}
	route := bestRoute(vhost, path)
	return Resolution{VHost: vhost, Route: route}
}

// bestRoute finds the longest segment-aligned prefix match, ties
// broken by declaration order (first declared wins).
func bestRoute(vhost *config.VirtualHost, path string) *config.Route {
	var best *config.Route
	bestLen := -1
	for _, r := range vhost.Routes {
		if !segmentAlignedPrefix(r.Prefix, path) {
			continue
		}
		if len(r.Prefix) > bestLen {
			bestLen = len(r.Prefix)
			best = r
		}
	}
	return best
}

// segmentAlignedPrefix reports whether prefix is a prefix of path on
// a path-segment boundary: "/up" must not match "/upload".
func segmentAlignedPrefix(prefix, path string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	if rest == "" {
		return true
	}
	return rest[0] == '/'
}
