// Package configfile reads the YAML configuration document into the
// immutable config.ServerConfig tree the core consumes, per spec.md §6
// and SPEC_FULL.md §6.1. It is deliberately the only package that
// imports gopkg.in/yaml.v3 — nothing downstream ever sees raw YAML.
package configfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nullware/webserv/internal/config"
)

const (
	defaultIdleTimeout    = 10 * time.Second
	defaultCGITimeout     = 30 * time.Second
	defaultBodySizeLimit  = 10 << 20 // 10 MiB
	defaultServerSoftware = "webserv/1.0"
	defaultWriteBufferCap = 1 << 20 // 1 MiB, spec.md §5's soft cap
	defaultReadChunkBytes = 64 << 10
)

// Load reads and validates path, returning the fully-materialized
// configuration. Any error here is meant to be fatal to the process
// (spec.md §6 "Process exit").
func Load(path string) (*config.ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configfile: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("configfile: parse %s: %w", path, err)
	}
	return build(&fc)
}

func build(fc *fileConfig) (*config.ServerConfig, error) {
	globalEndpoints, err := parseEndpoints(fc.Listen)
	if err != nil {
		return nil, err
	}
	if len(globalEndpoints) == 0 {
		return nil, fmt.Errorf("configfile: at least one listen endpoint is required")
	}

	cfg := &config.ServerConfig{
		Endpoints:      globalEndpoints,
		VHosts:         make(map[config.ListenerEndpoint][]*config.VirtualHost),
		IdleTimeout:    durationOrDefault(fc.IdleTimeoutSeconds, defaultIdleTimeout),
		CGITimeout:     durationOrDefault(fc.CGITimeoutSeconds, defaultCGITimeout),
		ServerSoftware: stringOrDefault(fc.ServerSoftware, defaultServerSoftware),
		MaxHeaderBytes: 8 << 10,
		WriteBufferCap: defaultWriteBufferCap,
		ReadChunkBytes: defaultReadChunkBytes,
	}

	bodyLimit := fc.ClientBodySizeLimit
	if bodyLimit <= 0 {
		bodyLimit = defaultBodySizeLimit
	}

	known := make(map[config.ListenerEndpoint]bool, len(globalEndpoints))
	for _, ep := range globalEndpoints {
		known[ep] = true
	}
	for _, fv := range fc.VHosts {
		vhost, err := buildVHost(fv, bodyLimit)
		if err != nil {
			return nil, err
		}
		endpoints := globalEndpoints
		if len(fv.Listen) > 0 {
			endpoints, err = parseEndpoints(fv.Listen)
			if err != nil {
				return nil, err
			}
		}
		for _, ep := range endpoints {
			cfg.VHosts[ep] = append(cfg.VHosts[ep], vhost)
			if !known[ep] {
				known[ep] = true
				cfg.Endpoints = append(cfg.Endpoints, ep)
			}
		}
	}

	for _, ep := range cfg.Endpoints {
		if err := validateDefault(ep, cfg.VHosts[ep]); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func buildVHost(fv fileVHost, fallbackBodyLimit int64) (*config.VirtualHost, error) {
	names := make(map[string]bool, len(fv.Names)+1)
	if fv.Name != "" {
		names[fv.Name] = true
	}
	for _, n := range fv.Names {
		names[n] = true
	}

	bodyLimit := fv.BodySizeLimit
	if bodyLimit <= 0 {
		bodyLimit = fallbackBodyLimit
	}

	vhost := &config.VirtualHost{
		Names:         names,
		Default:       fv.Default,
		ErrorPages:    fv.ErrorPages,
		BodySizeLimit: bodyLimit,
	}
	for _, fr := range fv.Routes {
		route, err := buildRoute(fr)
		if err != nil {
			return nil, err
		}
		vhost.Routes = append(vhost.Routes, route)
	}
	return vhost, nil
}

func buildRoute(fr fileRoute) (*config.Route, error) {
	if fr.Prefix == "" {
		return nil, fmt.Errorf("configfile: route missing prefix")
	}
	methods := make(map[config.Method]bool, len(fr.Methods))
	for _, m := range fr.Methods {
		switch strings.ToUpper(m) {
		case "GET":
			methods[config.MethodGet] = true
		case "POST":
			methods[config.MethodPost] = true
		case "DELETE":
			methods[config.MethodDelete] = true
		default:
			return nil, fmt.Errorf("configfile: route %s: unsupported method %q", fr.Prefix, m)
		}
	}
	return &config.Route{
		Prefix:         fr.Prefix,
		Methods:        methods,
		Root:           fr.Root,
		DefaultFile:    fr.DefaultFile,
		Autoindex:      fr.Autoindex,
		Redirect:       fr.Redirect,
		CGIInterpreter: fr.CGI,
	}, nil
}

// validateDefault enforces spec.md §3's "one vhost per endpoint is
// implicitly the default": zero explicit defaults falls back to the
// first declared vhost (config.ServerConfig.DefaultVHost already does
// this at request time); more than one explicit default is ambiguous
// and rejected at load time rather than silently picked.
func validateDefault(ep config.ListenerEndpoint, vhosts []*config.VirtualHost) error {
	if len(vhosts) == 0 {
		return fmt.Errorf("configfile: endpoint %s has no virtual hosts", ep)
	}
	defaults := 0
	for _, v := range vhosts {
		if v.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("configfile: endpoint %s declares more than one default vhost", ep)
	}
	return nil
}

func parseEndpoints(addrs []string) ([]config.ListenerEndpoint, error) {
	seen := make(map[config.ListenerEndpoint]bool, len(addrs))
	out := make([]config.ListenerEndpoint, 0, len(addrs))
	for _, addr := range addrs {
		ep, err := parseEndpoint(addr)
		if err != nil {
			return nil, err
		}
		if seen[ep] {
			continue
		}
		seen[ep] = true
		out = append(out, ep)
	}
	return out, nil
}

func parseEndpoint(addr string) (config.ListenerEndpoint, error) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		return config.ListenerEndpoint{}, fmt.Errorf("configfile: invalid listen address %q", addr)
	}
	host, portStr := addr[:idx], addr[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return config.ListenerEndpoint{}, fmt.Errorf("configfile: invalid port in %q", addr)
	}
	return config.ListenerEndpoint{Host: host, Port: port}, nil
}

func durationOrDefault(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func stringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
