// Package config holds the fully-materialized, immutable-after-load
// configuration tree the server core consumes. Nothing in this
// package parses text; see internal/configfile for that.
package config

import "time"

// Method is an HTTP method the router understands.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodDelete Method = "DELETE"
)

// ListenerEndpoint is a bound socket address the server accepts on.
type ListenerEndpoint struct {
	Host string
	Port int
}

func (l ListenerEndpoint) String() string {
	if l.Host == "" {
		return ":" + itoa(l.Port)
	}
	return l.Host + ":" + itoa(l.Port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Route is a prefix-addressed rule set within a virtual host.
type Route struct {
	Prefix         string
	Methods        map[Method]bool
	Root           string
	DefaultFile    string
	Autoindex      bool
	Redirect       string
	CGIInterpreter string
}

// AllowsMethod reports whether m is permitted on this route.
func (r *Route) AllowsMethod(m Method) bool {
	return r.Methods[m]
}

// AllowHeader renders the Allow header value, GET/POST/DELETE order.
func (r *Route) AllowHeader() string {
	order := []Method{MethodGet, MethodPost, MethodDelete}
	out := ""
	for _, m := range order {
		if r.Methods[m] {
			if out != "" {
				out += ", "
			}
			out += string(m)
		}
	}
	return out
}

// VirtualHost groups routes under a set of Host-header names.
type VirtualHost struct {
	Names         map[string]bool
	Default       bool
	Routes        []*Route
	ErrorPages    map[int]string
	BodySizeLimit int64
}

// ServerConfig is the top-level, immutable configuration tree.
type ServerConfig struct {
	Endpoints       []ListenerEndpoint
	VHosts          map[ListenerEndpoint][]*VirtualHost
	IdleTimeout     time.Duration
	CGITimeout      time.Duration
	ServerSoftware  string
	MaxHeaderBytes  int
	WriteBufferCap  int
	ReadChunkBytes  int
}

// DefaultVHost returns the implicit default for an endpoint: the
// first VirtualHost marked Default, else the first declared.
func (c *ServerConfig) DefaultVHost(ep ListenerEndpoint) *VirtualHost {
	vhosts := c.VHosts[ep]
	if len(vhosts) == 0 {
		return nil
	}
	for _, v := range vhosts {
		if v.Default {
			return v
		}
	}
	return vhosts[0]
}

// ResolveVHost implements spec.md §4.4 step 1.
func (c *ServerConfig) ResolveVHost(ep ListenerEndpoint, hostHeader string) *VirtualHost {
	name := stripPort(hostHeader)
	for _, v := range c.VHosts[ep] {
		if v.Names[name] {
			return v
		}
	}
	return c.DefaultVHost(ep)
}

func stripPort(host string) string {
	for i := 0; i < len(host); i++ {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
