// Package httpproto implements the HTTP/1.1 wire format: an
// incremental, buffer-driven request parser and a response encoder.
// Unlike a blocking reader, ParseHead never reads from a socket
// itself — it is handed whatever bytes the reactor has accumulated so
// far and reports whether it needs more.
package httpproto

import (
	"strings"
	"unicode"
)

// Header is a case-insensitive multi-map of header fields.
type Header map[string][]string

// CanonicalHeaderKey title-cases a header name: "content-type" -> "Content-Type".
func CanonicalHeaderKey(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		for j := 1; j < len(r); j++ {
			r[j] = unicode.ToLower(r[j])
		}
		parts[i] = string(r)
	}
	return strings.Join(parts, "-")
}

func (h Header) Add(key, value string) {
	k := CanonicalHeaderKey(key)
	h[k] = append(h[k], value)
}

func (h Header) Set(key, value string) {
	h[CanonicalHeaderKey(key)] = []string{value}
}

func (h Header) Get(key string) string {
	v := h[CanonicalHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (h Header) Values(key string) []string {
	return h[CanonicalHeaderKey(key)]
}

func (h Header) Del(key string) {
	delete(h, CanonicalHeaderKey(key))
}

func (h Header) Count(key string) int {
	return len(h[CanonicalHeaderKey(key)])
}
