package server

import (
	"bufio"
	"fmt"
	"net/http"
	"testing"

	"github.com/nullware/webserv/internal/config"
)

// TestOversizedBodyRejectedBefore413 covers spec.md §8's "413 before
// handler": the body-size limit is enforced from Content-Length alone,
// right after headers parse, so an oversized upload never reaches
// ServeUpload at all — the client doesn't even need to send the body.
func TestOversizedBodyRejectedBefore413(t *testing.T) {
	root := t.TempDir()
	uploadRoute := &config.Route{Prefix: "/upload", Methods: map[config.Method]bool{config.MethodPost: true}, Root: root}
	vhost := &config.VirtualHost{
		Names:         map[string]bool{"example.com": true},
		Default:       true,
		Routes:        []*config.Route{uploadRoute},
		BodySizeLimit: 16,
	}
	addr := startTestServer(t, vhost)

	conn := dial(t, addr)
	defer conn.Close()

	raw := fmt.Sprintf("POST /upload HTTP/1.1\r\nHost: example.com\r\nContent-Length: %d\r\nConnection: close\r\n\r\n", 1000)
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	// Deliberately do not write the 1000-byte body: a correct server
	// must reject before waiting for it.

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 413 {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

// TestPathTraversalResolvesUnderRoot covers spec.md §9's traversal
// rejection at the integration level: handlers.ResolveUnderRoot rejects
// the ".." segments of "/../../etc/passwd" lexically, so the request
// gets 403 without anything outside the route root being read.
func TestPathTraversalResolvesUnderRoot(t *testing.T) {
	root := t.TempDir()
	route := &config.Route{Prefix: "/", Methods: map[config.Method]bool{config.MethodGet: true}, Root: root}
	vhost := &config.VirtualHost{Names: map[string]bool{"example.com": true}, Default: true, Routes: []*config.Route{route}}
	addr := startTestServer(t, vhost)

	conn := dial(t, addr)
	defer conn.Close()

	raw := "GET /../../etc/passwd HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 403 {
		t.Fatalf("expected 403 (.. segments rejected lexically), got %d", resp.StatusCode)
	}
}
