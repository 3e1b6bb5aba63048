package server

import (
	"bufio"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/nullware/webserv/internal/config"
)

// TestIndexGETSetsSessionCookie is spec.md §8 scenario 1: a GET of /
// against an index.html fixture gets a byte-exact body and a
// Set-Cookie bearing a session id on the first response.
func TestIndexGETSetsSessionCookie(t *testing.T) {
	root := t.TempDir()
	body := "<h1>Hi</h1>\n"
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte(body), 0o644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}
	route := &config.Route{Prefix: "/", Methods: map[config.Method]bool{config.MethodGet: true}, Root: root, DefaultFile: "index.html"}
	vhost := &config.VirtualHost{Names: map[string]bool{"localhost": true}, Default: true, Routes: []*config.Route{route}}
	addr := startTestServer(t, vhost)

	conn := dial(t, addr)
	defer conn.Close()

	raw := "GET / HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Length"); got != strconv.Itoa(len(body)) {
		t.Fatalf("expected Content-Length %d, got %q", len(body), got)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != body {
		t.Fatalf("expected body %q, got %q", body, got)
	}
	if sc := resp.Header.Get("Set-Cookie"); !strings.Contains(sc, "SID=") {
		t.Fatalf("expected Set-Cookie with SID=, got %q", sc)
	}
}

// TestUnsupportedMethodReturns405WithAllow is spec.md §8 scenario 2.
func TestUnsupportedMethodReturns405WithAllow(t *testing.T) {
	root := t.TempDir()
	route := &config.Route{Prefix: "/", Methods: map[config.Method]bool{config.MethodGet: true, config.MethodPost: true}, Root: root}
	vhost := &config.VirtualHost{Names: map[string]bool{"localhost": true}, Default: true, Routes: []*config.Route{route}}
	addr := startTestServer(t, vhost)

	conn := dial(t, addr)
	defer conn.Close()

	raw := "PATCH / HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 405 {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "GET, POST" {
		t.Fatalf("expected Allow: GET, POST, got %q", allow)
	}
}

// TestOversizedUploadOverBodySizeLimit is spec.md §8 scenario 4: a
// declared length over the limit is rejected with 413 and the
// connection is closed.
func TestOversizedUploadOverBodySizeLimit(t *testing.T) {
	root := t.TempDir()
	uploadRoute := &config.Route{Prefix: "/upload", Methods: map[config.Method]bool{config.MethodPost: true}, Root: root}
	vhost := &config.VirtualHost{
		Names:         map[string]bool{"localhost": true},
		Default:       true,
		Routes:        []*config.Route{uploadRoute},
		BodySizeLimit: 10 << 20,
	}
	addr := startTestServer(t, vhost)

	conn := dial(t, addr)
	defer conn.Close()

	raw := "POST /upload HTTP/1.1\r\nHost: localhost\r\nContent-Length: 12582912\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 413 {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
	if resp.Close != true && resp.Header.Get("Connection") != "close" {
		t.Fatalf("expected connection to be closed on 413")
	}
}

// TestIdempotentGETYieldsByteIdenticalResponses is spec.md §8's
// idempotence property: repeated GETs of the same static file return
// byte-identical bodies (only bodies are compared, so the Date header
// set on every response does not matter).
func TestIdempotentGETYieldsByteIdenticalResponses(t *testing.T) {
	vhost, _ := newStaticVHost(t, map[string]string{"same.txt": "constant payload"})
	addr := startTestServer(t, vhost)

	fetch := func() string {
		conn := dial(t, addr)
		defer conn.Close()
		req, _ := http.NewRequest("GET", "http://localhost/same.txt", nil)
		req.Host = "localhost"
		if err := req.Write(conn); err != nil {
			t.Fatalf("write request: %v", err)
		}
		resp, err := http.ReadResponse(bufio.NewReader(conn), req)
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		return string(body)
	}

	first := fetch()
	second := fetch()
	if first != "constant payload" || second != first {
		t.Fatalf("expected identical bodies across requests, got %q then %q", first, second)
	}
}

// TestUploadDeleteThenGETIs404 is spec.md §8's round-trip property's
// second half: DELETE then GET returns 404.
func TestUploadDeleteThenGETIs404(t *testing.T) {
	root := t.TempDir()
	// GET and DELETE share one "/" route: of two routes with the same
	// prefix only the first declared one is ever selected.
	getRoute := &config.Route{Prefix: "/", Methods: map[config.Method]bool{config.MethodGet: true, config.MethodDelete: true}, Root: root}
	uploadRoute := &config.Route{Prefix: "/upload", Methods: map[config.Method]bool{config.MethodPost: true}, Root: root}
	vhost := &config.VirtualHost{
		Names:   map[string]bool{"localhost": true},
		Default: true,
		Routes:  []*config.Route{getRoute, uploadRoute},
	}
	addr := startTestServer(t, vhost)

	upload := dial(t, addr)
	defer upload.Close()
	body := []byte("to be deleted")
	req, _ := http.NewRequest("POST", "http://localhost/upload", strings.NewReader(string(body)))
	req.Header.Set("X-Filename", "gone.txt")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(body))
	if err := req.Write(upload); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	uploadResp, err := http.ReadResponse(bufio.NewReader(upload), req)
	if err != nil {
		t.Fatalf("read upload response: %v", err)
	}
	io.Copy(io.Discard, uploadResp.Body)
	uploadResp.Body.Close()
	if uploadResp.StatusCode != 200 {
		t.Fatalf("expected 200 on upload, got %d", uploadResp.StatusCode)
	}

	del := dial(t, addr)
	defer del.Close()
	delReq, _ := http.NewRequest("DELETE", "http://localhost/gone.txt", nil)
	delReq.Header.Set("Connection", "close")
	if err := delReq.Write(del); err != nil {
		t.Fatalf("write delete: %v", err)
	}
	delResp, err := http.ReadResponse(bufio.NewReader(del), delReq)
	if err != nil {
		t.Fatalf("read delete response: %v", err)
	}
	io.Copy(io.Discard, delResp.Body)
	delResp.Body.Close()
	if delResp.StatusCode != 200 && delResp.StatusCode != 204 {
		t.Fatalf("expected 200/204 on delete, got %d", delResp.StatusCode)
	}

	get := dial(t, addr)
	defer get.Close()
	getReq, _ := http.NewRequest("GET", "http://localhost/gone.txt", nil)
	getReq.Header.Set("Connection", "close")
	if err := getReq.Write(get); err != nil {
		t.Fatalf("write get: %v", err)
	}
	getResp, err := http.ReadResponse(bufio.NewReader(get), getReq)
	if err != nil {
		t.Fatalf("read get response: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != 404 {
		t.Fatalf("expected 404 after delete, got %d", getResp.StatusCode)
	}
}
