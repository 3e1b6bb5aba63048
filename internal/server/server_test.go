package server

import (
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nullware/webserv/internal/config"
	"github.com/nullware/webserv/internal/metrics"
)

// freeTCPPort asks the kernel for an ephemeral port by briefly binding
// it with the standard library, then hands it to the raw-socket
// bindListener in listener.go — the same way callers of "listen on
// :0" elsewhere in the Go ecosystem pick a test port.
func freeTCPPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// startTestServer boots a real Server against a loopback socket with
// vhost as its sole virtual host, per the end-to-end scenarios
// described in spec.md §8. The server is stopped automatically when
// the test ends.
func startTestServer(t *testing.T, vhost *config.VirtualHost) string {
	t.Helper()
	port := freeTCPPort(t)
	ep := config.ListenerEndpoint{Host: "127.0.0.1", Port: port}
	cfg := &config.ServerConfig{
		Endpoints:      []config.ListenerEndpoint{ep},
		VHosts:         map[config.ListenerEndpoint][]*config.VirtualHost{ep: {vhost}},
		IdleTimeout:    2 * time.Second,
		CGITimeout:     2 * time.Second,
		ServerSoftware: "webserv-test",
		MaxHeaderBytes: 8 << 10,
		WriteBufferCap: 1 << 20,
		ReadChunkBytes: 4096,
	}

	srv, err := New(cfg, zap.NewNop(), metrics.NewRecorder())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.reactor.MaxIdleWait = 20 * time.Millisecond
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		if err := srv.Run(stop); err != nil {
			t.Logf("server Run returned: %v", err)
		}
		close(done)
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})

	return fmt.Sprintf("127.0.0.1:%d", port)
}

// dial opens a client connection to addr with a generous deadline, so
// a regression that hangs the server (e.g. the pipelining bug this
// package's tests were added to catch) fails the test instead of the
// whole suite.
func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	return conn
}
