package configfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nullware/webserv/internal/config"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "webserv.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeTemp(t, `
listen:
  - "0.0.0.0:8080"
vhost:
  - name: example.com
    route:
      - prefix: "/"
        methods: ["GET"]
        root: "/srv/www"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ep := config.ListenerEndpoint{Host: "0.0.0.0", Port: 8080}
	vhosts := cfg.VHosts[ep]
	if len(vhosts) != 1 {
		t.Fatalf("expected 1 vhost, got %d", len(vhosts))
	}
	if len(vhosts[0].Routes) != 1 || vhosts[0].Routes[0].Root != "/srv/www" {
		t.Fatalf("unexpected route: %+v", vhosts[0].Routes)
	}
	if cfg.IdleTimeout != defaultIdleTimeout {
		t.Fatalf("expected default idle timeout, got %v", cfg.IdleTimeout)
	}
}

func TestLoadRejectsMultipleDefaults(t *testing.T) {
	path := writeTemp(t, `
listen:
  - "0.0.0.0:8080"
vhost:
  - name: a.example
    default: true
    route:
      - prefix: "/"
        methods: ["GET"]
        root: "/srv/a"
  - name: b.example
    default: true
    route:
      - prefix: "/"
        methods: ["GET"]
        root: "/srv/b"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for two default vhosts on the same endpoint")
	}
}

func TestLoadRejectsNoListeners(t *testing.T) {
	path := writeTemp(t, `
vhost:
  - name: example.com
    route:
      - prefix: "/"
        methods: ["GET"]
        root: "/srv/www"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when no listen addresses are configured")
	}
}

func TestLoadRejectsUnsupportedMethod(t *testing.T) {
	path := writeTemp(t, `
listen:
  - "0.0.0.0:8080"
vhost:
  - name: example.com
    route:
      - prefix: "/"
        methods: ["PATCH"]
        root: "/srv/www"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported method")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestPerVHostListenOverride(t *testing.T) {
	// Both endpoints stay populated: the default vhost serves the
	// global listener, and the second vhost overrides onto its own
	// port, so neither endpoint is orphaned (configfile.validateDefault
	// rejects an endpoint with zero vhosts).
	path := writeTemp(t, `
listen:
  - "0.0.0.0:8080"
vhost:
  - name: example.com
    default: true
    route:
      - prefix: "/"
        methods: ["GET"]
        root: "/srv/www"
  - name: admin.example.com
    listen:
      - "0.0.0.0:9090"
    route:
      - prefix: "/"
        methods: ["GET"]
        root: "/srv/admin"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	override := config.ListenerEndpoint{Host: "0.0.0.0", Port: 9090}
	if len(cfg.VHosts[override]) != 1 || cfg.VHosts[override][0].Routes[0].Root != "/srv/admin" {
		t.Fatalf("expected admin vhost registered under overridden endpoint, got %+v", cfg.VHosts[override])
	}
	global := config.ListenerEndpoint{Host: "0.0.0.0", Port: 8080}
	if len(cfg.VHosts[global]) != 1 || cfg.VHosts[global][0].Routes[0].Root != "/srv/www" {
		t.Fatalf("expected default vhost still attached to the global endpoint, got %+v", cfg.VHosts[global])
	}
}
