package session

import (
	"strings"
	"testing"
)

func TestNewProduces32HexChars(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(id) != 32 {
		t.Fatalf("expected 32 hex chars (128 bits), got %d: %q", len(id), id)
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("id contains non-hex rune %q in %q", r, id)
		}
	}
}

func TestNewIsNotDeterministic(t *testing.T) {
	a, _ := New()
	b, _ := New()
	if a == b {
		t.Fatalf("expected two distinct session ids, got %q twice", a)
	}
}

func TestHasSession(t *testing.T) {
	cases := map[string]bool{
		"":                     false,
		"SID=abc":              true,
		"other=1; SID=abc":     true,
		"SID=abc; other=1":     true,
		"NOTSID=abc":           false,
		"other=1":              false,
	}
	for header, want := range cases {
		if got := HasSession(header); got != want {
			t.Errorf("HasSession(%q) = %v, want %v", header, got, want)
		}
	}
}

func TestSetCookieHeader(t *testing.T) {
	h := SetCookieHeader("deadbeef")
	if !strings.HasPrefix(h, "SID=deadbeef;") {
		t.Fatalf("unexpected cookie header: %q", h)
	}
	if !strings.Contains(h, "HttpOnly") {
		t.Fatalf("expected HttpOnly attribute: %q", h)
	}
}
