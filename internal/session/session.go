// Package session implements spec.md §4.7: issuing an opaque session
// identifier via Set-Cookie on the first response that lacks one.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const cookieName = "SID"

// HasSession reports whether the request already carries a session cookie.
func HasSession(cookieHeader string) bool {
	if cookieHeader == "" {
		return false
	}
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, cookieName+"=") {
			return true
		}
	}
	return false
}

// New generates 128 bits of cryptographic randomness, hex-encoded, as
// required by spec.md §4.7. Collisions are statistically excluded; no
// server-side session table is required or maintained.
func New() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// SetCookieHeader renders the Set-Cookie header value for id.
func SetCookieHeader(id string) string {
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/", cookieName, id)
}
