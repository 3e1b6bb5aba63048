package handlers

import (
	"fmt"
	"os"

	"github.com/nullware/webserv/internal/config"
	"github.com/nullware/webserv/internal/httpproto"
)

// ErrorResult builds a plain-text error response with no custom page
// lookup; used where no VirtualHost is known yet (e.g. routing 404s
// before a vhost error_pages mapping can apply) or as a handler's
// direct verdict before the dispatcher applies custom pages.
func ErrorResult(status int) Result {
	body := []byte(fmt.Sprintf("%d %s\n", status, httpproto.StatusText(status)))
	r := newResult(status, body)
	r.Header.Set("Content-Type", "text/plain")
	return r
}

// ApplyCustomErrorPage implements spec.md §7 "error pages": if vhost
// declares a page for this status, try to serve it; on any failure to
// read it, fall back to the built-in body rather than failing the
// response outright (SPEC_FULL.md §7.1).
func ApplyCustomErrorPage(vhost *config.VirtualHost, status int, fallback Result) Result {
	if vhost == nil || vhost.ErrorPages == nil {
		return fallback
	}
	page, ok := vhost.ErrorPages[status]
	if !ok {
		return fallback
	}
	body, err := os.ReadFile(page)
	if err != nil {
		return fallback
	}
	r := newResult(status, body)
	r.Header.Set("Content-Type", contentTypeByExtension(page))
	return r
}
