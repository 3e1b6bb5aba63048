// Package handlers implements spec.md §4.5: static file service,
// autoindex, upload (raw and multipart), delete, and redirect, plus
// the method gate and the built-in/custom error page fallback chain.
package handlers

import (
	"io"

	"github.com/nullware/webserv/internal/httpproto"
)

// Result is a handler's verdict: a status, headers, and a body either
// fully buffered (Body) or streamed in bounded chunks (Stream, with
// known length carried separately so Content-Length can be set up
// front, per spec.md §4.5's "stream in bounded chunks" requirement).
type Result struct {
	Status        int
	Header        httpproto.Header
	Body          []byte
	Stream        io.ReadCloser
	StreamLength  int64
	ForceClose    bool
	AllowOverride string // non-empty sets the Allow header (405 responses)
}

func newResult(status int, body []byte) Result {
	return Result{Status: status, Header: make(httpproto.Header), Body: body}
}

// StreamChunkSize caps a single read from a streaming body source, so
// a handler never performs unbounded work within one reactor turn
// (spec.md §5).
const StreamChunkSize = 64 * 1024
