// Package conn owns the per-connection state machine described in
// spec.md §3: one Connection value per accepted socket, holding its
// buffers, phase, deadline, and (if applicable) its single in-flight
// request or owned CGI child.
package conn

import (
	"io"
	"time"

	"github.com/nullware/webserv/internal/cgi"
	"github.com/nullware/webserv/internal/config"
	"github.com/nullware/webserv/internal/httpproto"
)

// Phase is a Connection's position in its state machine (spec.md §3).
type Phase int

const (
	PhaseReadingHeaders Phase = iota
	PhaseReadingBody
	PhaseDispatching
	PhaseWritingResponse
	PhaseDraining
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseReadingHeaders:
		return "ReadingHeaders"
	case PhaseReadingBody:
		return "ReadingBody"
	case PhaseDispatching:
		return "Dispatching"
	case PhaseWritingResponse:
		return "WritingResponse"
	case PhaseDraining:
		return "Draining"
	case PhaseClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// RequestContext is the parsed request plus its resolved route and
// whatever streaming body sink/source the handler needs.
type RequestContext struct {
	Head       *httpproto.RequestHead
	Framing    httpproto.BodyFraming
	Body       []byte // accumulated request body (raw POST/upload/CGI stdin source)
	BodyDone   bool
	Chunked    *httpproto.ChunkedDecoder
	VHost      *config.VirtualHost
	Route      *config.Route
	RequestID  string
	SessionNew bool // true => response must Set-Cookie
}

// Connection is one accepted client socket and everything needed to
// advance its state machine across reactor turns.
type Connection struct {
	FD       int
	Endpoint config.ListenerEndpoint
	PeerAddr string

	ReadBuf  []byte
	WriteBuf []byte

	Phase     Phase
	Deadline  time.Time
	KeepAlive bool
	Proto     string // negotiated once headers are parsed
	SessionID string

	InFlight *RequestContext
	CGI      *cgi.Process

	// StreamSrc/StreamRemaining back a static-file response body being
	// drained into WriteBuf in bounded chunks (spec.md §5).
	StreamSrc       io.ReadCloser
	StreamRemaining int64

	// ChunkedOut marks a response whose body is a CGI output still
	// being piped in; the connection stays in Dispatching until the
	// child exits, even once WriteBuf has momentarily drained.
	ChunkedOut bool

	// CloseAfterWrite requests that, once WriteBuf fully drains, the
	// connection closes rather than returning to ReadingHeaders.
	CloseAfterWrite bool
}

// New constructs a fresh Connection in the ReadingHeaders phase with
// the idle deadline set, per spec.md §4.2.
func New(fd int, ep config.ListenerEndpoint, peer string, idleTimeout time.Duration, now time.Time) *Connection {
	return &Connection{
		FD:        fd,
		Endpoint:  ep,
		PeerAddr:  peer,
		Phase:     PhaseReadingHeaders,
		Deadline:  now.Add(idleTimeout),
		KeepAlive: true,
	}
}

// ResetForNextRequest implements the post-drain keep-alive transition
// in spec.md §4.8: leftover pipelined bytes in ReadBuf are preserved,
// the phase returns to ReadingHeaders, and the deadline is refreshed.
func (c *Connection) ResetForNextRequest(idleTimeout time.Duration, now time.Time) {
	c.InFlight = nil
	c.Phase = PhaseReadingHeaders
	c.Deadline = now.Add(idleTimeout)
	c.WriteBuf = nil
}

// ConsumeRead removes the first n bytes of ReadBuf, e.g. once a
// header block or body chunk has been fully handled.
func (c *Connection) ConsumeRead(n int) {
	c.ReadBuf = append(c.ReadBuf[:0], c.ReadBuf[n:]...)
}

// AppendWrite queues bytes to be flushed to the socket.
func (c *Connection) AppendWrite(b []byte) {
	c.WriteBuf = append(c.WriteBuf, b...)
}
