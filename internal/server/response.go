package server

import (
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nullware/webserv/internal/config"
	"github.com/nullware/webserv/internal/conn"
	"github.com/nullware/webserv/internal/handlers"
	"github.com/nullware/webserv/internal/httpproto"
	"github.com/nullware/webserv/internal/reactor"
	"github.com/nullware/webserv/internal/session"
)

// closingStatus reports whether status is one of the ones spec.md §7
// marks "close" to avoid framing ambiguity after an error.
func closingStatus(status int) bool {
	switch status {
	case 400, 413, 500, 502, 504:
		return true
	default:
		return false
	}
}

// finishWithError queues a built-in (or custom, once vhost is known)
// error page for connections that failed before a route was resolved.
func (s *Server) finishWithError(c *conn.Connection, vhost *config.VirtualHost, status int) {
	s.queueResponse(c, handlers.ApplyCustomErrorPage(vhost, status, handlers.ErrorResult(status)))
}

// finishWithResult is a handler's verdict reaching the wire: it
// applies the vhost's custom error page mapping (if any applies) and
// queues the response.
func (s *Server) finishWithResult(c *conn.Connection, result handlers.Result) {
	if result.Status >= 400 {
		var vhost *config.VirtualHost
		if c.InFlight != nil {
			vhost = c.InFlight.VHost
		}
		result = handlers.ApplyCustomErrorPage(vhost, result.Status, result)
	}
	s.queueResponse(c, result)
}

// queueResponse implements spec.md §4.8: status line, Date/Server/
// Connection/framing headers, the session cookie if owed, and the
// body (buffered or streamed).
func (s *Server) queueResponse(c *conn.Connection, result handlers.Result) {
	now := time.Now()
	keepAlive := c.KeepAlive && !result.ForceClose && !closingStatus(result.Status)

	header := result.Header
	if header == nil {
		header = make(httpproto.Header)
	}
	for k, v := range httpproto.BaseHeaders(s.cfg.ServerSoftware, keepAlive, now) {
		if header.Count(k) == 0 {
			header[k] = v
		}
	}
	if result.AllowOverride != "" {
		header.Set("Allow", result.AllowOverride)
	}

	if req := c.InFlight; req != nil && !session.HasSession(req.Head.Header.Get("Cookie")) {
		if sid, err := session.New(); err == nil {
			header.Add("Set-Cookie", session.SetCookieHeader(sid))
		} else {
			s.log.Warn("session id generation failed", zap.Error(err))
		}
	}

	proto := c.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}

	if result.Stream != nil {
		header.Set("Content-Length", strconv.FormatInt(result.StreamLength, 10))
		c.AppendWrite(httpproto.EncodeHead(httpproto.ResponseHead{Status: result.Status, Header: header, Proto: proto}))
		c.StreamSrc = result.Stream
		c.StreamRemaining = result.StreamLength
		s.fillFromStream(c)
	} else {
		header.Set("Content-Length", strconv.Itoa(len(result.Body)))
		c.AppendWrite(httpproto.EncodeHead(httpproto.ResponseHead{Status: result.Status, Header: header, Proto: proto}))
		c.AppendWrite(result.Body)
	}

	c.KeepAlive = keepAlive
	c.Phase = conn.PhaseWritingResponse
	s.updateInterest(c)

	if s.metrics != nil {
		s.metrics.RequestCompleted(result.Status)
	}
}

// fillFromStream tops WriteBuf up from an active streaming body
// source (currently: static files) in bounded chunks, per spec.md §5.
func (s *Server) fillFromStream(c *conn.Connection) {
	if c.StreamSrc == nil {
		return
	}
	for len(c.WriteBuf) < s.cfg.WriteBufferCap && c.StreamRemaining > 0 {
		chunk := handlers.StreamChunkSize
		if int64(chunk) > c.StreamRemaining {
			chunk = int(c.StreamRemaining)
		}
		buf := make([]byte, chunk)
		n, err := c.StreamSrc.Read(buf)
		if n > 0 {
			c.AppendWrite(buf[:n])
			c.StreamRemaining -= int64(n)
		}
		if err != nil {
			c.StreamSrc.Close()
			c.StreamSrc = nil
			return
		}
		if n == 0 {
			return
		}
	}
	if c.StreamRemaining == 0 {
		c.StreamSrc.Close()
		c.StreamSrc = nil
	}
}

// handleWritable drains WriteBuf to the socket, refilling from an
// active stream when room frees up, and completes the response once
// both are empty and nothing else (e.g. a live CGI pipe) is still
// feeding the buffer.
func (s *Server) handleWritable(c *conn.Connection) {
	if len(c.WriteBuf) > 0 {
		n, err := unix.Write(c.FD, c.WriteBuf)
		if n > 0 {
			c.WriteBuf = c.WriteBuf[n:]
			s.touchDeadline(c)
		}
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.closeConnection(c)
			return
		}
	}

	if c.StreamSrc != nil && len(c.WriteBuf) < s.cfg.WriteBufferCap {
		s.fillFromStream(c)
	}

	if len(c.WriteBuf) > 0 || c.StreamSrc != nil {
		s.updateInterest(c)
		return
	}

	switch c.Phase {
	case conn.PhaseWritingResponse:
		s.finishResponse(c)
	case conn.PhaseClosing:
		s.closeConnection(c)
	default:
		// Still Dispatching: a CGI response is mid-flight and more
		// chunks are expected from the child's stdout.
		s.updateInterest(c)
	}
}

// finishResponse implements spec.md §4.8's post-drain transition. A
// pipelined client may have already had its next request's bytes land
// in ReadBuf during some earlier read; with level-triggered epoll and
// no further bytes arriving on the wire, nothing will ever re-signal
// this fd as readable, so the leftover bytes must be parsed here
// rather than waiting for the next readable event (spec.md §4.8,
// §8 "pipelined requests ... produce responses in request order").
func (s *Server) finishResponse(c *conn.Connection) {
	if !c.KeepAlive {
		s.closeConnection(c)
		return
	}
	now := time.Now()
	c.ResetForNextRequest(s.cfg.IdleTimeout, now)
	s.deadlines.Set(connDeadlineKey(c.FD), c.Deadline)
	s.updateInterest(c)
	if len(c.ReadBuf) > 0 {
		s.tryParseHeaders(c)
	}
}

// updateInterest reconciles a connection's epoll interest set with its
// current phase and buffer state (spec.md §3's registration invariant).
func (s *Server) updateInterest(c *conn.Connection) {
	var interest reactor.Interest
	switch c.Phase {
	case conn.PhaseReadingHeaders, conn.PhaseReadingBody:
		interest = reactor.Readable
	}
	if len(c.WriteBuf) > 0 {
		interest |= reactor.Writable
	}
	if err := s.reactor.Modify(c.FD, interest); err != nil {
		s.log.Debug("modify connection interest failed", zap.Int("fd", c.FD), zap.Error(err))
	}
}
