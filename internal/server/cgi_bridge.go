package server

import (
	"errors"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nullware/webserv/internal/cgi"
	"github.com/nullware/webserv/internal/conn"
	"github.com/nullware/webserv/internal/handlers"
	"github.com/nullware/webserv/internal/httpproto"
	"github.com/nullware/webserv/internal/reactor"
	"github.com/nullware/webserv/internal/session"
)

// handleCGIEvent dispatches a readiness event on one of c's three CGI
// pipes to the matching lifecycle step of spec.md §4.6.
func (s *Server) handleCGIEvent(c *conn.Connection, ev reactor.Event) {
	p := c.CGI
	if p == nil {
		return
	}
	switch ev.FD {
	case int(p.StdinW.Fd()):
		s.handleCGIStdin(c, ev)
	case int(p.StderrR.Fd()):
		s.drainCGIStderr(c)
	case int(p.StdoutR.Fd()):
		s.handleCGIStdout(c, ev)
	}
}

// handleCGIStdin implements spec.md §4.6's "StreamingIn" step.
func (s *Server) handleCGIStdin(c *conn.Connection, ev reactor.Event) {
	p := c.CGI
	fd := int(p.StdinW.Fd())
	if ev.Err {
		p.StdinClosed = true
		_ = s.reactor.Deregister(fd)
		delete(s.cgiOwner, fd)
		return
	}
	if err := p.DrainStdin(); err != nil {
		s.log.Debug("cgi stdin write failed", zap.Int("pid", p.Pid), zap.Error(err))
	}
	if p.StdinClosed {
		_ = s.reactor.Deregister(fd)
		delete(s.cgiOwner, fd)
	}
}

// drainCGIStderr discards the child's stderr (spec.md §4.6: "stderr is
// drained and discarded"), logging whatever it wrote for diagnostics.
func (s *Server) drainCGIStderr(c *conn.Connection) {
	p := c.CGI
	buf := make([]byte, 4096)
	n, err := p.StderrR.Read(buf)
	if n > 0 {
		s.log.Debug("cgi stderr", zap.Int("pid", p.Pid), zap.ByteString("data", buf[:n]))
	}
	if err == nil {
		return
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return
	}
	fd := int(p.StderrR.Fd())
	_ = s.reactor.Deregister(fd)
	delete(s.cgiOwner, fd)
}

// handleCGIStdout implements spec.md §4.6's "StreamingOut"/"PipingBody"
// steps: accumulate until the CGI header terminator is found, send the
// head once, then re-frame every further read as one chunked-transfer
// chunk straight onto the connection's write buffer.
func (s *Server) handleCGIStdout(c *conn.Connection, ev reactor.Event) {
	p := c.CGI
	_, eof, err := p.ReadStdout(handlers.StreamChunkSize)
	if err != nil {
		s.log.Debug("cgi stdout read failed", zap.Int("pid", p.Pid), zap.Error(err))
		eof = true
	}

	if !p.HeadParsed {
		ok, perr := p.TryParseHead()
		if perr != nil {
			s.abortCGI(c, 502)
			return
		}
		if !ok {
			if eof {
				s.abortCGI(c, 502)
			}
			return
		}
		s.sendCGIHead(c, p)
	}

	if body := p.TakeStdoutBody(); len(body) > 0 {
		c.AppendWrite(httpproto.EncodeChunk(body))
		s.updateInterest(c)
	}

	if eof {
		fd := int(p.StdoutR.Fd())
		_ = s.reactor.Deregister(fd)
		delete(s.cgiOwner, fd)
		s.reapCGI(c)
	}
}

// sendCGIHead queues the status line and headers for a CGI response,
// always framed as chunked since the body length is unknown up front.
func (s *Server) sendCGIHead(c *conn.Connection, p *cgi.Process) {
	header := p.HeadHeaders
	if header == nil {
		header = make(httpproto.Header)
	}
	for k, v := range httpproto.BaseHeaders(s.cfg.ServerSoftware, c.KeepAlive, time.Now()) {
		if header.Count(k) == 0 {
			header[k] = v
		}
	}
	header.Del("Content-Length")
	header.Set("Transfer-Encoding", "chunked")

	if req := c.InFlight; req != nil && !session.HasSession(req.Head.Header.Get("Cookie")) {
		if sid, err := session.New(); err == nil {
			header.Add("Set-Cookie", session.SetCookieHeader(sid))
		}
	}

	proto := c.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	c.AppendWrite(httpproto.EncodeHead(httpproto.ResponseHead{Status: p.HeadStatus, Header: header, Proto: proto}))
	s.updateInterest(c)
	if s.metrics != nil {
		s.metrics.RequestCompleted(p.HeadStatus)
	}
}

// reapCGI implements spec.md §4.6's "Reaping" step: a non-blocking
// wait4 once stdout has hit EOF. If the child has not yet exited, the
// attempt is retried on subsequent reactor turns via s.pendingReap
// rather than blocking here.
func (s *Server) reapCGI(c *conn.Connection) {
	p := c.CGI
	exited, err := p.Reap()
	if err != nil {
		s.log.Warn("cgi reap failed", zap.Int("pid", p.Pid), zap.Error(err))
	}
	if !exited && err == nil {
		s.pendingReap[c.FD] = true
		return
	}
	s.completeCGI(c)
}

// retryPendingReaps is polled once per reactor turn (Run's main loop)
// for children whose stdout closed before they had actually exited.
func (s *Server) retryPendingReaps() {
	if len(s.pendingReap) == 0 {
		return
	}
	for fd := range s.pendingReap {
		c, ok := s.conns.Get(fd)
		if !ok || c.CGI == nil {
			delete(s.pendingReap, fd)
			continue
		}
		exited, err := c.CGI.Reap()
		if exited || err != nil {
			delete(s.pendingReap, fd)
			s.completeCGI(c)
		}
	}
}

// completeCGI finishes a CGI response that produced a head: a non-zero
// exit after the head was committed still ends the chunked stream
// normally (spec.md §4.6 step 5).
func (s *Server) completeCGI(c *conn.Connection) {
	p := c.CGI
	if p.ExitCode != 0 {
		s.log.Warn("cgi exited non-zero", zap.Int("pid", p.Pid), zap.Int("code", p.ExitCode))
	}
	c.AppendWrite(httpproto.FinalChunk)
	s.finishCGI(c)
}

// abortCGI implements the "before head ⇒ 502" branch of spec.md §4.6
// step 5: nothing has reached the wire yet, so an ordinary buffered
// error response replaces the chunked stream.
func (s *Server) abortCGI(c *conn.Connection, status int) {
	delete(s.pendingReap, c.FD)
	s.releaseCGI(c)
	c.ChunkedOut = false
	s.finishWithResult(c, handlers.ErrorResult(status))
}

// finishCGI releases the child's pipes and hands the connection back
// to the ordinary write-drain path.
func (s *Server) finishCGI(c *conn.Connection) {
	s.releaseCGI(c)
	c.ChunkedOut = false
	c.Phase = conn.PhaseWritingResponse
	s.updateInterest(c)
}

// handleCGITimeout implements spec.md §4.6 step 6: SIGKILL the child;
// if no head has been sent yet, answer 504; otherwise the chunked body
// is closed without a terminating empty chunk and the connection dies.
func (s *Server) handleCGITimeout(c *conn.Connection) {
	p := c.CGI
	if p == nil {
		return
	}
	s.log.Warn("cgi timeout", zap.Int("pid", p.Pid))
	p.Kill()
	delete(s.pendingReap, c.FD)
	if s.metrics != nil {
		s.metrics.CGITimedOut()
	}

	if !p.HeadParsed {
		s.abortCGI(c, 504)
		return
	}

	s.releaseCGI(c)
	c.ChunkedOut = false
	c.KeepAlive = false
	c.Phase = conn.PhaseClosing
	s.updateInterest(c)
	if len(c.WriteBuf) == 0 {
		s.closeConnection(c)
	}
}
