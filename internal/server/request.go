package server

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nullware/webserv/internal/cgi"
	"github.com/nullware/webserv/internal/config"
	"github.com/nullware/webserv/internal/conn"
	"github.com/nullware/webserv/internal/handlers"
	"github.com/nullware/webserv/internal/httpproto"
	"github.com/nullware/webserv/internal/reactor"
	"github.com/nullware/webserv/internal/router"
)

// handleReadable advances c's read side, feeding bytes to whichever
// parse stage c.Phase names (spec.md §4.3). Outside the two request
// phases there is nothing to read for: the next request is not parsed
// until the previous response has fully drained (spec.md §3).
func (s *Server) handleReadable(c *conn.Connection) {
	switch c.Phase {
	case conn.PhaseReadingHeaders, conn.PhaseReadingBody:
	default:
		return
	}

	buf := make([]byte, s.cfg.ReadChunkBytes)
	n, err := unix.Read(c.FD, buf)
	if n > 0 {
		c.ReadBuf = append(c.ReadBuf, buf[:n]...)
		s.touchDeadline(c)
	}
	if n == 0 && err == nil {
		s.closeConnection(c)
		return
	}
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		s.closeConnection(c)
		return
	}

	switch c.Phase {
	case conn.PhaseReadingHeaders:
		s.tryParseHeaders(c)
	case conn.PhaseReadingBody:
		s.tryParseBody(c)
	}
}

func (s *Server) touchDeadline(c *conn.Connection) {
	c.Deadline = time.Now().Add(s.cfg.IdleTimeout)
	s.deadlines.Set(connDeadlineKey(c.FD), c.Deadline)
}

func (s *Server) tryParseHeaders(c *conn.Connection) {
	end, found, overflow := httpproto.FindHeaderEnd(c.ReadBuf)
	if overflow {
		s.finishWithError(c, nil, 400)
		return
	}
	if !found {
		return
	}

	head, err := httpproto.ParseHead(c.ReadBuf[:end])
	if err != nil {
		s.finishWithError(c, nil, 400)
		return
	}
	c.ConsumeRead(end)

	framing, err := httpproto.DetermineFraming(head.Header)
	if err != nil {
		s.finishWithError(c, nil, 400)
		return
	}

	vhost := s.cfg.ResolveVHost(c.Endpoint, head.Host)
	if vhost == nil {
		s.log.Error("no virtual host available", zap.String("endpoint", c.Endpoint.String()))
		s.finishWithError(c, nil, 500)
		return
	}

	if framing.HasBody && !framing.Chunked && framing.ContentLength > vhost.BodySizeLimit {
		s.finishWithError(c, vhost, 413)
		return
	}

	explicit, wantsClose := httpproto.WantsClose(head.Header)
	keepAlive := httpproto.KeepAliveDefault(head.Proto)
	if explicit {
		keepAlive = !wantsClose
	}
	c.KeepAlive = keepAlive
	c.Proto = head.Proto

	req := &conn.RequestContext{Head: head, Framing: framing, VHost: vhost}
	if framing.Chunked {
		req.Chunked = &httpproto.ChunkedDecoder{}
	}
	c.InFlight = req

	if !framing.HasBody {
		req.BodyDone = true
		s.dispatch(c)
		return
	}
	c.Phase = conn.PhaseReadingBody
	s.tryParseBody(c)
}

func (s *Server) tryParseBody(c *conn.Connection) {
	req := c.InFlight
	limit := req.VHost.BodySizeLimit

	if req.Framing.Chunked {
		consumed, err := req.Chunked.Feed(c.ReadBuf)
		c.ConsumeRead(consumed)
		if err != nil {
			s.finishWithError(c, req.VHost, 400)
			return
		}
		if int64(len(req.Chunked.Data)) > limit {
			s.finishWithError(c, req.VHost, 413)
			return
		}
		if !req.Chunked.Done {
			return
		}
		req.Body = req.Chunked.Data
	} else {
		need := req.Framing.ContentLength
		take := int64(len(c.ReadBuf))
		if rem := need - int64(len(req.Body)); take > rem {
			take = rem
		}
		if take > 0 {
			req.Body = append(req.Body, c.ReadBuf[:take]...)
			c.ConsumeRead(int(take))
		}
		if int64(len(req.Body)) > limit {
			s.finishWithError(c, req.VHost, 413)
			return
		}
		if int64(len(req.Body)) < need {
			return
		}
	}

	req.BodyDone = true
	s.dispatch(c)
}

// dispatch implements spec.md §4.4/§4.5/§4.6: resolve a route, apply
// the method gate and any redirect, then hand off to the matching
// handler or the CGI bridge.
func (s *Server) dispatch(c *conn.Connection) {
	c.Phase = conn.PhaseDispatching
	s.updateInterest(c)

	req := c.InFlight
	head := req.Head
	method := config.Method(head.Method)
	targetPath, query := splitTarget(head.Target)

	res := router.Resolve(s.cfg, c.Endpoint, head.Host, targetPath)
	if res.Route == nil {
		s.finishWithResult(c, handlers.ErrorResult(404))
		return
	}
	req.Route = res.Route

	if gate, ok := handlers.MethodGate(res.Route, method); !ok {
		s.finishWithResult(c, gate)
		return
	}
	if res.Route.Redirect != "" {
		s.finishWithResult(c, handlers.ServeRedirect(res.Route))
		return
	}

	if res.Route.CGIInterpreter != "" {
		if fsPath, scriptURL, pathInfo, ok := handlers.ResolveCGIScript(targetPath, res.Route.Prefix, res.Route.Root); ok {
			if method != config.MethodGet && method != config.MethodPost {
				r := handlers.ErrorResult(405)
				r.Header.Set("Allow", "GET, POST")
				s.finishWithResult(c, r)
				return
			}
			s.startCGI(c, fsPath, scriptURL, pathInfo, query)
			return
		}
	}

	switch method {
	case config.MethodGet:
		s.finishWithResult(c, handlers.ServeStatic(res.Route, targetPath))
	case config.MethodPost:
		s.finishWithResult(c, handlers.ServeUpload(res.Route, head.Header.Get("Content-Type"), head.Header.Get("X-Filename"), req.Body))
	case config.MethodDelete:
		s.finishWithResult(c, handlers.ServeDelete(res.Route, targetPath))
	default:
		r := handlers.ErrorResult(405)
		r.Header.Set("Allow", res.Route.AllowHeader())
		s.finishWithResult(c, r)
	}
}

// startCGI implements spec.md §4.6's "Spawned" step: fork the
// interpreter, wire its three pipes into the reactor, and prime stdin
// with the already-buffered (de-chunked) request body.
func (s *Server) startCGI(c *conn.Connection, scriptFSPath, scriptURLPath, pathInfo, query string) {
	req := c.InFlight
	env := cgi.BuildEnv(cgi.EnvParams{
		Method:         req.Head.Method,
		ScriptName:     scriptURLPath,
		PathInfo:       pathInfo,
		QueryString:    query,
		ContentLength:  contentLengthOf(req),
		ContentType:    req.Head.Header.Get("Content-Type"),
		Headers:        req.Head.Header,
		ServerSoftware: s.cfg.ServerSoftware,
		ServerName:     req.Head.Host,
		ServerPort:     strconv.Itoa(c.Endpoint.Port),
		RemoteAddr:     peerHost(c.PeerAddr),
		RequestID:      uuid.NewString(),
	})

	proc, err := cgi.Spawn(req.Route.CGIInterpreter, scriptFSPath, filepath.Dir(scriptFSPath), env)
	if err != nil {
		s.log.Warn("cgi spawn failed", zap.String("script", scriptFSPath), zap.Error(err))
		if s.metrics != nil {
			s.metrics.CGISpawnError()
		}
		s.finishWithResult(c, handlers.ErrorResult(502))
		return
	}
	if s.metrics != nil {
		s.metrics.CGISpawned()
	}

	proc.StdinBuf = req.Body
	if len(proc.StdinBuf) == 0 {
		proc.StdinBuf = nil
		proc.StdinCursor = 0
		proc.StdinClosed = true
		proc.StdinW.Close()
	}
	proc.Deadline = time.Now().Add(s.cfg.CGITimeout)

	c.CGI = proc
	c.ChunkedOut = true
	s.deadlines.Set(cgiDeadlineKey(c.FD), proc.Deadline)

	stdinFD, stdoutFD, stderrFD := int(proc.StdinW.Fd()), int(proc.StdoutR.Fd()), int(proc.StderrR.Fd())
	s.cgiOwner[stdoutFD] = c.FD
	s.cgiOwner[stderrFD] = c.FD
	_ = s.reactor.Register(stdoutFD, reactor.Readable)
	_ = s.reactor.Register(stderrFD, reactor.Readable)
	if !proc.StdinClosed {
		s.cgiOwner[stdinFD] = c.FD
		_ = s.reactor.Register(stdinFD, reactor.Writable)
	}
}

func contentLengthOf(req *conn.RequestContext) int64 {
	if !req.Framing.HasBody {
		return -1
	}
	if req.Framing.Chunked {
		return int64(len(req.Body))
	}
	return req.Framing.ContentLength
}

func peerHost(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}

func splitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}
