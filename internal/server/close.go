package server

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nullware/webserv/internal/conn"
)

// closeConnection tears down c: deregisters its fd (and any owned
// CGI pipes) before closing, per spec.md §4.1's "deregister before
// close" rule, and forgets its deadline.
func (s *Server) closeConnection(c *conn.Connection) {
	c.Phase = conn.PhaseClosing
	if c.CGI != nil {
		s.releaseCGI(c)
	}
	_ = s.reactor.Deregister(c.FD)
	unix.Close(c.FD)
	s.conns.Remove(c.FD)
	s.deadlines.Cancel(connDeadlineKey(c.FD))
	delete(s.pendingReap, c.FD)
	if s.metrics != nil {
		s.metrics.ConnectionClosed()
	}
}

// releaseCGI deregisters and closes a connection's CGI pipes and
// kills the child if it is still running. The child dies with its
// owning connection, per spec.md §9.
func (s *Server) releaseCGI(c *conn.Connection) {
	p := c.CGI
	for _, fd := range []int{int(p.StdinW.Fd()), int(p.StdoutR.Fd()), int(p.StderrR.Fd())} {
		_ = s.reactor.Deregister(fd)
		delete(s.cgiOwner, fd)
	}
	if !p.Exited {
		p.Kill()
	}
	p.Close()
	s.deadlines.Cancel(cgiDeadlineKey(c.FD))
	c.CGI = nil
}

// handleConnDeadline implements spec.md §5's idle-timeout enforcement:
// if headers have not yet been sent, the connection is closed
// silently; otherwise any in-progress response is truncated and the
// connection closed.
func (s *Server) handleConnDeadline(c *conn.Connection) {
	s.log.Debug("connection idle timeout", zap.Int("fd", c.FD), zap.String("phase", c.Phase.String()))
	s.closeConnection(c)
}
