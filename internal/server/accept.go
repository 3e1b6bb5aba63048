package server

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nullware/webserv/internal/config"
	"github.com/nullware/webserv/internal/conn"
	"github.com/nullware/webserv/internal/reactor"
)

// acceptLoop implements spec.md §4.2: accept in a loop until EAGAIN,
// tolerating per-accept failures (including fd exhaustion per §5)
// without ever deregistering the listener itself.
func (s *Server) acceptLoop(listenFD int, ep config.ListenerEndpoint) {
	if s.draining {
		return
	}
	for {
		fd, peer, err := acceptOne(listenFD)
		if err != nil {
			if err == unix.EMFILE || err == unix.ENFILE {
				s.log.Warn("fd exhaustion on accept, backing off", zap.Error(err))
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}
		if fd < 0 {
			return // EAGAIN: accept queue drained
		}

		now := time.Now()
		c := conn.New(fd, ep, peer, s.cfg.IdleTimeout, now)
		if err := s.reactor.Register(fd, reactor.Readable); err != nil {
			s.log.Warn("register new connection failed", zap.Error(err))
			unix.Close(fd)
			continue
		}
		s.conns.Put(c)
		s.deadlines.Set(connDeadlineKey(fd), c.Deadline)
		if s.metrics != nil {
			s.metrics.ConnectionAccepted()
		}
	}
}
