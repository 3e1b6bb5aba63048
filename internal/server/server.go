// Package server wires the reactor, connection table, HTTP parser,
// router, handlers, CGI bridge, session issuer, and deadline manager
// into the single-threaded event loop described in spec.md §2 and §5.
package server

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/nullware/webserv/internal/config"
	"github.com/nullware/webserv/internal/conn"
	"github.com/nullware/webserv/internal/deadline"
	"github.com/nullware/webserv/internal/metrics"
	"github.com/nullware/webserv/internal/reactor"
)

// Server owns the whole runtime: one reactor, one connection table,
// the listening sockets, and live CGI pipe ownership (via connections).
type Server struct {
	cfg     *config.ServerConfig
	log     *zap.Logger
	metrics *metrics.Recorder

	reactor   *reactor.Reactor
	conns     *conn.Table
	deadlines *deadline.Manager

	listenerEndpoints map[int]config.ListenerEndpoint
	listenerFDs       []int

	// cgiOwner maps a CGI pipe fd back to the owning connection's fd,
	// per spec.md §9 "the reactor looks up owning connection by fd".
	cgiOwner map[int]int

	// pendingReap holds connection fds whose CGI child's stdout hit
	// EOF before wait4 reported it exited; retried every turn.
	pendingReap map[int]bool

	draining bool
}

// New constructs a Server bound to cfg. Call Listen before Run.
func New(cfg *config.ServerConfig, log *zap.Logger, rec *metrics.Recorder) (*Server, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:               cfg,
		log:               log,
		metrics:           rec,
		reactor:           r,
		conns:             conn.NewTable(),
		deadlines:         deadline.New(),
		listenerEndpoints: make(map[int]config.ListenerEndpoint),
		cgiOwner:          make(map[int]int),
		pendingReap:       make(map[int]bool),
	}, nil
}

// Listen binds every configured endpoint and registers it with the
// reactor for readability (spec.md §3 "at least one [endpoint] must exist").
func (s *Server) Listen() error {
	for _, ep := range s.cfg.Endpoints {
		fd, err := bindListener(ep)
		if err != nil {
			return err
		}
		if err := s.reactor.Register(fd, reactor.Readable); err != nil {
			return err
		}
		s.listenerEndpoints[fd] = ep
		s.listenerFDs = append(s.listenerFDs, fd)
		s.log.Info("listening", zap.String("endpoint", ep.String()))
	}
	return nil
}

// Shutdown stops accepting new connections; in-flight responses are
// still allowed to drain (SPEC_FULL.md §7.5).
func (s *Server) Shutdown() {
	s.draining = true
	for _, fd := range s.listenerFDs {
		_ = s.reactor.Deregister(fd)
		unix.Close(fd)
	}
	s.listenerFDs = nil
}

// Idle reports whether there is nothing left to drain, so a graceful
// shutdown loop knows when it is safe to return.
func (s *Server) Idle() bool {
	return s.conns.Len() == 0
}

// Run executes the reactor loop until stop is closed or, if draining,
// until every connection has finished. It never returns an error for
// ordinary per-connection failures (spec.md §6 "Process exit").
func (s *Server) Run(stop <-chan struct{}) error {
	events := make([]reactor.Event, 0, 256)
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if s.draining && s.Idle() {
			return nil
		}

		now := time.Now()
		timeout := s.deadlines.Next(now)
		pollStart := now
		batch, err := s.reactor.Poll(timeout, events)
		if err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.ObservePoll(time.Since(pollStart))
		}
		for _, ev := range batch {
			s.dispatchEvent(ev)
		}
		s.sweepDeadlines(time.Now())
		s.retryPendingReaps()
	}
}

func (s *Server) dispatchEvent(ev reactor.Event) {
	if ep, ok := s.listenerEndpoints[ev.FD]; ok {
		s.acceptLoop(ev.FD, ep)
		return
	}
	if ownerFD, ok := s.cgiOwner[ev.FD]; ok {
		c, ok := s.conns.Get(ownerFD)
		if !ok {
			return
		}
		s.handleCGIEvent(c, ev)
		return
	}
	c, ok := s.conns.Get(ev.FD)
	if !ok {
		return
	}
	if ev.Err {
		s.closeConnection(c)
		return
	}
	if ev.Writable {
		s.handleWritable(c)
	}
	if ev.Readable && c.Phase != conn.PhaseClosing {
		s.handleReadable(c)
	}
}

func (s *Server) sweepDeadlines(now time.Time) {
	for _, key := range s.deadlines.Expired(now) {
		switch k := key.(type) {
		case connDeadlineKey:
			if c, ok := s.conns.Get(int(k)); ok {
				s.handleConnDeadline(c)
			}
		case cgiDeadlineKey:
			if c, ok := s.conns.Get(int(k)); ok && c.CGI != nil {
				s.handleCGITimeout(c)
			}
		}
	}
}

type connDeadlineKey int
type cgiDeadlineKey int
