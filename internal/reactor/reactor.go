// Package reactor implements the process-wide readiness multiplexer
// described in spec.md §4.1: a single epoll instance that surfaces
// batches of ready file descriptors, with a poll timeout clamped to
// the nearest pending deadline so idle/CGI timeouts are enforced
// within one second even with no I/O activity.
package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Interest is the set of readiness events a descriptor is registered for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Event reports a ready descriptor and what it is ready for.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Err      bool // EPOLLERR / EPOLLHUP observed
}

// Reactor owns exactly one epoll instance per process, per spec.md §4.1.
type Reactor struct {
	epfd int
	// MaxIdleWait bounds poll() so deadline sweeps happen at least
	// this often, regardless of the nearest explicit deadline.
	MaxIdleWait time.Duration
}

// New creates the process's single epoll instance.
func New() (*Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Reactor{epfd: fd, MaxIdleWait: time.Second}, nil
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32
	if i&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register adds fd to the interest set.
func (r *Reactor) Register(fd int, interest Interest) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

// Modify changes fd's interest set.
func (r *Reactor) Modify(fd int, interest Interest) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

// Deregister removes fd from the interest set. Callers must
// deregister before close(fd) to avoid stale events, per spec.md §4.1.
func (r *Reactor) Deregister(fd int) error {
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

// Poll blocks until at least one descriptor is ready or timeout
// elapses, clamped to r.MaxIdleWait so deadline enforcement runs at
// least once per that interval (spec.md §4.1).
func (r *Reactor) Poll(timeout time.Duration, out []Event) ([]Event, error) {
	if timeout > r.MaxIdleWait || timeout < 0 {
		timeout = r.MaxIdleWait
	}
	msec := int(timeout / time.Millisecond)
	if msec == 0 && timeout > 0 {
		msec = 1
	}
	raw := make([]unix.EpollEvent, 256)
	n, err := unix.EpollWait(r.epfd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return out[:0], nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	out = out[:0]
	for i := 0; i < n; i++ {
		e := raw[i]
		out = append(out, Event{
			FD:       int(e.Fd),
			Readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Err:      e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return out, nil
}

// Close releases the epoll instance. Callers are responsible for
// having deregistered every fd first.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}
