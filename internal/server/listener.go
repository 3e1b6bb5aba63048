package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/nullware/webserv/internal/config"
)

// bindListener creates a non-blocking, listening TCP socket for ep
// using raw syscalls rather than net.Listen: the reactor needs full
// ownership of the fd's readiness registration, which does not mix
// safely with the Go runtime's own netpoller underneath net.Listener.
func bindListener(ep config.ListenerEndpoint) (fd int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("server: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: setsockopt SO_REUSEADDR: %w", err)
	}

	ip := net.ParseIP(ep.Host)
	if ep.Host == "" {
		ip = net.IPv4zero
	} else if ip == nil {
		resolved, err := net.ResolveIPAddr("ip4", ep.Host)
		if err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("server: resolve %q: %w", ep.Host, err)
		}
		ip = resolved.IP
	}
	var addr4 [4]byte
	copy(addr4[:], ip.To4())

	sa := &unix.SockaddrInet4{Port: ep.Port, Addr: addr4}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: bind %s: %w", ep, err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: listen %s: %w", ep, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: set nonblocking: %w", err)
	}
	return fd, nil
}

// acceptOne accepts a single pending connection on listenFD, setting
// it non-blocking. Returns (-1, "", nil) when EAGAIN is hit,
// which the accept loop (spec.md §4.2) treats as "drained".
func acceptOne(listenFD int) (fd int, peer string, err error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, "", nil
		}
		return -1, "", err
	}
	peer = peerString(sa)
	return nfd, peer, nil
}

func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port)
	default:
		return "unknown"
	}
}
