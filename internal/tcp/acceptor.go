// Package tcp implements the per-connection pipeline and server plumbing
// of spec.md sections 4.6-4.7 (components C6-C8), grounded on the
// source project's net/acceptor.cc and net/tcpconnection.cc, re-expressed
// over internal/reactor's Channel/EventLoop and internal/buffer's Buffer.
package tcp

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/vldzyzy/boneserver/internal/reactor"
)

// NewConnCallback receives a newly accepted, non-blocking,
// close-on-exec fd and its peer address.
type NewConnCallback func(fd int, peer net.Addr)

// Acceptor owns a non-blocking listening socket wrapped as a Channel on
// its own EventLoop (spec.md section 4.5).
type Acceptor struct {
	loop    *reactor.EventLoop
	channel *reactor.Channel
	listenF int
	idleFD  int
	onConn  NewConnCallback
}

// NewAcceptor binds and listens on addr (host:port), enabling
// SO_REUSEADDR and, if reusePort is true, SO_REUSEPORT.
func NewAcceptor(loop *reactor.EventLoop, addr string, reusePort bool) (*Acceptor, error) {
	fd, err := listen(addr, reusePort)
	if err != nil {
		return nil, err
	}

	idle, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tcp: reserve idle fd: %w", err)
	}

	a := &Acceptor{
		loop:    loop,
		listenF: fd,
		idleFD:  idle,
	}
	a.channel = reactor.NewChannel(loop, fd)
	a.channel.SetCallbacks(reactor.Callbacks{OnReadable: a.handleRead})
	return a, nil
}

// Handler installs the callback invoked once per accepted connection.
func (a *Acceptor) Handler(cb NewConnCallback) { a.onConn = cb }

// Listen enables read interest, starting acceptance.
func (a *Acceptor) Listen() { a.channel.EnableReading() }

// Close releases the listening socket and idle fd.
func (a *Acceptor) Close() error {
	a.channel.Remove()
	_ = unix.Close(a.idleFD)
	return unix.Close(a.listenF)
}

func listen(addr string, reusePort bool) (int, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("tcp: invalid bind address %q: %w", addr, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("tcp: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return 0, fmt.Errorf("tcp: SO_REUSEADDR: %w", err)
	}
	if reusePort {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}

	sa, err := resolveSockaddr(host, port)
	if err != nil {
		_ = unix.Close(fd)
		return 0, err
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, fmt.Errorf("tcp: bind %s: %w", addr, err)
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return 0, fmt.Errorf("tcp: listen %s: %w", addr, err)
	}

	return fd, nil
}

func resolveSockaddr(host, port string) (unix.Sockaddr, error) {
	ipStr := host
	if ipStr == "" {
		ipStr = "0.0.0.0"
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		resolved, err := net.LookupIP(ipStr)
		if err != nil || len(resolved) == 0 {
			return nil, fmt.Errorf("tcp: cannot resolve host %q", host)
		}
		ip = resolved[0]
	}

	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return nil, fmt.Errorf("tcp: invalid port %q", port)
	}

	var addr4 [4]byte
	if v4 := ip.To4(); v4 != nil {
		copy(addr4[:], v4)
		return &unix.SockaddrInet4{Port: p, Addr: addr4}, nil
	}

	var addr16 [16]byte
	copy(addr16[:], ip.To16())
	return &unix.SockaddrInet6{Port: p, Addr: addr16}, nil
}

// handleRead accepts connections in a loop until EAGAIN/EWOULDBLOCK,
// per spec.md section 4.5. On EMFILE/ENFILE it performs the idle-fd
// recovery dance: close the reserved idle descriptor, accept-then-close
// the next pending connection (freeing a kernel queue slot and
// signaling the client), then reopen the idle descriptor.
func (a *Acceptor) handleRead() {
	for {
		connFD, sa, err := unix.Accept4(a.listenF, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EMFILE, unix.ENFILE:
				a.recoverFDExhaustion()
				return
			case unix.EINTR:
				continue
			default:
				return
			}
		}

		if a.onConn != nil {
			a.onConn(connFD, sockaddrToNetAddr(sa))
		} else {
			_ = unix.Close(connFD)
		}
	}
}

func (a *Acceptor) recoverFDExhaustion() {
	_ = unix.Close(a.idleFD)

	if fd, _, err := unix.Accept4(a.listenF, unix.SOCK_CLOEXEC); err == nil {
		_ = unix.Close(fd)
	}

	if idle, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0); err == nil {
		a.idleFD = idle
	}
}

func sockaddrToNetAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	default:
		return nil
	}
}
