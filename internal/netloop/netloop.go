//go:build linux

// Package netloop is the event loop: a single-threaded, readiness-based
// multiplexer over nonblocking sockets, built directly on epoll via
// golang.org/x/sys/unix rather than Go's goroutine-per-connection net
// package idiom. The spec calls this out as the hard engineering the rest
// of the server sits on — accept loop, partial-read reassembly, heartbeat
// sweep, and deferred teardown across the event-loop/worker-pool boundary —
// so it is built the way the original C++ server built it: raw nonblocking
// file descriptors registered with one epoll instance.
//
// Each iteration:
//  1. epoll_wait up to 1000ms.
//  2. Listener readiness: accept in a loop until EAGAIN.
//  3. Connection readiness: drain the socket; every complete frame the codec
//     yields is handed to Handler on the worker pool.
//  4. A readiness wait that timed out (zero events) triggers a heartbeat
//     sweep.
//  5. The pending-removal list is swept every iteration: deregister from
//     epoll, erase from the connection table, close the fd.
//  6. A shutdown flag, set from outside, ends the loop after its next wait.
package netloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"chatserver/internal/chatlog"
	"chatserver/internal/codec"
	"chatserver/internal/conntable"
	"chatserver/internal/workerpool"
)

const (
	maxEvents          = 1024
	waitTimeoutMillis  = 1000
	heartbeatThreshold = 300 * time.Second
)

// Handler processes one complete inbound message.
type Handler func(h conntable.Handle, payload []byte)

// Loop is the epoll-backed event loop.
type Loop struct {
	epfd     int
	listenFd int

	conns *conntable.Table
	pool  *workerpool.Pool
	log   *chatlog.Logger

	handle  Handler
	onClose func(c conntable.Conn)

	accumulators map[int]*codec.Accumulator
	handleByFd   map[int]conntable.Handle

	shutdown bool
}

// New creates a Loop over listenFd, the already-bound, already-listening fd
// returned by Listen.
func New(listenFd int, conns *conntable.Table, pool *workerpool.Pool, log *chatlog.Logger, handle Handler, onClose func(conntable.Conn)) (*Loop, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("netloop: epoll_create1: %w", err)
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(listenFd),
	}); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("netloop: epoll_ctl add listener: %w", err)
	}

	return &Loop{
		epfd:         epfd,
		listenFd:     listenFd,
		conns:        conns,
		pool:         pool,
		log:          log,
		handle:       handle,
		onClose:      onClose,
		accumulators: make(map[int]*codec.Accumulator),
		handleByFd:   make(map[int]conntable.Handle),
	}, nil
}

// Listen creates, binds, and listens on a nonblocking TCP socket bound to
// every interface on port, with SO_REUSEADDR set, and returns its fd.
func Listen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("netloop: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netloop: setsockopt SO_REUSEADDR: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netloop: bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netloop: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netloop: set nonblocking: %w", err)
	}
	return fd, nil
}

// BoundPort returns the port fd is actually bound to — useful when Listen
// was called with port 0 to let the kernel pick an ephemeral one (tests do
// this to avoid colliding with a fixed port).
func BoundPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("netloop: getsockname: %w", err)
	}
	a4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("netloop: unexpected sockaddr type %T", sa)
	}
	return a4.Port, nil
}

// Stop requests the loop exit after its current iteration.
func (l *Loop) Stop() { l.shutdown = true }

// Run drives the loop until Stop is called. It always closes the listener
// fd and the epoll fd before returning.
func (l *Loop) Run() {
	defer unix.Close(l.epfd)
	defer unix.Close(l.listenFd)

	events := make([]unix.EpollEvent, maxEvents)

	for !l.shutdown {
		n, err := unix.EpollWait(l.epfd, events, waitTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.log.Errorf("epoll_wait: %v", err)
			break
		}

		if n == 0 {
			l.sweepHeartbeats()
		}

		l.sweepPendingRemovals()

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.listenFd {
				l.acceptLoop()
				continue
			}
			l.drain(fd)
		}
	}
}

func (l *Loop) acceptLoop() {
	for {
		connFd, sa, err := unix.Accept(l.listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			l.log.Errorf("accept: %v", err)
			return
		}
		if err := unix.SetNonblock(connFd, true); err != nil {
			unix.Close(connFd)
			continue
		}
		if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, connFd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(connFd),
		}); err != nil {
			l.log.Errorf("epoll_ctl add conn: %v", err)
			unix.Close(connFd)
			continue
		}

		peer := peerAddrString(sa)
		h := l.conns.Insert(connFd, peer, time.Now())
		l.accumulators[connFd] = &codec.Accumulator{}
		l.handleByFd[connFd] = h
	}
}

func peerAddrString(sa unix.Sockaddr) string {
	a4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", a4.Addr[0], a4.Addr[1], a4.Addr[2], a4.Addr[3], a4.Port)
}

func (l *Loop) drain(fd int) {
	acc, ok := l.accumulators[fd]
	if !ok {
		return
	}

	buf := make([]byte, 65536)
	disconnect := false

	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			for _, msg := range acc.Feed(buf[:n]) {
				l.touchAndDispatch(fd, msg)
			}
		}
		if n == 0 {
			disconnect = true
			break
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			disconnect = true
			break
		}
		if n < len(buf) {
			// Short read: the socket is drained for now.
			break
		}
	}

	if disconnect {
		l.teardownFd(fd)
	}
}

func (l *Loop) touchAndDispatch(fd int, payload []byte) {
	h, ok := l.handleByFd[fd]
	if !ok {
		return
	}
	l.conns.Touch(h, time.Now())
	msg := payload
	l.pool.Submit(func() { l.handle(h, msg) })
}

func (l *Loop) teardownFd(fd int) {
	if h, ok := l.handleByFd[fd]; ok {
		l.conns.MarkForRemoval(h)
	}
}

func (l *Loop) sweepHeartbeats() {
	expired := l.conns.HeartbeatExpired(time.Now(), heartbeatThreshold)
	for _, c := range expired {
		l.log.Infof("connection %d timed out after %s of silence", c.Handle, heartbeatThreshold)
		l.conns.MarkForRemoval(c.Handle)
	}
}

func (l *Loop) sweepPendingRemovals() {
	l.conns.SweepPending(func(c conntable.Conn) {
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, c.Fd, nil)
		delete(l.accumulators, c.Fd)
		delete(l.handleByFd, c.Fd)
		unix.Close(c.Fd)
		if l.onClose != nil {
			l.onClose(c)
		}
	})
}

// WriteFd writes data to fd in full, retrying on short writes and on EAGAIN
// (the fd is nonblocking, so a worker-initiated write can transiently see
// the kernel buffer full).
func WriteFd(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		if n == 0 {
			return fmt.Errorf("netloop: write returned 0 for fd %d", fd)
		}
		data = data[n:]
	}
	return nil
}
