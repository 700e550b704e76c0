package tcp

import (
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/vldzyzy/boneserver/internal/buffer"
	"github.com/vldzyzy/boneserver/internal/reactor"
)

// State is the connection lifecycle enum of spec.md section 3;
// transitions are strictly monotone: Connecting -> Connected ->
// Disconnecting -> Disconnected.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

// ConnCallback fires on connection-established and connection-closed
// transitions; MessageCallback fires per readable event once the bytes
// are in the input buffer; WriteCompleteCallback fires once a queued
// send fully drains.
type (
	ConnCallback func(c *Connection)
	// MessageCallback fires after new bytes land in the connection's
	// input buffer; the callback reads (and retrieves) from c.Input()
	// directly rather than receiving a detached copy, so an incremental
	// parser can resume across partial reads without extra copying.
	MessageCallback       func(c *Connection)
	WriteCompleteCallback func(c *Connection)
	CloseCallback         func(c *Connection)
)

// Connection is the per-connection state of spec.md section 3 and
// section 4.6: dual buffers, partial-write handling, graceful shutdown,
// and an opaque user Context slot used by the HTTP layer to attach
// parsing state.
type Connection struct {
	name string
	loop *reactor.EventLoop
	fd   int
	ch   *reactor.Channel
	tie  *reactor.Tie

	local net.Addr
	peer  net.Addr

	input  *buffer.Buffer
	output *buffer.Buffer

	state atomic.Int32
	fault atomic.Bool

	onConnection    ConnCallback
	onMessage       MessageCallback
	onWriteComplete WriteCompleteCallback
	onClose         CloseCallback

	// Context is an opaque per-connection slot; the HTTP application
	// glue stores its parsing HttpContext here (spec.md section 3).
	Context any
}

// New constructs a Connection bound to fd on loop. It does not install
// the channel's read interest; ConnectEstablished does.
func New(loop *reactor.EventLoop, name string, fd int, local, peer net.Addr) *Connection {
	c := &Connection{
		name:   name,
		loop:   loop,
		fd:     fd,
		local:  local,
		peer:   peer,
		input:  buffer.New(),
		output: buffer.New(),
	}
	c.tie = reactor.NewTie()
	c.state.Store(int32(StateConnecting))

	c.ch = reactor.NewChannel(loop, fd)
	c.ch.SetTie(c.tie)
	c.ch.SetCallbacks(reactor.Callbacks{
		OnReadable: c.handleRead,
		OnWritable: c.handleWrite,
		OnError:    c.handleError,
		OnClose:    c.handleClose,
	})
	return c
}

func (c *Connection) Name() string            { return c.name }
func (c *Connection) Loop() *reactor.EventLoop { return c.loop }
func (c *Connection) LocalAddr() net.Addr      { return c.local }
func (c *Connection) PeerAddr() net.Addr       { return c.peer }

// Input returns the connection's input buffer; callers (the HTTP
// application glue) drive an incremental parser against it and call
// Retrieve/RetrieveAll as they consume bytes.
func (c *Connection) Input() *buffer.Buffer { return c.input }

func (c *Connection) State() State { return State(c.state.Load()) }

// IsConnected reports whether the connection is in the Connected state;
// callers (notably inference completion callbacks, spec.md section
// 4.13) must guard socket writes on this before touching the fd.
func (c *Connection) IsConnected() bool { return c.State() == StateConnected }

// SetCallbacks installs the user-facing lifecycle callbacks.
func (c *Connection) SetCallbacks(onConn ConnCallback, onMsg MessageCallback, onWC WriteCompleteCallback, onClose CloseCallback) {
	c.onConnection = onConn
	c.onMessage = onMsg
	c.onWriteComplete = onWC
	c.onClose = onClose
}

// ConnectEstablished transitions Connecting -> Connected, enables read
// interest, and fires the connection callback. Loop-thread only.
func (c *Connection) ConnectEstablished() {
	c.state.Store(int32(StateConnected))
	c.ch.EnableReading()
	if c.onConnection != nil {
		c.onConnection(c)
	}
}

// ConnectDestroyed transitions to Disconnected, removes the channel
// from the multiplexer, and fires the connection callback one last
// time. Loop-thread only.
func (c *Connection) ConnectDestroyed() {
	if c.State() != StateDisconnected {
		c.ch.DisableReading()
		c.ch.DisableWriting()
		c.state.Store(int32(StateDisconnected))
		if c.onConnection != nil {
			c.onConnection(c)
		}
	}
	c.ch.Remove()
	c.tie.Drop()
	_ = unix.Close(c.fd)
}

// Send implements spec.md section 4.6's send algorithm. It may be
// called from any goroutine. It always copies the bytes and posts the
// write to the owning loop through RunInLoop, including when the caller
// is already on that loop; there is no synchronous fast path. The
// posted task attempts a direct non-blocking write when nothing is
// buffered, and buffers the remainder otherwise.
func (c *Connection) Send(data []byte) {
	if c.State() != StateConnected {
		return
	}

	cp := append([]byte(nil), data...)
	c.loop.RunInLoop(func() {
		c.sendInLoop(cp)
	})
}

func (c *Connection) sendInLoop(data []byte) {
	if c.State() == StateDisconnected {
		return
	}

	var (
		n   int
		err error
	)

	if c.output.ReadableBytes() == 0 && !c.ch.IsWriting() {
		n, err = unix.Write(c.fd, data)
		if err != nil {
			if !buffer.IsRetryable(err) {
				if buffer.IsFatal(err) {
					c.fault.Store(true)
				}
				n = 0
			} else {
				n = 0
			}
		}

		if n == len(data) {
			if c.onWriteComplete != nil {
				cb := c.onWriteComplete
				c.loop.QueueInLoop(func() { cb(c) })
			}
			return
		}
	}

	if n < len(data) && !c.fault.Load() {
		c.output.Append(data[n:])
		if !c.ch.IsWriting() {
			c.ch.EnableWriting()
		}
	}
}

// Shutdown transitions Connected -> Disconnecting; the half-close is
// deferred until the output buffer fully drains (spec.md section 4.6).
func (c *Connection) Shutdown() {
	if c.State() == StateConnected {
		c.state.Store(int32(StateDisconnecting))
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *Connection) shutdownInLoop() {
	if !c.ch.IsWriting() {
		_ = unix.Shutdown(c.fd, unix.SHUT_WR)
	}
}

func (c *Connection) handleRead() {
	n, err := c.input.ReadFD(c.fd)
	switch {
	case n > 0:
		if c.onMessage != nil {
			c.onMessage(c)
		}
	case n == 0:
		c.handleClose()
	default:
		if buffer.IsRetryable(err) {
			return
		}
		c.handleError()
	}
}

func (c *Connection) handleWrite() {
	if !c.ch.IsWriting() {
		return
	}

	n, err := c.output.WriteFD(c.fd)
	if err != nil && !buffer.IsRetryable(err) {
		return
	}
	_ = n

	if c.output.ReadableBytes() == 0 {
		c.ch.DisableWriting()
		if c.onWriteComplete != nil {
			cb := c.onWriteComplete
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if c.State() == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *Connection) handleError() {
	c.handleClose()
}

func (c *Connection) handleClose() {
	// Guards against a combined EPOLLERR|EPOLLIN readiness mask (the
	// common RST case) dispatching both OnError and OnReadable in the
	// same HandleEvent call: the first call already moved state off
	// Connected, so the second must not fire onClose again.
	if c.State() != StateConnected {
		return
	}
	c.state.Store(int32(StateDisconnecting))
	c.ch.DisableReading()
	c.ch.DisableWriting()
	if c.onClose != nil {
		c.onClose(c)
	}
}
