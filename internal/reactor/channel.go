package reactor

import "sync/atomic"

// Tie is the weak-reference guard described in spec.md section 4.2 and
// the glossary: a Channel consults it before dispatching so a Connection
// mid-destruction never receives a stale callback. Go has no native weak
// pointer, so the tie is modeled as an atomic liveness flag owned by the
// tied object; Upgrade reports whether the owner is still alive.
type Tie struct {
	alive atomic.Bool
}

// NewTie returns a Tie initialized as alive; the owner calls Drop when
// it begins destruction.
func NewTie() *Tie {
	t := &Tie{}
	t.alive.Store(true)
	return t
}

// Upgrade reports whether the tied owner still considers itself alive.
func (t *Tie) Upgrade() bool {
	if t == nil {
		return true // no tie installed: behave as always-alive
	}
	return t.alive.Load()
}

// Drop marks the tied owner as gone; subsequent Upgrade calls fail.
func (t *Tie) Drop() {
	if t != nil {
		t.alive.Store(false)
	}
}

// Callbacks groups the per-event handlers a Channel dispatches to.
type Callbacks struct {
	OnReadable func()
	OnWritable func()
	OnError    func()
	OnClose    func()
}

// Channel binds one fd to one owning EventLoop, tracking the interest
// mask the loop has registered with the poller and the callbacks invoked
// on readiness (spec.md section 3, "Channel").
type Channel struct {
	loop     *EventLoop
	fd       int
	interest Event
	tie      *Tie
	cb       Callbacks
}

// NewChannel constructs a Channel for fd, owned by loop. The channel
// starts with no interest registered; callers enable readability/
// writability via EnableReading/EnableWriting.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd}
}

// Fd returns the bound file descriptor.
func (c *Channel) Fd() int { return c.fd }

// SetCallbacks installs the event handlers. Must be called from the
// owning loop's thread, same as every other Channel mutation.
func (c *Channel) SetCallbacks(cb Callbacks) { c.cb = cb }

// SetTie installs a weak back-reference consulted before dispatch.
func (c *Channel) SetTie(t *Tie) { c.tie = t }

// EnableReading adds readability (EPOLLIN and EPOLLPRI; read-hangup is
// not requested) to the interest mask and pushes the update to the
// loop's poller.
func (c *Channel) EnableReading() {
	c.interest |= EventReadable
	c.update()
}

// DisableReading removes readability from the interest mask.
func (c *Channel) DisableReading() {
	c.interest &^= EventReadable
	c.update()
}

// EnableWriting adds writability to the interest mask.
func (c *Channel) EnableWriting() {
	c.interest |= EventWritable
	c.update()
}

// DisableWriting removes writability from the interest mask.
func (c *Channel) DisableWriting() {
	c.interest &^= EventWritable
	c.update()
}

// IsWriting reports whether writability is currently in the interest
// mask, used by TcpConnection to decide between the direct-write fast
// path and the buffered path (spec.md section 4.6).
func (c *Channel) IsWriting() bool { return c.interest&EventWritable != 0 }

// Remove clears all interest, unregistering the fd from the poller.
func (c *Channel) Remove() {
	c.interest = 0
	c.update()
}

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// HandleEvent dispatches one ready mask per the fixed order spec.md
// section 4.2 requires: hangup-without-readable, then error, then
// readable/priority/read-hangup, then writable. Before any dispatch, a
// failed tie upgrade drops the event.
func (c *Channel) HandleEvent(mask Event) {
	if !c.tie.Upgrade() {
		return
	}

	if mask&EventHangup != 0 && mask&EventReadable == 0 {
		if c.cb.OnClose != nil {
			c.cb.OnClose()
		}
		return
	}

	if mask&EventError != 0 {
		if c.cb.OnError != nil {
			c.cb.OnError()
		}
	}

	if mask&(EventReadable|EventReadHangup) != 0 {
		if c.cb.OnReadable != nil {
			c.cb.OnReadable()
		}
	}

	if mask&EventWritable != 0 {
		if c.cb.OnWritable != nil {
			c.cb.OnWritable()
		}
	}
}
