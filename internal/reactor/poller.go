// Package reactor implements the multi-reactor engine of spec.md section
// 4.2-4.4: an edge-triggered epoll multiplexer (C2), the Channel binding
// one fd to one EventLoop (C3), the single-threaded EventLoop reactor
// (C4), and a round-robin LoopPool (C5). It is grounded on the source
// project's net/epoller.cc + net/eventloop.cc, re-expressed over
// golang.org/x/sys/unix's raw epoll wrappers instead of libevent-style
// callbacks.
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Event is the readiness mask reported for one fd by one Poll call.
type Event uint32

const (
	EventReadable Event = 1 << iota
	EventWritable
	EventError
	EventHangup
	EventReadHangup
)

// poller wraps one epoll instance and the fd->Channel map needed to
// translate raw epoll_event structs back into owning Channels.
type poller struct {
	epfd     int
	channels map[int]*Channel
	events   []unix.EpollEvent
}

const initialEventCap = 16

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &poller{
		epfd:     fd,
		channels: make(map[int]*Channel),
		events:   make([]unix.EpollEvent, initialEventCap),
	}, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

// poll blocks up to timeoutMillis (negative blocks indefinitely) and
// returns the channels that became ready, each paired with its mask.
// The event array auto-grows when a poll call fills it completely,
// matching spec.md's "Auto-grows the event array when it was filled".
func (p *poller) poll(timeoutMillis int) ([]*Channel, []Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	chans := make([]*Channel, 0, n)
	masks := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		ch, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		chans = append(chans, ch)
		masks = append(masks, toEvent(ev.Events))
	}

	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}

	return chans, masks, nil
}

// update registers, modifies, or removes ch's interest in the epoll
// instance based on whether its interest mask is empty and whether it
// was already registered (spec.md section 4.2).
func (p *poller) update(ch *Channel) error {
	fd := ch.fd
	interest := ch.interest

	if interest == 0 {
		if _, ok := p.channels[fd]; ok {
			delete(p.channels, fd)
			return ignoreENOENT(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil))
		}
		return nil
	}

	ev := &unix.EpollEvent{
		Events: fromEvent(interest) | unix.EPOLLET,
		Fd:     int32(fd),
	}

	if _, ok := p.channels[fd]; ok {
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
			return fmt.Errorf("reactor: epoll_ctl mod: %w", err)
		}
		return nil
	}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	p.channels[fd] = ch
	return nil
}

func ignoreENOENT(err error) error {
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func toEvent(mask uint32) Event {
	var e Event
	if mask&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		e |= EventReadable
	}
	if mask&unix.EPOLLOUT != 0 {
		e |= EventWritable
	}
	if mask&unix.EPOLLERR != 0 {
		e |= EventError
	}
	if mask&unix.EPOLLHUP != 0 {
		e |= EventHangup
	}
	if mask&unix.EPOLLRDHUP != 0 {
		e |= EventReadHangup
	}
	return e
}

func fromEvent(interest Event) uint32 {
	var m uint32
	if interest&EventReadable != 0 {
		m |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if interest&EventWritable != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}
