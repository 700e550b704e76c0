// Package buffer implements the growable, single-owner byte region used
// by every TCP connection's input and output path (spec.md section 3,
// "ByteBuffer", and section 4.1, component C1). It is a close port of
// the source project's buffer.h/buffer.cpp onto a Go []byte slice, kept
// deliberately free of locking: a Buffer is never shared across
// goroutines, only handed off as part of a connection's ownership.
package buffer

import (
	"errors"
	"syscall"
)

const (
	// initialSize is the default capacity for a freshly constructed
	// Buffer, matching the source's kInitialSize.
	initialSize = 1024
	// prependSize reserves room at the front of the region so headers
	// (e.g. a length-prefix) can be prepended without a copy.
	prependSize = 8
	// spillSize bounds the stack-local scratch buffer used by ReadFD's
	// scatter read to one extra 64 KiB segment per syscall.
	spillSize = 65536
)

// Buffer is a contiguous byte region with three indices:
// 0 <= readerIndex <= writerIndex <= len(buf); readerIndex drops below
// prependSize only when Prepend writes into the reserved front space.
// The readable region is buf[readerIndex:writerIndex].
type Buffer struct {
	buf         []byte
	readerIndex int
	writerIndex int
}

// New returns a Buffer ready for use, pre-sized per initialSize.
func New() *Buffer {
	return &Buffer{
		buf:         make([]byte, prependSize+initialSize),
		readerIndex: prependSize,
		writerIndex: prependSize,
	}
}

// ReadableBytes returns the number of bytes available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int { return b.writerIndex - b.readerIndex }

// WritableBytes returns the number of bytes available past writerIndex
// without growing or compacting.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIndex }

// PrependableBytes returns the reclaimable region before readerIndex.
func (b *Buffer) PrependableBytes() int { return b.readerIndex }

// Peek returns a view into the readable region. The slice is invalidated
// by any subsequent mutating call on the Buffer.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readerIndex:b.writerIndex]
}

// Retrieve advances readerIndex by n; if this reaches writerIndex, both
// cursors are reset to prependSize, just past the reserved front space, so a later
// Append reuses the freed space instead of growing further.
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n < b.ReadableBytes() {
		b.readerIndex += n
		return
	}
	b.reset()
}

// RetrieveAll discards every readable byte, equivalent to
// Retrieve(ReadableBytes()).
func (b *Buffer) RetrieveAll() {
	b.reset()
}

func (b *Buffer) reset() {
	b.readerIndex = prependSize
	b.writerIndex = prependSize
}

// RetrieveAllToBytes copies out every readable byte and resets cursors.
func (b *Buffer) RetrieveAllToBytes() []byte {
	out := make([]byte, b.ReadableBytes())
	copy(out, b.Peek())
	b.reset()
	return out
}

// RetrieveToBytes copies out n readable bytes and advances past them.
func (b *Buffer) RetrieveToBytes(n int) []byte {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	out := make([]byte, n)
	copy(out, b.buf[b.readerIndex:b.readerIndex+n])
	b.Retrieve(n)
	return out
}

// Append ensures enough writable capacity and copies data in, advancing
// writerIndex. It never fails short of an allocation failure.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	n := copy(b.buf[b.writerIndex:], data)
	b.writerIndex += n
}

// EnsureWritable guarantees WritableBytes() >= n, compacting the
// readable region to offset prependSize first and only reallocating if
// that still does not make room (section 3 growth policy).
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.WritableBytes()+b.PrependableBytes()-prependSize >= n {
		b.compact()
		return
	}
	b.grow(n)
}

// compact shifts the readable bytes down to offset prependSize,
// reclaiming prepended and trailing space without reallocating.
func (b *Buffer) compact() {
	readable := b.ReadableBytes()
	copy(b.buf[prependSize:], b.buf[b.readerIndex:b.writerIndex])
	b.readerIndex = prependSize
	b.writerIndex = prependSize + readable
}

// grow reallocates to exactly the capacity this write needs
// (writerIndex + n), per the section 3 growth policy — no amortized
// doubling.
func (b *Buffer) grow(n int) {
	readable := b.ReadableBytes()
	needed := b.writerIndex + n
	nb := make([]byte, needed)
	copy(nb[prependSize:], b.buf[b.readerIndex:b.writerIndex])
	b.buf = nb
	b.readerIndex = prependSize
	b.writerIndex = prependSize + readable
}

// Prepend writes data immediately before readerIndex, moving
// readerIndex back by len(data). The caller must have reserved enough
// prependable space (e.g. by never having consumed it).
func (b *Buffer) Prepend(data []byte) error {
	if len(data) > b.PrependableBytes() {
		return errors.New("buffer: not enough prependable space")
	}
	b.readerIndex -= len(data)
	copy(b.buf[b.readerIndex:], data)
	return nil
}

// fder is satisfied by *os.File and raw-fd wrappers alike; kept minimal
// so tests can fake it without a real socket.
type fder interface {
	Fd() uintptr
}

// ReadFD performs a scatter read into the writable tail of the buffer
// plus a spillSize stack-local scratch segment, bounding syscalls to one
// per readiness notification (spec.md section 4.1). On success the
// spill tail (if any was used) is appended via Append, which may grow
// the buffer; the returned count is the total bytes read across both
// segments.
func (b *Buffer) ReadFD(fd int) (int, error) {
	var spill [spillSize]byte

	b.EnsureWritable(1) // guarantee at least one writable byte to offer the kernel
	iov := [2][]byte{
		b.buf[b.writerIndex:],
		spill[:],
	}

	n, err := readv(fd, iov[:])
	if n <= 0 {
		return n, err
	}

	primary := len(iov[0])
	if n <= primary {
		b.writerIndex += n
		return n, err
	}

	b.writerIndex += primary
	b.Append(spill[:n-primary])
	return n, err
}

// WriteFD writes the readable region to fd, advancing readerIndex by
// the number of bytes actually written.
func (b *Buffer) WriteFD(fd int) (int, error) {
	n, err := syscall.Write(fd, b.Peek())
	if n > 0 {
		b.Retrieve(n)
	}
	return n, err
}

// IsRetryable reports whether err is a transient condition the event
// loop should treat as "try again later" rather than connection-fatal
// (spec.md section 7).
func IsRetryable(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR)
}

// IsFatal reports whether err indicates the peer is gone and the
// connection should transition straight to a fault state.
func IsFatal(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EBADF)
}
