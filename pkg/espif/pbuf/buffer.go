// Package pbuf provides segmented packet buffers and their ownership tags.
package pbuf

import (
	"errors"
	"sync/atomic"
)

// ErrNoMem indicates the allocator is out of buffer segments.
var ErrNoMem = errors.New("out of packet buffers")

// Buffer is a packet stored in a chain of segments.
type Buffer struct {
	segs     [][]byte
	pool     *Pool
	released atomic.Bool
}

// New wraps segments into an unpooled Buffer.
func New(segs ...[]byte) *Buffer {
	return &Buffer{segs: segs}
}

// Segments returns the segment chain.
func (b *Buffer) Segments() [][]byte {
	if b == nil {
		return nil
	}
	return b.segs
}

// Len returns the total length of all segments.
func (b *Buffer) Len() (n int) {
	for _, seg := range b.Segments() {
		n += len(seg)
	}
	return
}

// Bytes returns the content as one slice. A single segment buffer returns
// the segment itself, otherwise the segments are copied.
func (b *Buffer) Bytes() []byte {
	segs := b.Segments()
	if len(segs) == 1 {
		return segs[0]
	}
	p := make([]byte, 0, b.Len())
	for _, seg := range segs {
		p = append(p, seg...)
	}
	return p
}

// Release returns pooled segments. A Buffer must be released exactly once.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		panic("pbuf: buffer released twice")
	}
	if b.pool != nil {
		b.pool.put(b.segs)
	}
	b.segs = nil
}

// Ref tags a Buffer with its ownership: a Borrowed buffer belongs to the
// caller, an Owned one must be released by whoever holds the Ref last.
type Ref struct {
	buf   *Buffer
	owned bool
}

// Borrowed references a buffer owned by someone else.
func Borrowed(b *Buffer) Ref {
	return Ref{buf: b}
}

// Owned transfers ownership of b to the receiver of the Ref.
func Owned(b *Buffer) Ref {
	return Ref{buf: b, owned: true}
}

// Buffer returns the referenced buffer, nil for an empty Ref.
func (r Ref) Buffer() *Buffer {
	return r.buf
}

// IsOwned indicates the holder is responsible for releasing the buffer.
func (r Ref) IsOwned() bool {
	return r.owned
}

// Release releases the buffer if it is owned. Borrowed buffers are untouched.
func (r Ref) Release() {
	if r.owned && r.buf != nil {
		r.buf.Release()
	}
}
