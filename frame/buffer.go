// buffer.go implements the pinnable byte buffer used by async sends.

package frame

import (
	"go.uber.org/atomic"

	ndi "github.com/GrantSparks/grafton-ndi"
)

// Buffer is a caller-owned byte buffer that can be handed to an
// asynchronous send. While a send token borrows the buffer, the buffer
// is pinned: all mutators fail with ndi.ErrBufferPinned until the token
// is consumed. Reads are always allowed.
//
// This is the runtime rendition of "the buffer cannot be deallocated or
// mutated while the token is alive".
type Buffer struct {
	pins atomic.Int32
	data []byte
}

// NewBuffer allocates a zeroed buffer of the given size.
func NewBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// BufferOf wraps the given bytes without copying them. The caller must
// not retain other mutable references to data.
func BufferOf(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes exposes the underlying storage. The returned slice must be
// treated as read-only while the buffer is pinned.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() int {
	return len(b.data)
}

// IsPinned reports whether an in-flight send currently borrows the
// buffer.
func (b *Buffer) IsPinned() bool {
	return b.pins.Load() > 0
}

// Fill overwrites every byte with v.
func (b *Buffer) Fill(v byte) error {
	if b.IsPinned() {
		return ndi.ErrBufferPinned{}
	}
	for i := range b.data {
		b.data[i] = v
	}
	return nil
}

// CopyFrom overwrites the buffer's prefix with p.
func (b *Buffer) CopyFrom(p []byte) (int, error) {
	if b.IsPinned() {
		return 0, ndi.ErrBufferPinned{}
	}
	return copy(b.data, p), nil
}

// WriteAt overwrites bytes starting at off.
func (b *Buffer) WriteAt(p []byte, off int) (int, error) {
	if b.IsPinned() {
		return 0, ndi.ErrBufferPinned{}
	}
	if off < 0 || off > len(b.data) {
		return 0, ndi.ErrInvalidBuffer{Reason: "offset out of range"}
	}
	return copy(b.data[off:], p), nil
}

// Pin marks the buffer as borrowed by an in-flight send. It is invoked
// by send tokens; application code normally never calls it.
func (b *Buffer) Pin() {
	b.pins.Inc()
}

// Unpin releases one borrow. Unbalanced calls panic.
func (b *Buffer) Unpin() {
	if b.pins.Dec() < 0 {
		panic("buffer unpinned more times than pinned")
	}
}
