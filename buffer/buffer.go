package buffer

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned by Lock.Consume when asked to consume
// more bytes than are unread.
var ErrShortBuffer = errors.New("consume beyond unread data")

// minCompact is the smallest consumed prefix worth reclaiming.
const minCompact = 4096

// Buffer is a byte store shared between a transport reader and the
// dispatcher. All access goes through a Lock.
//
// The zero value is an empty Buffer ready to use.
type Buffer struct {
	mu   sync.Mutex
	data []byte
	r    int
}

// Lock is the exclusive access token for a Buffer. It is obtained
// with Buffer.Acquire and must be released exactly once; further
// Release calls are no-ops. Using a released Lock panics.
type Lock struct {
	b *Buffer
}

// Acquire blocks until the buffer is available and returns its Lock.
func (b *Buffer) Acquire() *Lock {
	b.mu.Lock()
	return &Lock{b: b}
}

// With runs fn while holding the buffer's Lock. The lock is released
// when fn returns, including when it panics.
func (b *Buffer) With(fn func(*Lock) error) error {
	l := b.Acquire()
	defer l.Release()
	return fn(l)
}

// Append appends p under the buffer's lock.
func (b *Buffer) Append(p []byte) {
	l := b.Acquire()
	defer l.Release()
	l.Append(p)
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	l := b.Acquire()
	defer l.Release()
	return l.Len()
}

// Release gives up the lock.
func (l *Lock) Release() {
	if l.b == nil {
		return
	}
	b := l.b
	l.b = nil
	b.mu.Unlock()
}

func (l *Lock) buffer() *Buffer {
	if l.b == nil {
		panic("buffer: use of released lock")
	}
	return l.b
}

// Bytes returns the unread bytes. The slice aliases the buffer and is
// only valid until the next mutation or until the lock is released.
func (l *Lock) Bytes() []byte {
	b := l.buffer()
	return b.data[b.r:]
}

// Len returns the number of unread bytes.
func (l *Lock) Len() int {
	b := l.buffer()
	return len(b.data) - b.r
}

// Append appends p to the write end of the buffer.
func (l *Lock) Append(p []byte) {
	b := l.buffer()
	if len(p) == 0 {
		return
	}
	// reclaim the consumed prefix before growing
	if b.r >= minCompact && b.r >= len(b.data)/2 && len(b.data)+len(p) > cap(b.data) {
		n := copy(b.data, b.data[b.r:])
		b.data = b.data[:n]
		b.r = 0
	}
	b.data = append(b.data, p...)
}

// Consume advances the read cursor by n bytes. Consuming more than
// Len bytes fails and leaves the buffer unchanged.
func (l *Lock) Consume(n int) error {
	b := l.buffer()
	if n < 0 || n > len(b.data)-b.r {
		return errors.Wrapf(ErrShortBuffer, "consume %d of %d", n, len(b.data)-b.r)
	}
	if b.r += n; b.r == len(b.data) {
		b.data = b.data[:0]
		b.r = 0
	}
	return nil
}

// Reset discards all unread bytes.
func (l *Lock) Reset() {
	b := l.buffer()
	b.data = b.data[:0]
	b.r = 0
}
