// Package buffers multiplexes concurrent log producers into pooled,
// size-bounded buffers. Each destination owns at most one current buffer
// at a time; filled buffers move into an ordered ready queue that survives
// restarts through an on-disk checkpoint written at close.
package buffers

import (
	"fmt"

	"github.com/vieworks/oap-logstream/logid"
)

// Buffer is a fixed-capacity byte region holding the binary identity
// framing of its destination followed by appended record payload. A
// buffer is mutated only by the routing operation that owns it; once
// closed it is immutable until the cache resets it for a new owner.
type Buffer struct {
	data      []byte
	headerLen int
	pos       int
	closed    bool
	id        int64
}

func newBuffer(capacity int, id *logid.LogId) (*Buffer, error) {
	b := &Buffer{data: make([]byte, capacity)}
	if err := b.reset(id); err != nil {
		return nil, err
	}
	return b, nil
}

// reset clears the payload and rewrites the header framing for a new
// owning destination. Only the cache calls this, between owners.
func (b *Buffer) reset(id *logid.LogId) error {
	header, err := id.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode identity framing: %w", err)
	}
	if len(header) >= len(b.data) {
		return fmt.Errorf("buffer of %d bytes cannot hold %d bytes of identity framing",
			len(b.data), len(header))
	}
	copy(b.data, header)
	b.headerLen = len(header)
	b.pos = b.headerLen
	b.closed = false
	b.id = 0
	return nil
}

// available reports whether n more payload bytes fit.
func (b *Buffer) available(n int) bool {
	return len(b.data)-b.pos >= n
}

// put appends p. The caller must have checked available first.
func (b *Buffer) put(p []byte) {
	copy(b.data[b.pos:], p)
	b.pos += len(p)
}

// close stamps the buffer with its queue id and freezes it.
func (b *Buffer) close(id int64) {
	b.closed = true
	b.id = id
}

// ID returns the monotonic id assigned when the buffer was enclosed into
// the ready queue, zero before that.
func (b *Buffer) ID() int64 { return b.id }

func (b *Buffer) Capacity() int { return len(b.data) }

// HeaderLength returns the size of the identity framing at the head of
// the buffer.
func (b *Buffer) HeaderLength() int { return b.headerLen }

func (b *Buffer) IsEmpty() bool { return b.pos == b.headerLen }

// Data returns the header and payload written so far.
func (b *Buffer) Data() []byte { return b.data[:b.pos] }

// Header returns the identity framing bytes.
func (b *Buffer) Header() []byte { return b.data[:b.headerLen] }

// Payload returns the record bytes appended after the header.
func (b *Buffer) Payload() []byte { return b.data[b.headerLen:b.pos] }

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer{id: %d, capacity: %d, length: %d, closed: %v}",
		b.id, len(b.data), b.pos, b.closed)
}
