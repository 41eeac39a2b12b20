package stream

import (
	"sync"
)

// DefaultBufferSize bounds each collector's in-flight records. At the
// default 99 Hz a ten-second run produces around a thousand samples per
// source, so 64k leaves ample headroom for event-driven collectors
// before the ring starts recycling.
const DefaultBufferSize = 1 << 16

// Buffer is a bounded, concurrency-safe record sink. When full it
// overwrites the oldest record and counts the loss instead of blocking
// the producer. Drain empties it exactly once; records appended after
// the drain are counted as dropped.
type Buffer struct {
	mu      sync.Mutex
	ring    []Record
	head    int
	size    int
	dropped uint64
	drained bool
}

// NewBuffer returns a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}

	return &Buffer{ring: make([]Record, capacity)}
}

// Append stores a record, evicting the oldest one when the buffer is
// full.
func (b *Buffer) Append(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.drained {
		b.dropped++
		return
	}

	if b.size < len(b.ring) {
		b.ring[(b.head+b.size)%len(b.ring)] = r
		b.size++
		return
	}

	b.ring[b.head] = r
	b.head = (b.head + 1) % len(b.ring)
	b.dropped++
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size
}

// Dropped returns how many records were lost to overflow or appended
// after the drain.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

// Drain returns the buffered records in arrival order and retires the
// buffer.
func (b *Buffer) Drain() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(b.head+i)%len(b.ring)])
	}

	b.ring = nil
	b.head = 0
	b.size = 0
	b.drained = true

	return out
}
