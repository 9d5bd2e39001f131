// Package ringbuffer implements the per-receiver elastic sample buffer
// (spec component C1): a bounded, single-producer/single-consumer ring of
// complex float samples with non-blocking write/read and overrun/underrun
// counters.
package ringbuffer

import (
	"sync"
	"sync/atomic"

	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
)

// RingBuffer is a fixed-capacity circular buffer of I/Q sample pairs.
// One writer (the SampleProducer) and one reader (the BlockAssembler) may
// operate concurrently; each call takes the buffer's own short-held lock
// and never blocks on any other lock.
type RingBuffer struct {
	mu       sync.Mutex
	buf      []iqsample.Sample
	head     int // next slot to read
	tail     int // next slot to write
	count    int
	overrun  atomic.Uint32
	underrun atomic.Uint32
}

// New allocates a ring buffer of the given sample-pair capacity. One slot is
// always kept unwritten so that available(i) never reaches capacity(i),
// matching the invariant available + space + 1 = C.
func New(capacity int) *RingBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &RingBuffer{buf: make([]iqsample.Sample, capacity)}
}

// Write attempts to store one sample. It returns false and increments the
// overrun counter iff the buffer has no free space; it never blocks.
func (r *RingBuffer) Write(s iqsample.Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count >= len(r.buf)-1 {
		r.overrun.Add(1)
		return false
	}

	r.buf[r.tail] = s
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	return true
}

// Read removes and returns the oldest sample. If the buffer is empty it
// increments the underrun counter and returns the zero sample with ok=false;
// callers substitute silence rather than stalling.
func (r *RingBuffer) Read() (s iqsample.Sample, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		r.underrun.Add(1)
		return iqsample.Sample{}, false
	}

	s = r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return s, true
}

// Available returns the number of samples currently buffered.
func (r *RingBuffer) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Space returns the number of samples that can still be written before an
// overrun occurs.
func (r *RingBuffer) Space() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - 1 - r.count
}

// Capacity returns the buffer's fixed sample-pair capacity C, satisfying
// available() + space() + 1 = C at all times.
func (r *RingBuffer) Capacity() int {
	return len(r.buf)
}

// FillLevel returns the current fill, relative to the usable capacity
// (C-1), as a fraction in [0, 1].
func (r *RingBuffer) FillLevel() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float32(r.count) / float32(len(r.buf)-1)
}

// Overruns returns the cumulative number of dropped writes.
func (r *RingBuffer) Overruns() uint32 {
	return r.overrun.Load()
}

// Underruns returns the cumulative number of empty reads.
func (r *RingBuffer) Underruns() uint32 {
	return r.underrun.Load()
}

// Reset drops all buffered samples without touching the counters. Used on
// reconnect: a new generation represents a new signal, so stale samples
// from the previous socket must not bleed into the next one.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.tail = 0
	r.count = 0
}
