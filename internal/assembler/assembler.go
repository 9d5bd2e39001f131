// Package assembler implements the pacing core (spec component C6): a
// single consumer that reads one sample per active receiver per tick at the
// nominal sample rate, applies the frequency shifter, accumulates into
// double-buffered per-receiver blocks, and releases a barrier-gated
// callback once every active receiver has filled its current block.
package assembler

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
	"github.com/cwsl/ubersdr-ingest/internal/ringbuffer"
	"github.com/cwsl/ubersdr-ingest/internal/shifter"
)

// Callback is the downstream sink. blocks[i] is valid only if mask has bit i
// set; the assembler blocks are reused between invocations and MUST NOT be
// retained past the call.
type Callback func(blocks []*iqsample.Block, mask uint64)

// slot holds one receiver's ring reference, shifter, and double buffer.
type slot struct {
	ring    *ringbuffer.RingBuffer
	shifter *shifter.Shifter

	bufs    [2]*iqsample.Block
	inIdx   int
	counter int
}

func newSlot(blockSize int) *slot {
	return &slot{
		bufs: [2]*iqsample.Block{
			iqsample.NewBlock(blockSize),
			iqsample.NewBlock(blockSize),
		},
	}
}

// Assembler is the single pacing consumer for up to N receivers sharing one
// sample rate and block size.
type Assembler struct {
	sampleRateHz int
	blockSize    int
	callback     Callback
	logger       *log.Logger

	mu         sync.Mutex
	slots      []*slot
	activeMask uint64
	filledMask uint64
	blockSeq   uint64

	t0        time.Time
	tickN     uint64
	haveT0    bool
	lastWarn  time.Time
	warnMu    sync.Mutex

	totalCallbacks atomic.Uint64
	totalSamples   atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

// New builds an Assembler for n receiver slots at the given sample rate and
// block size. Slots start inactive; Activate must be called per receiver.
func New(n, sampleRateHz, blockSize int, callback Callback, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	slots := make([]*slot, n)
	for i := range slots {
		slots[i] = newSlot(blockSize)
	}
	return &Assembler{
		sampleRateHz: sampleRateHz,
		blockSize:    blockSize,
		callback:     callback,
		logger:       logger,
		slots:        slots,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Activate enrolls receiver i in the barrier, binding it to ring and
// shifter, and resets its counter and bucket to bucket 0 (spec §4.6).
func (a *Assembler) Activate(i int, ring *ringbuffer.RingBuffer, sh *shifter.Shifter) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.slots[i]
	s.ring = ring
	s.shifter = sh
	s.inIdx = 0
	s.counter = 0
	s.bufs[0].Reset()
	s.bufs[1].Reset()

	a.activeMask |= 1 << uint(i)
	a.filledMask &^= 1 << uint(i)

	if !a.haveT0 {
		a.t0 = time.Now()
		a.tickN = 0
		a.haveT0 = true
	}
}

// Deactivate removes receiver i from the barrier without disturbing others'
// progress (spec §4.6: "toggling a receiver MUST not disturb the others'").
func (a *Assembler) Deactivate(i int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activeMask &^= 1 << uint(i)
	a.filledMask &^= 1 << uint(i)
	a.slots[i].ring = nil
	a.slots[i].shifter = nil
}

// ActiveMask returns the current bitmask of enrolled receivers.
func (a *Assembler) ActiveMask() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeMask
}

// TotalCallbacks returns the cumulative callback invocation count.
func (a *Assembler) TotalCallbacks() uint64 { return a.totalCallbacks.Load() }

// TotalSamples returns the cumulative per-receiver sample count processed.
func (a *Assembler) TotalSamples() uint64 { return a.totalSamples.Load() }

// Run drives the pacing loop until Stop is called. It must run in its own
// goroutine; it owns the assembler's only sleep/busy-wait.
func (a *Assembler) Run() {
	defer close(a.done)

	for {
		select {
		case <-a.stop:
			return
		default:
		}

		a.mu.Lock()
		if !a.haveT0 {
			a.mu.Unlock()
			time.Sleep(time.Millisecond)
			continue
		}
		n := a.tickN
		t0 := a.t0
		a.mu.Unlock()

		deadline := t0.Add(time.Duration(float64(n) * float64(time.Second) / float64(a.sampleRateHz)))
		sleepUntil(deadline)

		if lag := time.Since(deadline); lag > 10*time.Millisecond {
			a.warnLagRateLimited(lag)
		}

		a.tick()

		a.mu.Lock()
		a.tickN++
		a.mu.Unlock()
	}
}

// tickJob is a snapshot of one active receiver's ring/shifter pair, taken
// under lock so the read-and-shift step below can run lock-free.
type tickJob struct {
	idx     int
	ring    *ringbuffer.RingBuffer
	shifter *shifter.Shifter
}

// tickResult is one job's shifted sample, ready to append under lock.
type tickResult struct {
	idx  int
	i, q float32
}

// tick performs one sample period across every active receiver: read,
// shift, append, and check the barrier (spec §4.6 steps 1-2). Only the
// mask/buffer bookkeeping and the barrier's callback dispatch run under
// a.mu; the ring reads and the frequency shift happen outside it, since
// neither touches assembler-owned state (spec §5: the assembler lock
// covers only its own small critical sections).
func (a *Assembler) tick() {
	a.mu.Lock()
	jobs := make([]tickJob, 0, len(a.slots))
	for i, s := range a.slots {
		bit := uint64(1) << uint(i)
		if a.activeMask&bit == 0 {
			continue
		}
		jobs = append(jobs, tickJob{idx: i, ring: s.ring, shifter: s.shifter})
	}
	a.mu.Unlock()

	results := make([]tickResult, 0, len(jobs))
	for _, j := range jobs {
		raw, _ := j.ring.Read() // ok=false substitutes silence, per C1 contract
		fi, fq := raw.I, raw.Q
		if j.shifter != nil {
			fi, fq = j.shifter.Apply(fi, fq)
		}
		results = append(results, tickResult{j.idx, fi, fq})
	}

	a.mu.Lock()
	var out []*iqsample.Block
	var mask uint64
	for _, r := range results {
		bit := uint64(1) << uint(r.idx)
		if a.activeMask&bit == 0 {
			continue // deactivated since the snapshot above
		}
		s := a.slots[r.idx]

		buf := s.bufs[s.inIdx]
		buf.Samples[s.counter] = iqsample.Sample{I: r.i, Q: r.q}
		s.counter++
		a.totalSamples.Add(1)

		if s.counter >= a.blockSize {
			if a.filledMask&bit == 0 {
				// First fill this round: toggle the bit and swap buffers so
				// the just-filled block becomes the out-buffer.
				a.filledMask |= bit
				s.inIdx = 1 - s.inIdx
			}
			// A receiver that fills twice before the barrier releases keeps
			// writing into the same (already-swapped) in-buffer without
			// re-toggling its bit or swapping again (spec §4.6).
			s.counter = 0
		}
	}

	if a.filledMask == a.activeMask && a.activeMask != 0 {
		out = make([]*iqsample.Block, len(a.slots))
		for i, s := range a.slots {
			if a.activeMask&(1<<uint(i)) != 0 {
				out[i] = s.bufs[1-s.inIdx]
				out[i].Seq = a.blockSeq
			}
		}
		mask = a.activeMask
		a.blockSeq++
		a.totalCallbacks.Add(1)
		a.filledMask = 0
	}
	a.mu.Unlock()

	if out != nil {
		a.callback(out, mask)
	}
}

func (a *Assembler) warnLagRateLimited(lag time.Duration) {
	a.warnMu.Lock()
	defer a.warnMu.Unlock()
	if time.Since(a.lastWarn) < time.Second {
		return
	}
	a.lastWarn = time.Now()
	a.logger.Printf("assembler: pacing lag %v exceeds 10ms budget", lag)
}

// Stop halts the pacing loop and waits for it to exit.
func (a *Assembler) Stop() {
	close(a.stop)
	<-a.done
}
