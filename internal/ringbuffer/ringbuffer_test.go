package ringbuffer

import (
	"testing"

	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
)

func TestWriteReadRoundTrip(t *testing.T) {
	rb := New(4)
	if !rb.Write(iqsample.Sample{I: 1, Q: 2}) {
		t.Fatal("write should succeed with free space")
	}
	s, ok := rb.Read()
	if !ok {
		t.Fatal("read should succeed after a write")
	}
	if s.I != 1 || s.Q != 2 {
		t.Fatalf("got %+v, want {1 2}", s)
	}
}

func TestOverrunOnFull(t *testing.T) {
	rb := New(3)
	if !rb.Write(iqsample.Sample{I: 1}) {
		t.Fatal("first write should succeed")
	}
	if !rb.Write(iqsample.Sample{I: 2}) {
		t.Fatal("second write should succeed")
	}
	if rb.Write(iqsample.Sample{I: 3}) {
		t.Fatal("third write should fail: buffer full")
	}
	if got := rb.Overruns(); got != 1 {
		t.Fatalf("overruns = %d, want 1", got)
	}
	if got := rb.Available(); got != 2 {
		t.Fatalf("available() disturbed by overrun: got %d, want 2", got)
	}
	if a, c := rb.Available(), rb.Capacity(); a > c-1 {
		t.Fatalf("available(%d) exceeds capacity(%d)-1", a, c)
	}
}

func TestUnderrunOnEmpty(t *testing.T) {
	rb := New(4)
	s, ok := rb.Read()
	if ok {
		t.Fatal("read on empty buffer should fail")
	}
	if s != (iqsample.Sample{}) {
		t.Fatalf("underrun should yield zero sample, got %+v", s)
	}
	if got := rb.Underruns(); got != 1 {
		t.Fatalf("underruns = %d, want 1", got)
	}
}

func TestAvailableSpaceInvariant(t *testing.T) {
	rb := New(8)
	for i := 0; i < 5; i++ {
		rb.Write(iqsample.Sample{I: float32(i)})
	}
	if a, s, c := rb.Available(), rb.Space(), rb.Capacity(); a+s+1 != c {
		t.Fatalf("available(%d) + space(%d) + 1 != capacity(%d)", a, s, c)
	}
}

func TestFillLevelBounds(t *testing.T) {
	rb := New(10)
	if fl := rb.FillLevel(); fl != 0 {
		t.Fatalf("empty ring fill level = %f, want 0", fl)
	}
	for i := 0; i < 10; i++ {
		rb.Write(iqsample.Sample{})
	}
	if fl := rb.FillLevel(); fl != 1 {
		t.Fatalf("full ring fill level = %f, want 1", fl)
	}
}

func TestResetClearsSamplesNotCounters(t *testing.T) {
	rb := New(4)
	rb.Write(iqsample.Sample{I: 1})
	rb.Read()
	rb.Read() // underrun, bumps counter
	rb.Write(iqsample.Sample{I: 2})

	rb.Reset()
	if rb.Available() != 0 {
		t.Fatalf("reset should empty the buffer, available = %d", rb.Available())
	}
	if rb.Underruns() != 1 {
		t.Fatalf("reset must not clear counters, underruns = %d", rb.Underruns())
	}
}

func TestFIFOOrdering(t *testing.T) {
	rb := New(16)
	for i := 0; i < 10; i++ {
		rb.Write(iqsample.Sample{I: float32(i)})
	}
	for i := 0; i < 10; i++ {
		s, ok := rb.Read()
		if !ok || s.I != float32(i) {
			t.Fatalf("read %d: got %+v ok=%v, want I=%d", i, s, ok, i)
		}
	}
}
