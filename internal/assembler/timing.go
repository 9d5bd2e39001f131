package assembler

import (
	"runtime"
	"time"
)

// coarseSleepThreshold is how much slack must remain before we hand the
// scheduler a real sleep rather than busy-waiting (spec §4.6: "coarse sleep
// of 1 ms while >1 ms remains, then busy-wait the last <1 ms").
const coarseSleepThreshold = time.Millisecond

// sleepUntil blocks the calling goroutine until the monotonic deadline,
// coarse-sleeping in 1ms steps and busy-waiting with scheduler yields for
// the final sub-millisecond so the wakeup is as close to on-time as the
// runtime allows.
func sleepUntil(deadline time.Time) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if remaining > coarseSleepThreshold {
			time.Sleep(coarseSleepThreshold)
			continue
		}
		runtime.Gosched()
	}
}
