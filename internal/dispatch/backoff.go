package dispatch

import (
	"fmt"
	"runtime"
	"time"
)

// Backoff decides what the consumer does when the queue is empty. Idle is
// called with the number of consecutive empty polls, starting at 1; a
// successful pop resets the count.
type Backoff interface {
	Idle(attempt int)
}

// YieldBackoff yields the processor on every empty poll. Lowest latency,
// highest CPU use.
type YieldBackoff struct{}

func (YieldBackoff) Idle(int) { runtime.Gosched() }

// SpinBackoff busy-spins for Spins empty polls and then yields.
type SpinBackoff struct {
	Spins int
}

func (b SpinBackoff) Idle(attempt int) {
	if attempt <= b.Spins {
		return
	}
	runtime.Gosched()
}

// SleepBackoff sleeps Min, doubling on each consecutive empty poll up to Max.
type SleepBackoff struct {
	Min time.Duration
	Max time.Duration
}

func (b SleepBackoff) Idle(attempt int) {
	time.Sleep(b.delay(attempt))
}

func (b SleepBackoff) delay(attempt int) time.Duration {
	lo, hi := b.Min, b.Max
	if lo <= 0 {
		lo = 50 * time.Microsecond
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	for i := 1; i < attempt && d < hi; i++ {
		d *= 2
	}
	return min(d, hi)
}

// ParseBackoff maps a config name to a Backoff: "yield" (default), "spin",
// or "sleep".
//
//nolint:ireturn // factory returns interface by design
func ParseBackoff(name string) (Backoff, error) {
	switch name {
	case "", "yield":
		return YieldBackoff{}, nil
	case "spin":
		return SpinBackoff{Spins: 64}, nil
	case "sleep":
		return SleepBackoff{Min: 50 * time.Microsecond, Max: 5 * time.Millisecond}, nil
	default:
		return nil, fmt.Errorf("unknown backoff %q (use yield, spin or sleep)", name)
	}
}
