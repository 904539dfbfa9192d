package gvd

import (
	"time"

	"github.com/jacobsa/timeutil"
)

// newSimClock builds a timeutil.SimulatedClock pinned to a fixed start time,
// for deterministic ELPDelay/NodeTTL-dependent tests.
func newSimClock() *timeutil.SimulatedClock {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(0, 0))
	return clock
}
