package stp

import (
	"io"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// fakeClock hands out strictly increasing milliseconds without touching
// the wall clock, so timer-free tests stay deterministic.
type fakeClock struct {
	ms int64
}

func (c *fakeClock) NowMs() float64 {
	return float64(atomic.AddInt64(&c.ms, 1))
}

// discardEventLog builds an EventLog that formats every line exactly as
// production does but throws the output away, so tests don't litter the
// working directory with <side>_log.txt files.
func discardEventLog() *EventLog {
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetFormatter(eventLogFormatter{})
	return &EventLog{logger: logger, clock: &fakeClock{}}
}

// noLoss never drops anything; used by tests that aren't exercising the
// loss simulator itself.
func noLoss() *LossSimulator {
	return NewLossSimulator(1)
}
