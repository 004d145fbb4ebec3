package stp

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSingleTimerFires(t *testing.T) {
	var fired int32
	timer := &SingleTimer{}
	timer.Arm(10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))
}

func TestSingleTimerCancelSuppressesFire(t *testing.T) {
	var fired int32
	timer := &SingleTimer{}
	timer.Arm(10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	timer.Cancel()
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired))
	assert.False(t, timer.Armed())
}

func TestSingleTimerRearmSupersedesPriorFire(t *testing.T) {
	var fired int32
	timer := &SingleTimer{}
	timer.Arm(5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	// Rearm before the first callback can run; only the second should
	// ever observe a matching epoch.
	timer.Rearm(30*time.Millisecond, func() { atomic.AddInt32(&fired, 10) })
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 10, atomic.LoadInt32(&fired))
}

func TestSingleTimerArmedReflectsState(t *testing.T) {
	timer := &SingleTimer{}
	assert.False(t, timer.Armed())
	timer.Arm(20*time.Millisecond, func() {})
	assert.True(t, timer.Armed())
	timer.Cancel()
	assert.False(t, timer.Armed())
}
