package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{fn: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1]
}

func (s *fakeScheduler) at(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestIdleTimer_FiresAfterStart(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	timer := NewIdleTimer(60*time.Second, sched)

	timer.Touch()
	assert.Equal(t, 0, sched.count(), "touch before start must not schedule")

	timer.Start()
	timer.Start()
	require.Equal(t, 1, sched.count())
	assert.Equal(t, 60*time.Second, sched.delays[0])
	assert.False(t, isClosed(timer.Done()))

	sched.last().fn()
	assert.True(t, isClosed(timer.Done()))

	timer.Touch()
	assert.Equal(t, 1, sched.count(), "firing is terminal")
}

func TestIdleTimer_TouchResetsCountdown(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	timer := NewIdleTimer(time.Minute, sched)
	timer.Start()
	timer.Touch()
	timer.Touch()

	require.Equal(t, 3, sched.count())
	assert.True(t, sched.at(0).stopped)
	assert.True(t, sched.at(1).stopped)
	assert.False(t, sched.at(2).stopped)

	// A replaced schedule that triggers late is ignored.
	sched.at(0).fn()
	assert.False(t, isClosed(timer.Done()))

	sched.at(2).fn()
	assert.True(t, isClosed(timer.Done()))
}

func TestIdleTimer_Stop(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	timer := NewIdleTimer(time.Minute, sched)
	timer.Start()
	timer.Stop()

	assert.True(t, sched.last().stopped)
	sched.last().fn()
	assert.False(t, isClosed(timer.Done()))
}

func TestIdleTimer_DisabledNeverSchedules(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	timer := NewIdleTimer(0, sched)
	timer.Start()
	timer.Touch()

	assert.Equal(t, 0, sched.count())
	assert.False(t, isClosed(timer.Done()))
}

func TestIdleTimer_RealScheduler(t *testing.T) {
	t.Parallel()

	timer := NewIdleTimer(10*time.Millisecond, nil)
	timer.Start()

	select {
	case <-timer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("idle timer did not fire")
	}
}

func TestIdleTimer_InFlightCallsSuspendCountdown(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	timer := NewIdleTimer(time.Minute, sched)
	timer.Start()
	require.Equal(t, 1, sched.count())

	timer.Begin()
	timer.Begin()
	assert.True(t, sched.at(0).stopped)

	timer.Touch()
	assert.Equal(t, 1, sched.count(), "touch while in flight must not schedule")

	// The suspended schedule triggering late is ignored.
	sched.at(0).fn()
	assert.False(t, isClosed(timer.Done()))

	timer.End()
	assert.Equal(t, 1, sched.count(), "countdown stays suspended while another call is in flight")

	timer.End()
	require.Equal(t, 2, sched.count())
	assert.False(t, sched.last().stopped)
	assert.Equal(t, time.Minute, sched.delays[1])

	sched.last().fn()
	assert.True(t, isClosed(timer.Done()))
}

func TestIdleTimer_EndBeforeStartDoesNotSchedule(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	timer := NewIdleTimer(time.Minute, sched)
	timer.Begin()
	timer.End()
	timer.End()

	assert.Equal(t, 0, sched.count())

	timer.Start()
	require.Equal(t, 1, sched.count())
	assert.False(t, sched.last().stopped)
}
