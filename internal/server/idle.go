package server

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d elapses.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// IdleTimer closes Done once no Touch has happened for the configured
// timeout and no call is in flight. Firing is terminal.
type IdleTimer struct {
	mu         sync.Mutex
	timeout    time.Duration
	scheduler  Scheduler
	timer      Timer
	generation uint64
	inFlight   int
	started    bool
	fired      bool
	done       chan struct{}
}

// NewIdleTimer creates a stopped timer. A non-positive timeout disables it:
// Done never closes.
func NewIdleTimer(timeout time.Duration, scheduler Scheduler) *IdleTimer {
	if scheduler == nil {
		scheduler = realScheduler{}
	}
	return &IdleTimer{
		timeout:   timeout,
		scheduler: scheduler,
		done:      make(chan struct{}),
	}
}

// Timeout returns the configured idle timeout.
func (t *IdleTimer) Timeout() time.Duration {
	return t.timeout
}

// Start begins the countdown. Calling it again is a no-op.
func (t *IdleTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.scheduleLocked()
}

// Touch restarts the countdown. Before Start and after firing it does
// nothing. While a call is in flight the restart is deferred to End.
func (t *IdleTimer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	t.scheduleLocked()
}

// Begin marks a call as in flight. The countdown is suspended until the
// matching End.
func (t *IdleTimer) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight++
	t.cancelLocked()
}

// End marks an in-flight call as finished. The countdown restarts in full
// once the last call ends.
func (t *IdleTimer) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inFlight > 0 {
		t.inFlight--
	}
	if t.started {
		t.scheduleLocked()
	}
}

// Stop cancels the countdown without firing.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	t.cancelLocked()
}

// Done is closed when the timer fires.
func (t *IdleTimer) Done() <-chan struct{} {
	return t.done
}

func (t *IdleTimer) cancelLocked() {
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *IdleTimer) scheduleLocked() {
	if t.fired || t.timeout <= 0 {
		return
	}
	t.cancelLocked()
	if t.inFlight > 0 {
		return
	}
	gen := t.generation
	t.timer = t.scheduler.AfterFunc(t.timeout, func() { t.fire(gen) })
}

// fire ignores callbacks from schedules that were replaced after the
// underlying timer had already triggered.
func (t *IdleTimer) fire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || gen != t.generation {
		return
	}
	t.fired = true
	t.timer = nil
	close(t.done)
}
