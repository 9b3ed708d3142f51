package history

import (
	"sync"
	"time"
)

const (
	DefaultAutoplayDelay = 2000 * time.Millisecond
	MinAutoplayDelay     = 500 * time.Millisecond
	MaxAutoplayDelay     = 5000 * time.Millisecond
)

// StepFunc advances playback by one position and reports whether another
// step is possible.
type StepFunc func() (more bool)

// Autoplay replays history by calling a step function after a fixed delay.
// At most one timer is pending at any time.
type Autoplay struct {
	mu       sync.Mutex
	step     StepFunc
	delay    time.Duration
	timer    *time.Timer
	gen      uint64
	running  bool
	onFinish func()
}

func NewAutoplay(step StepFunc, delay time.Duration) *Autoplay {
	return &Autoplay{step: step, delay: ClampDelay(delay)}
}

// ClampDelay bounds d to the supported range; zero selects the default.
func ClampDelay(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultAutoplayDelay
	}
	if d < MinAutoplayDelay {
		return MinAutoplayDelay
	}
	if d > MaxAutoplayDelay {
		return MaxAutoplayDelay
	}
	return d
}

// OnFinish registers f to run once playback stops by itself.
func (a *Autoplay) OnFinish(f func()) {
	a.mu.Lock()
	a.onFinish = f
	a.mu.Unlock()
}

// Start schedules the first step. It returns false if playback is already
// running.
func (a *Autoplay) Start() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return false
	}
	a.running = true
	a.scheduleLocked()
	return true
}

// Stop cancels the pending step, if any.
func (a *Autoplay) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Autoplay) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Autoplay) Delay() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delay
}

// SetDelay changes the delay; a running playback restarts its countdown.
func (a *Autoplay) SetDelay(d time.Duration) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = ClampDelay(d)
	if a.running {
		a.scheduleLocked()
	}
	return a.delay
}

func (a *Autoplay) scheduleLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.delay, func() { a.fire(gen) })
}

func (a *Autoplay) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.running = false
}

func (a *Autoplay) fire(gen uint64) {
	a.mu.Lock()
	if !a.running || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	step := a.step
	a.mu.Unlock()

	more := step != nil && step()

	a.mu.Lock()
	if gen != a.gen {
		// stopped or rescheduled while stepping
		a.mu.Unlock()
		return
	}
	if more {
		a.scheduleLocked()
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	finish := a.onFinish
	a.mu.Unlock()
	if finish != nil {
		finish()
	}
}
