package history

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestClampDelay(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                       DefaultAutoplayDelay,
		100 * time.Millisecond:  MinAutoplayDelay,
		1500 * time.Millisecond: 1500 * time.Millisecond,
		time.Minute:             MaxAutoplayDelay,
	}
	for in, want := range cases {
		if got := ClampDelay(in); got != want {
			t.Fatalf("ClampDelay(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestAutoplayStopsAtEnd(t *testing.T) {
	l := New()
	l.Append(posA, false, nil)
	l.Append(posB, false, nil)
	l.Append(posC, false, nil)
	if _, err := l.SelectMove(0); err != nil {
		t.Fatalf("SelectMove: %v", err)
	}

	var calls atomic.Int32
	done := make(chan struct{})
	ap := NewAutoplay(func() bool {
		calls.Add(1)
		if _, err := l.Navigate(NavNext); err != nil {
			return false
		}
		return !l.AtEnd()
	}, MinAutoplayDelay)
	// shrink below the public minimum to keep the test quick
	ap.delay = 5 * time.Millisecond
	ap.OnFinish(func() { close(done) })

	if !ap.Start() {
		t.Fatalf("Start should succeed")
	}
	if ap.Start() {
		t.Fatalf("second Start must report already running")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("autoplay did not finish")
	}
	if l.Cursor() != 2 || calls.Load() != 2 {
		t.Fatalf("cursor=%d calls=%d", l.Cursor(), calls.Load())
	}
	if ap.Running() {
		t.Fatalf("autoplay still running after finish")
	}
}

func TestAutoplayStopCancelsPendingStep(t *testing.T) {
	var calls atomic.Int32
	ap := NewAutoplay(func() bool {
		calls.Add(1)
		return true
	}, MinAutoplayDelay)
	ap.Start()
	ap.Stop()
	time.Sleep(MinAutoplayDelay + 100*time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("step ran after Stop: %d", calls.Load())
	}
	if ap.Running() {
		t.Fatalf("Running after Stop")
	}
}

func TestAutoplaySetDelayClamps(t *testing.T) {
	ap := NewAutoplay(nil, 0)
	if ap.Delay() != DefaultAutoplayDelay {
		t.Fatalf("default delay: %v", ap.Delay())
	}
	if got := ap.SetDelay(9 * time.Second); got != MaxAutoplayDelay {
		t.Fatalf("SetDelay: %v", got)
	}
}
