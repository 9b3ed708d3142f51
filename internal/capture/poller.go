package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/chess-vision/internal/obslog"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 3000 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

var ErrAlreadyRunning = errors.New("capture already running")

// Func performs one capture. It is never called concurrently with itself by
// the same Poller.
type Func func(ctx context.Context) error

// Poller runs a capture periodically. Captures run on a single goroutine, so
// a slow capture delays the next tick instead of overlapping it.
type Poller struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       Func

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	captureCount  atomic.Uint64
	captureErrors atomic.Uint64
	lastCaptureMs atomic.Int64
}

type Stats struct {
	Captures      uint64 `json:"captures"`
	Errors        uint64 `json:"errors"`
	LastCaptureMs int64  `json:"lastCaptureMs"`
	Running       bool   `json:"running"`
}

// NewPoller returns a stopped poller. Non-positive durations select the
// defaults.
func NewPoller(name string, interval, timeout time.Duration, fn Func) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{name: name, interval: interval, timeout: timeout, fn: fn}
}

// Start launches the loop. The loop ends on Stop or when ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running.Store(true)
	go p.loop(loopCtx, p.done)
	obslog.L().Info("capture_started", zap.String("name", p.name), zap.Duration("interval", p.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight capture to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	obslog.L().Info("capture_stopped", zap.String("name", p.name), zap.Uint64("captures", p.captureCount.Load()))
}

func (p *Poller) Running() bool { return p.running.Load() }

func (p *Poller) Stats() Stats {
	return Stats{
		Captures:      p.captureCount.Load(),
		Errors:        p.captureErrors.Load(),
		LastCaptureMs: p.lastCaptureMs.Load(),
		Running:       p.running.Load(),
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.running.Store(false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if p.fn == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.fn(cctx)
	p.lastCaptureMs.Store(time.Since(start).Milliseconds())
	if err != nil {
		p.captureErrors.Add(1)
		if ctx.Err() == nil {
			obslog.L().Warn("capture_failed", zap.String("name", p.name), zap.Error(err))
		}
		return
	}
	p.captureCount.Add(1)
}
