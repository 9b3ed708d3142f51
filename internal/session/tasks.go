package session

import (
	"context"
	"errors"
	"time"

	"github.com/park285/chess-vision/internal/capture"
	"github.com/park285/chess-vision/internal/history"
	"github.com/park285/chess-vision/internal/obslog"
	"go.uber.org/zap"
)

const stepTimeout = 5 * time.Second

// StartAutoplay replays the history from the cursor onwards. Starting a
// running autoplay only updates its delay.
func (s *Service) StartAutoplay(ctx context.Context, id string, delay time.Duration) (time.Duration, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if sess.History.Len() == 0 || sess.History.AtEnd() {
		return 0, ErrNothingToPlay
	}
	if delay <= 0 {
		delay = s.cfg.AutoplayDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ap, ok := s.autoplays[id]; ok && ap.Running() {
		return ap.SetDelay(delay), nil
	}
	ap := history.NewAutoplay(func() bool { return s.autoplayStep(id) }, delay)
	ap.OnFinish(func() {
		s.mu.Lock()
		if s.autoplays[id] == ap {
			delete(s.autoplays, id)
		}
		s.mu.Unlock()
		obslog.L().Info("autoplay_finished", zap.String("session_id", id))
	})
	s.autoplays[id] = ap
	ap.Start()
	obslog.L().Info("autoplay_started", zap.String("session_id", id), zap.Duration("delay", ap.Delay()))
	return ap.Delay(), nil
}

func (s *Service) autoplayStep(id string) bool {
	ctx, cancel := context.WithTimeout(s.rootCtx, stepTimeout)
	defer cancel()
	sess, err := s.update(ctx, id, func(sess *Session) error {
		mv, err := sess.History.SelectMove(sess.History.Cursor() + 1)
		if err != nil {
			return err
		}
		sess.CurrentFEN = mv.FEN
		return nil
	})
	if err != nil {
		if !errors.Is(err, history.ErrIndexOutOfRange) {
			obslog.L().Warn("autoplay_step_failed", zap.String("session_id", id), zap.Error(err))
		}
		return false
	}
	return !sess.History.AtEnd()
}

// SetAutoplayDelay changes the delay of a running autoplay.
func (s *Service) SetAutoplayDelay(id string, delay time.Duration) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.autoplays[id]
	if !ok {
		return history.ClampDelay(delay), false
	}
	return ap.SetDelay(delay), true
}

func (s *Service) StopAutoplay(id string) {
	s.mu.Lock()
	ap, ok := s.autoplays[id]
	delete(s.autoplays, id)
	s.mu.Unlock()
	if ok {
		ap.Stop()
		obslog.L().Info("autoplay_stopped", zap.String("session_id", id))
	}
}

func (s *Service) AutoplayRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.autoplays[id]
	return ok && ap.Running()
}

// StartCapture starts periodic detection for a session from the configured
// frame source. The first start also seeds the history.
func (s *Service) StartCapture(ctx context.Context, id string) error {
	if s.source == nil {
		return ErrCaptureUnavailable
	}
	if _, err := s.StartRecording(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pollers[id]; ok && p.Running() {
		return nil
	}
	p := capture.NewPoller(id, s.cfg.CaptureInterval, s.cfg.CaptureTimeout, func(ctx context.Context) error {
		return s.captureOnce(ctx, id)
	})
	if err := p.Start(s.rootCtx); err != nil {
		return err
	}
	s.pollers[id] = p
	return nil
}

func (s *Service) captureOnce(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		go s.StopCapture(id)
		return err
	}
	if err != nil {
		return err
	}
	// review mode freezes the board
	if !sess.History.IsLive() {
		return nil
	}
	frame, err := s.source.Grab(ctx)
	if errors.Is(err, capture.ErrNoFrame) {
		return nil
	}
	if err != nil {
		return err
	}
	fen, confidence, err := s.detect(ctx, frame.Filename, frame.Data)
	if err != nil {
		return err
	}
	_, err = s.IngestDetection(ctx, id, fen, confidence, "")
	return err
}

func (s *Service) StopCapture(id string) {
	s.mu.Lock()
	p, ok := s.pollers[id]
	delete(s.pollers, id)
	s.mu.Unlock()
	if ok {
		p.Stop()
	}
}

// CaptureStats reports the capture loop of a session, if any.
func (s *Service) CaptureStats(id string) (capture.Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pollers[id]
	if !ok {
		return capture.Stats{}, false
	}
	return p.Stats(), true
}
