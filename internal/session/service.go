package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-vision/internal/backend"
	"github.com/park285/chess-vision/internal/board"
	"github.com/park285/chess-vision/internal/capture"
	"github.com/park285/chess-vision/internal/history"
	"github.com/park285/chess-vision/internal/obslog"
	"github.com/park285/chess-vision/internal/snapshot"
	"go.uber.org/zap"
)

// Backend is the part of the vision/analysis backend a session needs.
type Backend interface {
	AnalyzePosition(ctx context.Context, fen string) (*backend.AnalyzeReply, error)
	DetectPosition(ctx context.Context, filename string, image []byte) (*backend.DetectReply, error)
}

type Config struct {
	Labeler         board.Labeler
	Source          capture.Source
	Snapshots       snapshot.Repository
	CaptureInterval time.Duration
	CaptureTimeout  time.Duration
	AutoplayDelay   time.Duration
	ShowSuggestions bool
}

// Service owns board sessions and their background tasks. Session state
// lives in the store; autoplay timers and capture loops live here, at most
// one of each per session.
type Service struct {
	store     Store
	backend   Backend
	snapshots snapshot.Repository
	source    capture.Source
	labeler   board.Labeler
	cfg       Config
	now       func() time.Time

	mu        sync.Mutex
	autoplays map[string]*history.Autoplay
	pollers   map[string]*capture.Poller

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewService(store Store, be Backend, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("nil session store")
	}
	if be == nil {
		return nil, errors.New("nil backend")
	}
	if cfg.Labeler == nil {
		cfg.Labeler = board.PlaceholderLabeler{}
	}
	cfg.AutoplayDelay = history.ClampDelay(cfg.AutoplayDelay)
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      store,
		backend:    be,
		snapshots:  cfg.Snapshots,
		source:     cfg.Source,
		labeler:    cfg.Labeler,
		cfg:        cfg,
		now:        time.Now,
		autoplays:  make(map[string]*history.Autoplay),
		pollers:    make(map[string]*capture.Poller),
		rootCtx:    ctx,
		rootCancel: cancel,
	}, nil
}

// Close stops every background task.
func (s *Service) Close() {
	s.rootCancel()
	s.mu.Lock()
	autoplays, pollers := s.autoplays, s.pollers
	s.autoplays = make(map[string]*history.Autoplay)
	s.pollers = make(map[string]*capture.Poller)
	s.mu.Unlock()
	for _, ap := range autoplays {
		ap.Stop()
	}
	for _, p := range pollers {
		p.Stop()
	}
}

func (s *Service) newLedger() *history.Ledger {
	return history.New(history.WithLabeler(s.labeler), history.WithClock(s.now))
}

func (s *Service) attach(sess *Session) {
	if sess.History == nil {
		sess.History = s.newLedger()
		return
	}
	sess.History.SetLabeler(s.labeler)
}

func (s *Service) update(ctx context.Context, id string, fn MutateFunc) (*Session, error) {
	return s.store.Update(ctx, id, func(sess *Session) error {
		s.attach(sess)
		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = s.now()
		return nil
	})
}

func (s *Service) Create(ctx context.Context) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:              uuid.NewString(),
		CurrentFEN:      board.StartFEN,
		ShowSuggestions: s.cfg.ShowSuggestions,
		History:         s.newLedger(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	obslog.L().Info("session_created", zap.String("session_id", sess.ID))
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.attach(sess)
	return sess, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.StopAutoplay(id)
	s.StopCapture(id)
	return s.store.Delete(ctx, id)
}

// StartRecording seeds an empty history with the board as it is now.
func (s *Service) StartRecording(ctx context.Context, id string) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		if sess.History.Len() == 0 {
			full := 1.0
			sess.History.Append(sess.CurrentFEN, false, &full)
		}
		return nil
	})
}

// IngestDetection records a detector reading. In live mode, without manual
// edits, a changed placement becomes the current board and a new record.
func (s *Service) IngestDetection(ctx context.Context, id, fen string, confidence float64, suggested string) (*IngestResult, error) {
	if _, err := board.Decode(fen); err != nil {
		return nil, fmt.Errorf("detected position: %w", err)
	}
	appended := false
	sess, err := s.update(ctx, id, func(sess *Session) error {
		appended = false
		c := confidence
		sess.DetectedFEN = fen
		sess.DetectionConfidence = &c
		sess.LastDetection = s.now()
		if strings.TrimSpace(suggested) != "" {
			sess.SuggestedMove = suggested
		}
		if sess.History.IsLive() && !sess.ManualEdit && !board.SamePlacement(fen, sess.CurrentFEN) {
			sess.CurrentFEN = fen
			sess.History.Append(fen, false, &c)
			appended = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if appended {
		obslog.L().Info("position_detected", zap.String("session_id", id), zap.Float64("confidence", confidence), zap.Int("moves", sess.History.Len()))
	}
	return &IngestResult{Session: sess, Appended: appended}, nil
}

// ApplyEdit replaces the board with a manually edited position.
func (s *Service) ApplyEdit(ctx context.Context, id, fen string) (*Session, error) {
	return s.edit(ctx, id, func(string) (string, error) {
		g, err := board.Decode(fen)
		if err != nil {
			return "", err
		}
		return board.Encode(g, board.TailOf(fen)), nil
	})
}

// EditSquare places piece on square ("" or "-" empties it).
func (s *Service) EditSquare(ctx context.Context, id, square, piece string) (*Session, error) {
	sq, err := board.ParseSquare(square)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEdit, err)
	}
	p, err := board.ParsePieceString(piece)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEdit, err)
	}
	return s.edit(ctx, id, func(current string) (string, error) {
		g, err := board.Decode(current)
		if err != nil {
			return "", err
		}
		g.Set(sq, p)
		return board.Encode(g, board.TailOf(current)), nil
	})
}

func (s *Service) edit(ctx context.Context, id string, next func(current string) (string, error)) (*Session, error) {
	s.StopAutoplay(id)
	sess, err := s.update(ctx, id, func(sess *Session) error {
		fen, err := next(sess.CurrentFEN)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEdit, err)
		}
		sess.CurrentFEN = fen
		sess.ManualEdit = true
		if sess.History.IsLive() {
			sess.History.Append(fen, true, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("board_edited", zap.String("session_id", id), zap.String("fen", sess.CurrentFEN))
	if sess.ShowSuggestions {
		if withSuggestion, err := s.refreshSuggestion(ctx, id); err == nil {
			sess = withSuggestion
		}
	}
	return sess, nil
}

// AcceptDetected adopts the last detected position and drops the manual
// edit flag.
func (s *Service) AcceptDetected(ctx context.Context, id string) (*Session, error) {
	s.StopAutoplay(id)
	return s.update(ctx, id, func(sess *Session) error {
		if strings.TrimSpace(sess.DetectedFEN) == "" {
			return ErrNothingDetected
		}
		changed := !board.SamePlacement(sess.CurrentFEN, sess.DetectedFEN)
		sess.CurrentFEN = sess.DetectedFEN
		sess.ManualEdit = false
		if changed {
			sess.History.Append(sess.DetectedFEN, false, sess.DetectionConfidence)
		}
		return nil
	})
}

func (s *Service) SelectMove(ctx context.Context, id string, index int) (*Session, error) {
	s.StopAutoplay(id)
	return s.selectMove(ctx, id, index)
}

func (s *Service) selectMove(ctx context.Context, id string, index int) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		mv, err := sess.History.SelectMove(index)
		if err != nil {
			return err
		}
		sess.CurrentFEN = mv.FEN
		return nil
	})
}

func (s *Service) Navigate(ctx context.Context, id, target string) (*Session, error) {
	s.StopAutoplay(id)
	return s.update(ctx, id, func(sess *Session) error {
		mv, err := sess.History.Navigate(target)
		if err != nil {
			return err
		}
		sess.CurrentFEN = mv.FEN
		return nil
	})
}

// ToggleLive flips live/review mode. Going live jumps to the newest record
// and forgets manual edits.
func (s *Service) ToggleLive(ctx context.Context, id string) (*Session, error) {
	s.StopAutoplay(id)
	return s.update(ctx, id, func(sess *Session) error {
		if sess.History.ToggleLiveMode() {
			if last, ok := sess.History.Last(); ok {
				sess.CurrentFEN = last.FEN
			}
			sess.ManualEdit = false
		}
		return nil
	})
}

// Clear wipes the history and resets the board. It is destructive, so the
// caller must pass confirm.
func (s *Service) Clear(ctx context.Context, id string, confirm bool) (*Session, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}
	s.StopAutoplay(id)
	sess, err := s.update(ctx, id, func(sess *Session) error {
		sess.History.Clear()
		sess.CurrentFEN = board.StartFEN
		sess.DetectedFEN = ""
		sess.DetectionConfidence = nil
		sess.SuggestedMove = ""
		sess.ManualEdit = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("history_cleared", zap.String("session_id", id))
	return sess, nil
}

// PGN exports the history and the matching download name.
func (s *Service) PGN(ctx context.Context, id string) (pgn, filename string, err error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	now := s.now()
	return sess.History.ExportPGN(now), history.PGNFilename(now), nil
}

// Upload runs the offline flow: one still image, no history. A failed
// detection resets the board to the start position and reports why.
func (s *Service) Upload(ctx context.Context, id, filename string, image []byte) (*UploadResult, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	fen, confidence, detectErr := s.detect(ctx, filename, image)
	res := &UploadResult{FEN: fen, Confidence: confidence}
	if detectErr != nil {
		obslog.L().Warn("upload_detect_failed", zap.String("session_id", id), zap.Error(detectErr))
		res.FEN = board.StartFEN
		res.Confidence = 0
		res.FellBack = true
		res.Err = detectErr.Error()
	}
	sess, err := s.update(ctx, id, func(sess *Session) error {
		sess.CurrentFEN = res.FEN
		sess.ManualEdit = false
		if res.FellBack {
			sess.DetectedFEN = board.StartFEN
			sess.DetectionConfidence = nil
			return nil
		}
		c := res.Confidence
		sess.DetectedFEN = res.FEN
		sess.DetectionConfidence = &c
		sess.LastDetection = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Session = sess
	return res, nil
}

func (s *Service) detect(ctx context.Context, filename string, image []byte) (string, float64, error) {
	reply, err := s.backend.DetectPosition(ctx, filename, image)
	if err != nil {
		return "", 0, err
	}
	if !reply.Success {
		msg := strings.TrimSpace(reply.Error)
		if msg == "" {
			msg = "detection unsuccessful"
		}
		return "", 0, errors.New(msg)
	}
	if _, err := board.Decode(reply.FEN); err != nil {
		return "", 0, fmt.Errorf("detected position: %w", err)
	}
	return reply.FEN, reply.Confidence, nil
}

// Suggest asks the backend about the current board and remembers the
// suggested move.
func (s *Service) Suggest(ctx context.Context, id string) (*backend.AnalyzeReply, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reply, err := s.backend.AnalyzePosition(ctx, sess.CurrentFEN)
	if err != nil {
		return nil, err
	}
	_, err = s.update(ctx, id, func(sess *Session) error {
		sess.SuggestedMove = reply.SuggestedMove
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *Service) refreshSuggestion(ctx context.Context, id string) (*Session, error) {
	if _, err := s.Suggest(ctx, id); err != nil {
		obslog.L().Warn("suggestion_failed", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) SetShowSuggestions(ctx context.Context, id string, on bool) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		sess.ShowSuggestions = on
		if !on {
			sess.SuggestedMove = ""
		}
		return nil
	})
}

// Links builds external analysis URLs for the current board.
func (s *Service) Links(ctx context.Context, id string) (*Links, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return AnalysisLinks(sess.CurrentFEN), nil
}

func AnalysisLinks(fen string) *Links {
	enc := url.PathEscape(fen)
	return &Links{
		Lichess:  "https://lichess.org/analysis/" + enc,
		ChessCom: "https://www.chess.com/analysis?fen=" + enc,
	}
}

// SaveGame stores the full history as a game snapshot.
func (s *Service) SaveGame(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if s.snapshots == nil {
		return nil, ErrNoSnapshotStore
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(sess.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	saved, err := s.snapshots.Save(ctx, &snapshot.Snapshot{
		Kind:         snapshot.KindGame,
		SessionID:    sess.ID,
		FEN:          sess.CurrentFEN,
		IsManualEdit: sess.ManualEdit,
		MoveCount:    sess.History.Len(),
		History:      raw,
		PGN:          sess.History.ExportPGN(s.now()),
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_saved", zap.String("session_id", id), zap.String("snapshot_id", saved.ID), zap.Int("moves", saved.MoveCount))
	return saved, nil
}

// SavePosition stores only the current board.
func (s *Service) SavePosition(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if s.snapshots == nil {
		return nil, ErrNoSnapshotStore
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshots.Save(ctx, &snapshot.Snapshot{
		Kind:         snapshot.KindPosition,
		SessionID:    sess.ID,
		FEN:          sess.CurrentFEN,
		Confidence:   sess.DetectionConfidence,
		IsManualEdit: sess.ManualEdit,
		MoveCount:    sess.History.Len(),
	})
}
