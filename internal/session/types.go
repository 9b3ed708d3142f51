package session

import (
	"errors"
	"time"

	"github.com/park285/chess-vision/internal/history"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrConfirmationRequired = errors.New("clearing the history requires confirmation")
	ErrInvalidEdit          = errors.New("invalid board edit")
	ErrCaptureUnavailable   = errors.New("no frame source configured")
	ErrNothingDetected      = errors.New("no detected position to accept")
	ErrNothingToPlay        = errors.New("already at the last move")
	ErrNoSnapshotStore      = errors.New("snapshot store not configured")
)

// Session is the server-side state of one board being watched.
type Session struct {
	ID                  string          `json:"id"`
	CurrentFEN          string          `json:"currentFen"`
	DetectedFEN         string          `json:"detectedFen,omitempty"`
	DetectionConfidence *float64        `json:"detectionConfidence,omitempty"`
	LastDetection       time.Time       `json:"lastDetection,omitempty"`
	SuggestedMove       string          `json:"suggestedMove,omitempty"`
	ShowSuggestions     bool            `json:"showSuggestions"`
	ManualEdit          bool            `json:"hasManualEdits"`
	History             *history.Ledger `json:"history"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// UploadResult describes one offline image analysis. Err is set when the
// detector failed and the board fell back to the start position.
type UploadResult struct {
	Session    *Session `json:"session"`
	FEN        string   `json:"fen"`
	Confidence float64  `json:"confidence"`
	FellBack   bool     `json:"fellBack"`
	Err        string   `json:"error,omitempty"`
}

// IngestResult reports what a detection did to the session.
type IngestResult struct {
	Session  *Session `json:"session"`
	Appended bool     `json:"appended"`
}

// Links are external analysis boards for the current position.
type Links struct {
	Lichess  string `json:"lichess"`
	ChessCom string `json:"chessCom"`
}
