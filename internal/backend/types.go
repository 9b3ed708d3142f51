package backend

import (
	"encoding/json"
	"fmt"
)

type AnalyzeRequest struct {
	FEN string `json:"fen"`
}

// Evaluation is the backend's static summary of a position.
type Evaluation struct {
	MaterialBalance int             `json:"materialBalance"`
	WhiteToMove     bool            `json:"whiteToMove"`
	CanCastle       map[string]bool `json:"canCastle,omitempty"`
	InCheck         bool            `json:"inCheck"`
	MoveCount       int             `json:"moveCount"`
	Error           string          `json:"error,omitempty"`
}

type AnalyzeReply struct {
	Success       bool        `json:"success"`
	FEN           string      `json:"fen"`
	SuggestedMove string      `json:"suggestedMove"`
	Evaluation    *Evaluation `json:"evaluation,omitempty"`
	IsGameOver    bool        `json:"isGameOver"`
	LegalMoves    []string    `json:"legalMoves,omitempty"`

	// Raw is the backend body as received.
	Raw json.RawMessage `json:"-"`
}

type DetectReply struct {
	Success    bool    `json:"success"`
	FEN        string  `json:"fen"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type HealthReply struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type EngineInfo struct {
	EngineAvailable bool     `json:"engineAvailable"`
	EnginePath      string   `json:"enginePath,omitempty"`
	ModelLoaded     bool     `json:"modelLoaded"`
	ModelPath       string   `json:"modelPath,omitempty"`
	ClassNames      []string `json:"classNames,omitempty"`
}

// StatusError is returned for any non-2xx backend reply.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend error: status=%d body=%s", e.Status, e.Body)
}

// Detail extracts the backend's own message (FastAPI "detail" or "error"),
// falling back to the raw body.
func (e *StatusError) Detail() string {
	var parsed struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &parsed) == nil {
		if s, ok := parsed.Detail.(string); ok && s != "" {
			return s
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return e.Body
}
