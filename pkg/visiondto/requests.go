package visiondto

// AnalyzeRequest is the body of POST /api/analyze-position.
type AnalyzeRequest struct {
	FEN string `json:"fen"`
}

// EditRequest replaces the whole board with FEN, or sets one square.
type EditRequest struct {
	FEN    string  `json:"fen,omitempty"`
	Square string  `json:"square,omitempty"`
	Piece  *string `json:"piece,omitempty"`
}

type SelectRequest struct {
	Index *int `json:"index"`
}

type NavigateRequest struct {
	To string `json:"to"`
}

type ClearRequest struct {
	Confirm bool `json:"confirm"`
}

type AutoplayRequest struct {
	Action  string `json:"action"` // start | stop | delay
	DelayMs int    `json:"delayMs,omitempty"`
}

type CaptureRequest struct {
	Action string `json:"action"` // start | stop
}

type SuggestionsRequest struct {
	Enabled bool `json:"enabled"`
}

// DetectionRequest pushes one detector result into a session, for capture
// clients that talk to the backend themselves.
type DetectionRequest struct {
	FEN           string   `json:"fen"`
	Confidence    *float64 `json:"confidence,omitempty"`
	SuggestedMove string   `json:"suggestedMove,omitempty"`
}
