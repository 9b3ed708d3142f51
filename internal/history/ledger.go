package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-vision/internal/board"
)

var (
	ErrIndexOutOfRange = errors.New("move index out of range")
	ErrEmpty           = errors.New("move history is empty")
	ErrCorruptLedger   = errors.New("corrupt move history")
	ErrUnknownTarget   = errors.New("unknown navigation target")
)

// Move is an immutable record of one observed position.
type Move struct {
	ID           string    `json:"id"`
	FEN          string    `json:"fen"`
	Notation     string    `json:"moveNotation,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Confidence   *float64  `json:"confidence,omitempty"`
	IsManualEdit bool      `json:"isManualEdit"`
	MoveNumber   int       `json:"moveNumber"`
	IsWhiteMove  bool      `json:"isWhiteMove"`
}

// Ledger is an append-only, navigable sequence of positions with a cursor
// and a live/review flag. The cursor is -1 exactly when the ledger is empty.
type Ledger struct {
	moves   []Move
	cursor  int
	live    bool
	labeler board.Labeler
	now     func() time.Time
	newID   func() string
}

type Option func(*Ledger)

func WithLabeler(l board.Labeler) Option {
	return func(ld *Ledger) {
		if l != nil {
			ld.labeler = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(ld *Ledger) {
		if now != nil {
			ld.now = now
		}
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		cursor:  -1,
		live:    true,
		labeler: board.PlaceholderLabeler{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetLabeler swaps the labeler, e.g. after decoding a stored ledger.
func (l *Ledger) SetLabeler(lb board.Labeler) {
	if lb != nil {
		l.labeler = lb
	}
}

// Append records fen as the newest position and moves the cursor onto it.
// confidence may be nil when the position did not come from the detector.
func (l *Ledger) Append(fen string, manual bool, confidence *float64) Move {
	number, white := 1, true
	prev := ""
	if n := len(l.moves); n > 0 {
		last := l.moves[n-1]
		prev = last.FEN
		if last.IsWhiteMove {
			number, white = last.MoveNumber, false
		} else {
			number, white = last.MoveNumber+1, true
		}
	}

	mv := Move{
		ID:           l.newID(),
		FEN:          fen,
		Notation:     l.labeler.Label(prev, fen, len(l.moves)+1),
		Timestamp:    l.now(),
		Confidence:   clampConfidence(confidence),
		IsManualEdit: manual,
		MoveNumber:   number,
		IsWhiteMove:  white,
	}
	l.moves = append(l.moves, mv)
	l.cursor = len(l.moves) - 1
	return mv
}

// SelectMove moves the cursor to index and enters review mode. An
// out-of-range index leaves the ledger untouched.
func (l *Ledger) SelectMove(index int) (Move, error) {
	if index < 0 || index >= len(l.moves) {
		return Move{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(l.moves))
	}
	l.cursor = index
	l.live = false
	return l.moves[index], nil
}

// ToggleLiveMode flips between live and review mode and reports whether the
// ledger is now live. Entering live mode jumps to the newest record.
func (l *Ledger) ToggleLiveMode() bool {
	if !l.live && len(l.moves) > 0 {
		l.cursor = len(l.moves) - 1
	}
	l.live = !l.live
	return l.live
}

// Clear drops every record. The live flag is left as is.
func (l *Ledger) Clear() {
	l.moves = nil
	l.cursor = -1
}

// Nav targets for Navigate.
const (
	NavFirst = "first"
	NavPrev  = "prev"
	NavNext  = "next"
	NavLast  = "last"
)

// Navigate resolves a relative target and selects it.
func (l *Ledger) Navigate(target string) (Move, error) {
	if len(l.moves) == 0 {
		return Move{}, ErrEmpty
	}
	idx := l.cursor
	switch target {
	case NavFirst:
		idx = 0
	case NavPrev:
		idx = l.cursor - 1
	case NavNext:
		idx = l.cursor + 1
	case NavLast:
		idx = len(l.moves) - 1
	default:
		return Move{}, fmt.Errorf("%w %q", ErrUnknownTarget, target)
	}
	return l.SelectMove(idx)
}

// Current returns the record under the cursor.
func (l *Ledger) Current() (Move, bool) {
	if l.cursor < 0 {
		return Move{}, false
	}
	return l.moves[l.cursor], true
}

// Last returns the newest record.
func (l *Ledger) Last() (Move, bool) {
	if len(l.moves) == 0 {
		return Move{}, false
	}
	return l.moves[len(l.moves)-1], true
}

// Moves returns a copy of the records.
func (l *Ledger) Moves() []Move { return append([]Move(nil), l.moves...) }

func (l *Ledger) Len() int     { return len(l.moves) }
func (l *Ledger) Cursor() int  { return l.cursor }
func (l *Ledger) IsLive() bool { return l.live }

// AtEnd reports whether the cursor sits on the newest record (or the ledger
// is empty).
func (l *Ledger) AtEnd() bool { return l.cursor >= len(l.moves)-1 }

func clampConfidence(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := *c
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}

type ledgerState struct {
	Moves  []Move `json:"moves"`
	Cursor int    `json:"cursor"`
	Live   bool   `json:"isLiveMode"`
}

func (l *Ledger) MarshalJSON() ([]byte, error) {
	moves := l.moves
	if moves == nil {
		moves = []Move{}
	}
	return json.Marshal(ledgerState{Moves: moves, Cursor: l.cursor, Live: l.live})
}

// UnmarshalJSON restores a ledger and rejects states that break the cursor
// invariant. The labeler and clock are not part of the encoding.
func (l *Ledger) UnmarshalJSON(b []byte) error {
	var st ledgerState
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	if len(st.Moves) == 0 && st.Cursor != -1 {
		return fmt.Errorf("%w: cursor %d on empty ledger", ErrCorruptLedger, st.Cursor)
	}
	if len(st.Moves) > 0 && (st.Cursor < 0 || st.Cursor >= len(st.Moves)) {
		return fmt.Errorf("%w: cursor %d outside %d moves", ErrCorruptLedger, st.Cursor, len(st.Moves))
	}
	if l.labeler == nil {
		l.labeler = board.PlaceholderLabeler{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	l.moves = st.Moves
	if len(l.moves) == 0 {
		l.moves = nil
	}
	l.cursor = st.Cursor
	l.live = st.Live
	return nil
}
