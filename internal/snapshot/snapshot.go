package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("snapshot not found")
	ErrInvalidKind = errors.New("invalid snapshot kind")
)

type Kind string

const (
	KindPosition Kind = "position"
	KindGame     Kind = "game"
)

const DefaultListLimit = 20

// ParseKind accepts "" as "any kind".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindPosition, KindGame:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Snapshot is a saved position, or a saved game with its full move history.
type Snapshot struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	SessionID    string          `json:"sessionId,omitempty"`
	FEN          string          `json:"fen"`
	Confidence   *float64        `json:"confidence,omitempty"`
	IsManualEdit bool            `json:"isManualEdit"`
	MoveCount    int             `json:"moveCount"`
	History      json.RawMessage `json:"history,omitempty"`
	PGN          string          `json:"pgn,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type Repository interface {
	Save(ctx context.Context, s *Snapshot) (*Snapshot, error)
	Get(ctx context.Context, id string) (*Snapshot, error)
	// List returns the newest snapshots first. An empty kind matches all.
	List(ctx context.Context, kind Kind, limit int) ([]*Snapshot, error)
	Close() error
}

// prepare validates s and fills the generated fields on a copy.
func prepare(s *Snapshot) (*Snapshot, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	if s.Kind != KindPosition && s.Kind != KindGame {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, s.Kind)
	}
	out := *s
	if strings.TrimSpace(out.ID) == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if len(out.History) == 0 {
		out.History = nil
	}
	return &out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func sortNewestFirst(items []*Snapshot) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
