package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func repos(t *testing.T) map[string]Repository {
	t.Helper()
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"bolt":   bolt,
	}
}

func TestSaveAndGet(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conf := 0.75
			saved, err := repo.Save(ctx, &Snapshot{
				Kind:       KindGame,
				SessionID:  "s1",
				FEN:        "8/8/8/8/8/8/8/8 w - - 0 1",
				Confidence: &conf,
				MoveCount:  2,
				History:    json.RawMessage(`{"moves":[],"cursor":-1,"isLiveMode":true}`),
			})
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if saved.ID == "" || saved.CreatedAt.IsZero() {
				t.Fatalf("generated fields missing: %+v", saved)
			}
			got, err := repo.Get(ctx, saved.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.FEN != saved.FEN || got.Confidence == nil || *got.Confidence != conf || got.MoveCount != 2 || len(got.History) == 0 {
				t.Fatalf("round trip mismatch: %+v", got)
			}
			if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSaveRejectsUnknownKind(t *testing.T) {
	for name, repo := range repos(t) {
		if _, err := repo.Save(context.Background(), &Snapshot{Kind: "board"}); !errors.Is(err, ErrInvalidKind) {
			t.Fatalf("%s: expected ErrInvalidKind, got %v", name, err)
		}
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
			for i, kind := range []Kind{KindPosition, KindGame, KindPosition, KindPosition} {
				if _, err := repo.Save(ctx, &Snapshot{Kind: kind, FEN: "x", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
					t.Fatalf("Save: %v", err)
				}
			}
			all, err := repo.List(ctx, "", 0)
			if err != nil || len(all) != 4 {
				t.Fatalf("List all: %d %v", len(all), err)
			}
			positions, err := repo.List(ctx, KindPosition, 2)
			if err != nil {
				t.Fatalf("List positions: %v", err)
			}
			if len(positions) != 2 {
				t.Fatalf("limit not applied: %d", len(positions))
			}
			if !positions[0].CreatedAt.After(positions[1].CreatedAt) {
				t.Fatalf("not newest first: %v %v", positions[0].CreatedAt, positions[1].CreatedAt)
			}
			for _, p := range positions {
				if p.Kind != KindPosition {
					t.Fatalf("kind filter leaked %s", p.Kind)
				}
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" Game "); err != nil || k != KindGame {
		t.Fatalf("ParseKind: %v %v", k, err)
	}
	if k, err := ParseKind(""); err != nil || k != "" {
		t.Fatalf("empty kind: %v %v", k, err)
	}
	if _, err := ParseKind("other"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}
