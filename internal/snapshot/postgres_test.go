package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs against a real database only when DATABASE_URL is set.
func openTestPostgres(t *testing.T) (*sql.DB, Repository) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	repo := NewPostgresRepository(db)
	if err := repo.(*pgRepo).migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, repo
}

func TestPostgresSaveGetList(t *testing.T) {
	db, repo := openTestPostgres(t)
	ctx := context.Background()
	session := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM vision_snapshots WHERE session_id = $1`, session)
	})

	conf := 0.5
	// created in the future so it sorts ahead of anything already stored
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Millisecond)
	older, err := repo.Save(ctx, &Snapshot{Kind: KindPosition, SessionID: session, FEN: "8/8/8/8/8/8/8/8 w - - 0 1", CreatedAt: base})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	newer, err := repo.Save(ctx, &Snapshot{
		Kind:       KindGame,
		SessionID:  session,
		FEN:        "8/8/8/8/8/8/8/K6k w - - 0 1",
		Confidence: &conf,
		MoveCount:  3,
		History:    json.RawMessage(`{"moves":[],"cursor":-1,"isLiveMode":true}`),
		PGN:        "1. e4 *",
		CreatedAt:  base.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx, newer.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != KindGame || got.Confidence == nil || *got.Confidence != conf || got.MoveCount != 3 || got.PGN != "1. e4 *" || len(got.History) == 0 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if again, err := repo.Get(ctx, older.ID); err != nil || again.Confidence != nil || again.History != nil {
		t.Fatalf("nullable columns: %+v %v", again, err)
	}
	if _, err := repo.Get(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	all, err := repo.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != newer.ID || all[1].ID != older.ID {
		t.Fatalf("want newest first, got %+v", all)
	}
	positions, err := repo.List(ctx, KindPosition, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(positions) != 1 || positions[0].ID != older.ID {
		t.Fatalf("kind filter: %+v", positions)
	}
}
