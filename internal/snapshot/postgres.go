package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS vision_snapshots (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	session_id     TEXT NOT NULL DEFAULT '',
	fen            TEXT NOT NULL,
	confidence     DOUBLE PRECISION,
	is_manual_edit BOOLEAN NOT NULL DEFAULT FALSE,
	move_count     INTEGER NOT NULL DEFAULT 0,
	history        JSONB,
	pgn            TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS vision_snapshots_kind_created_idx ON vision_snapshots (kind, created_at DESC);`

type pgRepo struct {
	db *sql.DB
}

// OpenPostgres connects with the same pool settings everywhere and makes
// sure the table exists.
func OpenPostgres(ctx context.Context, dsn string) (Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres snapshot store")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := &pgRepo{db: db}
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgresRepository wraps an already configured pool. The table must
// exist.
func NewPostgresRepository(db *sql.DB) Repository {
	return &pgRepo{db: db}
}

func (r *pgRepo) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create vision_snapshots: %w", err)
	}
	return nil
}

func (r *pgRepo) Save(ctx context.Context, s *Snapshot) (*Snapshot, error) {
	out, err := prepare(s)
	if err != nil {
		return nil, err
	}
	var history any
	if len(out.History) > 0 {
		history = string(out.History)
	}
	const query = `
		INSERT INTO vision_snapshots (
			id,
			kind,
			session_id,
			fen,
			confidence,
			is_manual_edit,
			move_count,
			history,
			pgn,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			fen = EXCLUDED.fen,
			confidence = EXCLUDED.confidence,
			is_manual_edit = EXCLUDED.is_manual_edit,
			move_count = EXCLUDED.move_count,
			history = EXCLUDED.history,
			pgn = EXCLUDED.pgn`
	_, err = r.db.ExecContext(ctx, query,
		out.ID,
		string(out.Kind),
		out.SessionID,
		out.FEN,
		nullFloat(out.Confidence),
		out.IsManualEdit,
		out.MoveCount,
		history,
		out.PGN,
		out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return out, nil
}

const selectColumns = `id, kind, session_id, fen, confidence, is_manual_edit, move_count, history, pgn, created_at`

func (r *pgRepo) Get(ctx context.Context, id string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM vision_snapshots WHERE id = $1`, id)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return s, nil
}

func (r *pgRepo) List(ctx context.Context, kind Kind, limit int) ([]*Snapshot, error) {
	limit = normalizeLimit(limit)
	query := `SELECT ` + selectColumns + ` FROM vision_snapshots
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer rows.Close()

	items := make([]*Snapshot, 0, limit)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return items, nil
}

func (r *pgRepo) Close() error { return r.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		s          Snapshot
		kind       string
		confidence sql.NullFloat64
		history    []byte
	)
	if err := row.Scan(
		&s.ID,
		&kind,
		&s.SessionID,
		&s.FEN,
		&confidence,
		&s.IsManualEdit,
		&s.MoveCount,
		&history,
		&s.PGN,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	s.Kind = Kind(kind)
	if confidence.Valid {
		v := confidence.Float64
		s.Confidence = &v
	}
	if len(history) > 0 {
		s.History = history
	}
	return &s, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
