package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucket = "snapshots"

type boltRepo struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) a bbolt file holding snapshots as JSON keyed
// by ID.
func OpenBolt(path string) (Repository, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(boltBucket)); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltRepo{db: db}, nil
}

func (r *boltRepo) Save(ctx context.Context, s *Snapshot) (*Snapshot, error) {
	out, err := prepare(s)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return errors.New("bucket not found")
		}
		return b.Put([]byte(out.ID), raw)
	})
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return out, nil
}

func (r *boltRepo) Get(ctx context.Context, id string) (*Snapshot, error) {
	var out *Snapshot
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return errors.New("bucket not found")
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		var s Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode snapshot %s: %w", id, err)
		}
		out = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *boltRepo) List(ctx context.Context, kind Kind, limit int) ([]*Snapshot, error) {
	var items []*Snapshot
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return errors.New("bucket not found")
		}
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var s Snapshot
			if err := json.Unmarshal(v, &s); err != nil {
				// skip unreadable entries rather than failing the listing
				return nil
			}
			if kind != "" && s.Kind != kind {
				return nil
			}
			items = append(items, &s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	if n := normalizeLimit(limit); len(items) > n {
		items = items[:n]
	}
	if items == nil {
		items = []*Snapshot{}
	}
	return items, nil
}

func (r *boltRepo) Close() error { return r.db.Close() }
