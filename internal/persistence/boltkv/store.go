// Package boltkv provides a BoltDB-backed ledger store.
package boltkv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"kittyledger.dev/internal/sim/ledger/kv"
)

const ledgerBucket = "ledger"

// Store keeps the whole ledger namespace in one bucket. Apply runs every
// write of a batch inside a single bolt transaction.
type Store struct {
	db *bbolt.DB
}

var _ kv.Store = (*Store)(nil)

// Open opens (or creates) a BoltDB-backed store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, kv.ErrClosed
	}
	var (
		out []byte
		ok  bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		if bucket == nil {
			return fmt.Errorf("ledger bucket is missing")
		}
		v := bucket.Get(key)
		if v == nil {
			return nil
		}
		// Values are only valid for the life of the transaction.
		out = append([]byte{}, v...)
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, ok, nil
}

func (s *Store) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if s == nil || s.db == nil {
		return kv.ErrClosed
	}
	type entry struct{ k, v []byte }
	var entries []entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		if bucket == nil {
			return fmt.Errorf("ledger bucket is missing")
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			entries = append(entries, entry{
				k: append([]byte{}, k...),
				v: append([]byte{}, v...),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	// fn runs outside the read tx so it may call back into the store.
	for _, e := range entries {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Apply(writes []kv.Write) error {
	if s == nil || s.db == nil {
		return kv.ErrClosed
	}
	if len(writes) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		if bucket == nil {
			return fmt.Errorf("ledger bucket is missing")
		}
		for _, w := range writes {
			if len(w.Key) == 0 {
				return fmt.Errorf("empty key in batch")
			}
			if w.Delete {
				if err := bucket.Delete(w.Key); err != nil {
					return fmt.Errorf("delete %x: %w", w.Key, err)
				}
				continue
			}
			if err := bucket.Put(w.Key, w.Value); err != nil {
				return fmt.Errorf("put %x: %w", w.Key, err)
			}
		}
		return nil
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(ledgerBucket)); err != nil {
			return fmt.Errorf("create ledger bucket: %w", err)
		}
		return nil
	})
}
