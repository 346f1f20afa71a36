// Package kv is the storage contract under the ledger: a flat, ordered
// key-value namespace that applies batches of writes atomically.
package kv

import (
	"errors"
)

var ErrClosed = errors.New("kv: store closed")

// Write is one staged mutation. Delete ignores Value.
type Write struct {
	Key    []byte
	Value  []byte
	Delete bool
}

type Reader interface {
	// Get returns a copy of the stored value.
	Get(key []byte) ([]byte, bool, error)
	// Scan visits every key with the prefix in ascending byte order.
	// An error returned by fn stops the scan and is returned.
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

type ReadWriter interface {
	Reader
	Put(key, value []byte)
	Delete(key []byte)
}

// Store applies a batch of writes as one unit: either every write lands or none does.
type Store interface {
	Reader
	Apply(writes []Write) error
	Close() error
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
