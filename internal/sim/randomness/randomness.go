// Package randomness supplies the per-cycle seed that kitty DNA is derived from.
package randomness

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"kittyledger.dev/internal/sim/genetics"
)

type Source interface {
	Seed(cycle uint64) genetics.Seed
}

// Crypto draws every seed from the operating system.
type Crypto struct{}

func (Crypto) Seed(uint64) genetics.Seed {
	var s genetics.Seed
	if _, err := rand.Read(s[:]); err != nil {
		panic(fmt.Sprintf("randomness: read: %v", err))
	}
	return s
}

// Deterministic hashes a fixed seed with the cycle number, so a run can be
// reproduced from its configuration alone.
type Deterministic struct {
	Base int64
}

func (d Deterministic) Seed(cycle uint64) genetics.Seed {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(d.Base))
	binary.LittleEndian.PutUint64(buf[8:], cycle)
	return genetics.Seed(blake2b.Sum256(buf[:]))
}

// Fixed returns the same seed for every cycle. Replay uses it to feed back a
// recorded seed.
type Fixed genetics.Seed

func (f Fixed) Seed(uint64) genetics.Seed { return genetics.Seed(f) }

// New picks a source by mode name: "crypto" or "deterministic".
func New(mode string, seed int64) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "crypto":
		return Crypto{}, nil
	case "deterministic":
		return Deterministic{Base: seed}, nil
	default:
		return nil, fmt.Errorf("unknown randomness mode %q", mode)
	}
}
