package genetics

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// SeedLen is the size of a randomness seed handed out per processing cycle.
const SeedLen = 32

type Seed [SeedLen]byte

// DerivePayload hashes (seed, caller, discriminant) into 16 bytes with BLAKE2b.
// Callers in the same cycle share a seed; the caller id and the position of the
// command inside the cycle keep payloads apart.
func DerivePayload(seed Seed, caller string, discriminant uint32) DNA {
	h, err := blake2b.New(DNALen, nil)
	if err != nil {
		// Only returned for sizes outside 1..64 or oversized keys.
		panic(err)
	}
	var tmp [4]byte
	h.Write(seed[:])
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(caller)))
	h.Write(tmp[:])
	h.Write([]byte(caller))
	binary.LittleEndian.PutUint32(tmp[:], discriminant)
	h.Write(tmp[:])

	var out DNA
	copy(out[:], h.Sum(nil))
	return out
}
