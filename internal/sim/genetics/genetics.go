// Package genetics derives kitty traits from DNA and mixes parent DNA for offspring.
package genetics

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// DNALen is the size of a kitty's genetic payload.
const DNALen = 16

type DNA [DNALen]byte

type Gender int

const (
	Male Gender = iota
	Female
)

var ErrIncompatibleGenders = errors.New("kitties share the same gender")

func (g Gender) String() string {
	switch g {
	case Male:
		return "MALE"
	case Female:
		return "FEMALE"
	default:
		return fmt.Sprintf("GENDER(%d)", int(g))
	}
}

// DeriveGender reads the parity of the first DNA byte: even is male, odd is female.
func DeriveGender(dna DNA) Gender {
	if dna[0]%2 == 0 {
		return Male
	}
	return Female
}

func (d DNA) Gender() Gender { return DeriveGender(d) }

// PairForBreeding orders two kitties as (mother, father). It fails when both
// share a gender, including when the same DNA is passed twice.
func PairForBreeding(a, b DNA) (mother DNA, father DNA, err error) {
	switch {
	case a.Gender() == Female && b.Gender() == Male:
		return a, b, nil
	case a.Gender() == Male && b.Gender() == Female:
		return b, a, nil
	default:
		return DNA{}, DNA{}, ErrIncompatibleGenders
	}
}

// MixGenetics picks bits from the mother where the entropy bit is 0 and from
// the father where it is 1. The two halves are combined with byte addition;
// the masks are complementary so the sum never carries.
func MixGenetics(entropy, mother, father DNA) DNA {
	var out DNA
	for i := range out {
		out[i] = (^entropy[i] & mother[i]) + (entropy[i] & father[i])
	}
	return out
}

func (d DNA) String() string { return hex.EncodeToString(d[:]) }

func (d DNA) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d[:])), nil
}

func (d *DNA) UnmarshalText(b []byte) error {
	parsed, err := ParseDNA(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func ParseDNA(s string) (DNA, error) {
	var d DNA
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("dna: %w", err)
	}
	if len(raw) != DNALen {
		return d, fmt.Errorf("dna: want %d bytes, got %d", DNALen, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}
