package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

func (l *Ledger) Kitty(owner model.AccountID, id model.KittyID) (genetics.DNA, bool, error) {
	return getKitty(l.store, owner, id)
}

func (l *Ledger) OwnerOf(id model.KittyID) (model.AccountID, bool, error) {
	return ownerOf(l.store, id)
}

func (l *Ledger) Lineage(id model.KittyID) (model.Lineage, bool, error) {
	raw, ok, err := l.store.Get(kv.IDKey(kv.PrefixLineage, uint32(id)))
	if err != nil || !ok {
		return model.Lineage{}, false, err
	}
	lin, err := decodeLineage(raw)
	if err != nil {
		return model.Lineage{}, false, err
	}
	return lin, true, nil
}

// Price reports the active listing for id, if any.
func (l *Ledger) Price(id model.KittyID) (decimal.Decimal, bool, error) {
	return priceOf(l.store, id)
}

func (l *Ledger) NextID() (model.KittyID, error) {
	return readNextID(l.store)
}

type Holding struct {
	ID  model.KittyID
	DNA genetics.DNA
}

// KittiesOf lists owner's kitties in ascending id order.
func (l *Ledger) KittiesOf(owner model.AccountID) ([]Holding, error) {
	var out []Holding
	err := l.store.Scan(kv.OwnerPrefix(string(owner)), func(k, v []byte) error {
		_, id, ok := kv.SplitKittyKey(k)
		if !ok {
			return nil
		}
		dna, err := decodeDNA(v)
		if err != nil {
			return err
		}
		out = append(out, Holding{ID: model.KittyID(id), DNA: dna})
		return nil
	})
	return out, err
}

// Digest hashes every entry of the namespace in key order. Two ledgers with
// equal digests hold the same state.
func (l *Ledger) Digest() (string, error) {
	return Digest(l.store)
}

func Digest(r kv.Reader) (string, error) {
	h := sha256.New()
	var tmp [4]byte
	err := r.Scan(nil, func(k, v []byte) error {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(k)))
		h.Write(tmp[:])
		h.Write(k)
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(v)))
		h.Write(tmp[:])
		h.Write(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
