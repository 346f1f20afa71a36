package ledger

import (
	"encoding/binary"
	"fmt"

	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

// Mint stores a new kitty for owner with entropy as its DNA.
func (l *Ledger) Mint(owner model.AccountID, entropy genetics.DNA) (model.KittyID, genetics.DNA, error) {
	var id model.KittyID
	err := l.update(func(tx *txn) error {
		var err error
		id, err = nextID(tx)
		if err != nil {
			return err
		}
		if err := putKitty(tx, owner, id, entropy); err != nil {
			return err
		}
		tx.emit(Notification{Kind: KindCreated, Owner: owner, KittyID: id, Kitty: entropy})
		return nil
	})
	if err != nil {
		return 0, genetics.DNA{}, err
	}
	return id, entropy, nil
}

// Breed mixes two kitties held by owner into a new one. The lineage records
// the female parent as mother whatever the argument order.
func (l *Ledger) Breed(owner model.AccountID, parent1, parent2 model.KittyID, entropy genetics.DNA) (model.KittyID, genetics.DNA, error) {
	var (
		id    model.KittyID
		child genetics.DNA
	)
	err := l.update(func(tx *txn) error {
		dna1, err := mustOwn(tx, owner, parent1)
		if err != nil {
			return err
		}
		dna2, err := mustOwn(tx, owner, parent2)
		if err != nil {
			return err
		}
		mother, father, err := genetics.PairForBreeding(dna1, dna2)
		if err != nil {
			return err
		}
		lin := model.Lineage{Mother: parent1, Father: parent2}
		if dna1.Gender() == genetics.Male {
			lin = model.Lineage{Mother: parent2, Father: parent1}
		}

		child = genetics.MixGenetics(entropy, mother, father)
		id, err = nextID(tx)
		if err != nil {
			return err
		}
		if err := putKitty(tx, owner, id, child); err != nil {
			return err
		}
		tx.Put(kv.IDKey(kv.PrefixLineage, uint32(id)), encodeLineage(lin))
		tx.emit(Notification{
			Kind:    KindBred,
			Owner:   owner,
			KittyID: id,
			Kitty:   child,
			Mother:  &mother,
			Father:  &father,
		})
		return nil
	})
	if err != nil {
		return 0, genetics.DNA{}, err
	}
	return id, child, nil
}

// Transfer moves id from owner to newOwner. Handing a kitty to its current
// owner succeeds without writing or notifying. Listings are kept.
func (l *Ledger) Transfer(owner, newOwner model.AccountID, id model.KittyID) error {
	return l.update(func(tx *txn) error {
		dna, err := mustOwn(tx, owner, id)
		if err != nil {
			return err
		}
		if owner == newOwner {
			return nil
		}
		tx.Delete(kv.KittyKey(string(owner), uint32(id)))
		if err := putKitty(tx, newOwner, id, dna); err != nil {
			return err
		}
		tx.emit(Notification{Kind: KindTransferred, From: owner, To: newOwner, KittyID: id, Kitty: dna})
		return nil
	})
}

func putKitty(tx kv.ReadWriter, owner model.AccountID, id model.KittyID, dna genetics.DNA) error {
	if len(owner) > kv.MaxOwnerLen {
		return ErrOwnerTooLong
	}
	tx.Put(kv.KittyKey(string(owner), uint32(id)), dna[:])
	tx.Put(kv.IDKey(kv.PrefixOwner, uint32(id)), []byte(owner))
	return nil
}

func getKitty(r kv.Reader, owner model.AccountID, id model.KittyID) (genetics.DNA, bool, error) {
	raw, ok, err := r.Get(kv.KittyKey(string(owner), uint32(id)))
	if err != nil || !ok {
		return genetics.DNA{}, false, err
	}
	dna, err := decodeDNA(raw)
	if err != nil {
		return genetics.DNA{}, false, fmt.Errorf("kitty %d: %w", id, err)
	}
	return dna, true, nil
}

func mustOwn(r kv.Reader, owner model.AccountID, id model.KittyID) (genetics.DNA, error) {
	dna, ok, err := getKitty(r, owner, id)
	if err != nil {
		return genetics.DNA{}, err
	}
	if !ok {
		return genetics.DNA{}, ErrNotOwned
	}
	return dna, nil
}

func ownerOf(r kv.Reader, id model.KittyID) (model.AccountID, bool, error) {
	raw, ok, err := r.Get(kv.IDKey(kv.PrefixOwner, uint32(id)))
	if err != nil || !ok {
		return "", false, err
	}
	return model.AccountID(raw), true, nil
}

func decodeDNA(raw []byte) (genetics.DNA, error) {
	var dna genetics.DNA
	if len(raw) != genetics.DNALen {
		return dna, fmt.Errorf("corrupt dna (%d bytes)", len(raw))
	}
	copy(dna[:], raw)
	return dna, nil
}

func encodeLineage(lin model.Lineage) []byte {
	b := binary.BigEndian.AppendUint32(nil, uint32(lin.Mother))
	return binary.BigEndian.AppendUint32(b, uint32(lin.Father))
}

func decodeLineage(raw []byte) (model.Lineage, error) {
	if len(raw) != 8 {
		return model.Lineage{}, fmt.Errorf("corrupt lineage (%d bytes)", len(raw))
	}
	return model.Lineage{
		Mother: model.KittyID(binary.BigEndian.Uint32(raw[:4])),
		Father: model.KittyID(binary.BigEndian.Uint32(raw[4:])),
	}, nil
}
