package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

type KittyRecord struct {
	ID    model.KittyID
	Owner model.AccountID
	DNA   genetics.DNA
}

type LineageRecord struct {
	ID      model.KittyID
	Lineage model.Lineage
}

type ListingRecord struct {
	ID    model.KittyID
	Price decimal.Decimal
}

// State is the full kitty side of the namespace. Balances belong to the
// currency and are exported separately.
type State struct {
	NextID   model.KittyID
	Kitties  []KittyRecord
	Lineage  []LineageRecord
	Listings []ListingRecord
}

// Export reads the kitty records. Every list is in ascending key order.
func (l *Ledger) Export() (State, error) {
	var (
		s   State
		err error
	)
	if s.NextID, err = readNextID(l.store); err != nil {
		return State{}, err
	}
	if err := l.store.Scan([]byte{kv.PrefixKitty}, func(k, v []byte) error {
		owner, id, ok := kv.SplitKittyKey(k)
		if !ok {
			return fmt.Errorf("corrupt kitty key %x", k)
		}
		dna, err := decodeDNA(v)
		if err != nil {
			return err
		}
		s.Kitties = append(s.Kitties, KittyRecord{ID: model.KittyID(id), Owner: model.AccountID(owner), DNA: dna})
		return nil
	}); err != nil {
		return State{}, err
	}
	if err := l.store.Scan([]byte{kv.PrefixLineage}, func(k, v []byte) error {
		id, ok := kv.SplitIDKey(k)
		if !ok {
			return fmt.Errorf("corrupt lineage key %x", k)
		}
		lin, err := decodeLineage(v)
		if err != nil {
			return err
		}
		s.Lineage = append(s.Lineage, LineageRecord{ID: model.KittyID(id), Lineage: lin})
		return nil
	}); err != nil {
		return State{}, err
	}
	if err := l.store.Scan([]byte{kv.PrefixPrice}, func(k, v []byte) error {
		id, ok := kv.SplitIDKey(k)
		if !ok {
			return fmt.Errorf("corrupt price key %x", k)
		}
		p, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("price of %d: %w", id, err)
		}
		s.Listings = append(s.Listings, ListingRecord{ID: model.KittyID(id), Price: p})
		return nil
	}); err != nil {
		return State{}, err
	}
	return s, nil
}

// Import replaces every kitty record with s in one batch. Records that would
// break the id counter or duplicate an id are rejected before anything is written.
func (l *Ledger) Import(s State) error {
	seen := make(map[model.KittyID]bool, len(s.Kitties))
	for _, k := range s.Kitties {
		if k.ID >= s.NextID {
			return fmt.Errorf("import: kitty %d not below next id %d", k.ID, s.NextID)
		}
		if seen[k.ID] {
			return fmt.Errorf("import: kitty %d held twice", k.ID)
		}
		if len(k.Owner) > kv.MaxOwnerLen {
			return fmt.Errorf("import: kitty %d: %w", k.ID, ErrOwnerTooLong)
		}
		seen[k.ID] = true
	}
	for _, lr := range s.Lineage {
		if !seen[lr.ID] {
			return fmt.Errorf("import: lineage for unknown kitty %d", lr.ID)
		}
		// Parents are allocated before their child.
		if lr.Lineage.Mother >= lr.ID || lr.Lineage.Father >= lr.ID {
			return fmt.Errorf("import: kitty %d has parents %d/%d not below its id",
				lr.ID, lr.Lineage.Mother, lr.Lineage.Father)
		}
	}
	for _, lr := range s.Listings {
		if !seen[lr.ID] {
			return fmt.Errorf("import: listing for unknown kitty %d", lr.ID)
		}
	}

	return l.update(func(tx *txn) error {
		for _, prefix := range []byte{kv.PrefixKitty, kv.PrefixOwner, kv.PrefixLineage, kv.PrefixPrice} {
			var stale [][]byte
			if err := tx.Scan([]byte{prefix}, func(k, _ []byte) error {
				stale = append(stale, k)
				return nil
			}); err != nil {
				return err
			}
			for _, k := range stale {
				tx.Delete(k)
			}
		}
		// A ledger that never allocated has no counter record.
		if s.NextID > 0 {
			tx.Put(kv.MetaKey(kv.MetaNextID), kv.EncodeU32(uint32(s.NextID)))
		} else {
			tx.Delete(kv.MetaKey(kv.MetaNextID))
		}
		for _, k := range s.Kitties {
			if err := putKitty(tx, k.Owner, k.ID, k.DNA); err != nil {
				return err
			}
		}
		for _, lr := range s.Lineage {
			tx.Put(kv.IDKey(kv.PrefixLineage, uint32(lr.ID)), encodeLineage(lr.Lineage))
		}
		for _, lr := range s.Listings {
			tx.Put(kv.IDKey(kv.PrefixPrice, uint32(lr.ID)), []byte(lr.Price.String()))
		}
		return nil
	})
}
