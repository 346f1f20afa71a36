package engine

import (
	"errors"
	"fmt"

	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

// ExportSnapshot captures the full ledger after cycle completed.
func (e *Engine) ExportSnapshot(cycle uint64) (snapshot.Snapshot, error) {
	st, err := e.ledger.Export()
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("export ledger: %w", err)
	}
	accounts, err := e.balances.Export(e.ledger.Store())
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("export balances: %w", err)
	}
	digest, err := e.ledger.Digest()
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	snap := snapshot.Snapshot{
		Header: snapshot.Header{LedgerID: e.cfg.LedgerID, Cycle: cycle},
		NextID: uint32(st.NextID),
		Digest: digest,
	}
	for _, k := range st.Kitties {
		snap.Kitties = append(snap.Kitties, snapshot.Kitty{ID: uint32(k.ID), Owner: string(k.Owner), DNA: k.DNA})
	}
	for _, l := range st.Lineage {
		snap.Lineage = append(snap.Lineage, snapshot.Lineage{
			ID:     uint32(l.ID),
			Mother: uint32(l.Lineage.Mother),
			Father: uint32(l.Lineage.Father),
		})
	}
	for _, l := range st.Listings {
		snap.Listings = append(snap.Listings, snapshot.Listing{ID: uint32(l.ID), Price: l.Price})
	}
	for _, a := range accounts {
		snap.Accounts = append(snap.Accounts, snapshot.Account{ID: string(a.ID), Balance: a.Balance})
	}
	return snap, nil
}

// ImportSnapshot replaces the ledger with snap and resumes numbering at the
// cycle after it. The resulting digest must match the one recorded.
func (e *Engine) ImportSnapshot(snap snapshot.Snapshot) error {
	if snap.Header.LedgerID != "" && e.cfg.LedgerID != "" && snap.Header.LedgerID != e.cfg.LedgerID {
		return fmt.Errorf("snapshot ledger %q does not match %q", snap.Header.LedgerID, e.cfg.LedgerID)
	}

	st := ledger.State{NextID: model.KittyID(snap.NextID)}
	for _, k := range snap.Kitties {
		st.Kitties = append(st.Kitties, ledger.KittyRecord{ID: model.KittyID(k.ID), Owner: model.AccountID(k.Owner), DNA: genetics.DNA(k.DNA)})
	}
	for _, l := range snap.Lineage {
		st.Lineage = append(st.Lineage, ledger.LineageRecord{
			ID:      model.KittyID(l.ID),
			Lineage: model.Lineage{Mother: model.KittyID(l.Mother), Father: model.KittyID(l.Father)},
		})
	}
	for _, l := range snap.Listings {
		st.Listings = append(st.Listings, ledger.ListingRecord{ID: model.KittyID(l.ID), Price: l.Price})
	}
	accounts := make([]currency.Account, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accounts = append(accounts, currency.Account{ID: model.AccountID(a.ID), Balance: a.Balance})
	}

	if err := e.ledger.Import(st); err != nil {
		return err
	}
	next := snap.Header.Cycle + 1
	if err := e.ledger.Update(func(rw kv.ReadWriter) error {
		if err := e.balances.Import(rw, accounts); err != nil {
			return err
		}
		rw.Put(kv.MetaKey(kv.MetaCycle), kv.EncodeU64(next))
		return nil
	}); err != nil {
		return fmt.Errorf("import balances: %w", err)
	}
	e.cycle.Store(next)

	if snap.Digest == "" {
		return nil
	}
	digest, err := e.ledger.Digest()
	if err != nil {
		return err
	}
	if digest != snap.Digest {
		return fmt.Errorf("snapshot digest mismatch: got %s want %s", digest, snap.Digest)
	}
	return nil
}

// Genesis endows accounts on a ledger that has never run. It reports whether
// anything was written.
func (e *Engine) Genesis(accounts []currency.Account) (bool, error) {
	if len(accounts) == 0 {
		return false, nil
	}
	fresh, err := e.fresh()
	if err != nil || !fresh {
		return false, err
	}
	if err := e.ledger.Update(func(rw kv.ReadWriter) error {
		for _, a := range accounts {
			if err := e.balances.Endow(rw, a.ID, a.Balance); err != nil {
				return fmt.Errorf("genesis %s: %w", a.ID, err)
			}
		}
		return nil
	}); err != nil {
		return false, err
	}
	e.log.Info().Int("accounts", len(accounts)).Msg("genesis balances written")
	return true, nil
}

func (e *Engine) fresh() (bool, error) {
	store := e.ledger.Store()
	for _, name := range []string{kv.MetaNextID, kv.MetaCycle} {
		_, ok, err := store.Get(kv.MetaKey(name))
		if err != nil || ok {
			return false, err
		}
	}
	empty := true
	err := store.Scan([]byte{kv.PrefixBalance}, func(_, _ []byte) error {
		empty = false
		return errStopScan
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return false, err
	}
	return empty, nil
}

var errStopScan = errors.New("stop scan")
