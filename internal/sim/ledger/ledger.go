// Package ledger owns kitties: who holds which id, their DNA, their parents
// and their price listings. Every public mutation runs in a staged
// transaction that reaches the store as one batch, or not at all.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

// Currency moves funds through the ledger's transaction so a failed payment
// is discarded together with the rest of the operation.
type Currency interface {
	Transfer(rw kv.ReadWriter, from, to model.AccountID, amount decimal.Decimal, mode currency.Mode) error
}

// Ledger is not safe for concurrent use; callers serialize operations.
type Ledger struct {
	store    kv.Store
	currency Currency
	notifier Notifier
}

func New(store kv.Store, cur Currency, notifier Notifier) *Ledger {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Ledger{store: store, currency: cur, notifier: notifier}
}

func (l *Ledger) Store() kv.Store { return l.store }

// txn is the staging area for one operation.
type txn struct {
	*kv.Overlay
	notes []Notification
}

func (t *txn) emit(n Notification) { t.notes = append(t.notes, n) }

func (l *Ledger) update(fn func(tx *txn) error) error {
	tx := &txn{Overlay: kv.NewOverlay(l.store)}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.Len() > 0 {
		if err := l.store.Apply(tx.Writes()); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	for _, n := range tx.notes {
		l.notifier.Notify(n)
	}
	return nil
}

// Update runs fn in a staged transaction. It is the hook for collaborators
// that keep state in the same namespace, such as genesis endowments.
func (l *Ledger) Update(fn func(rw kv.ReadWriter) error) error {
	return l.update(func(tx *txn) error { return fn(tx) })
}
