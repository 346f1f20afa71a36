package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

// SetPrice lists id at price, or erases the listing when price is nil. A
// notification is emitted even if nothing changed.
func (l *Ledger) SetPrice(owner model.AccountID, id model.KittyID, price *decimal.Decimal) error {
	if price != nil && price.IsNegative() {
		return fmt.Errorf("price %s: %w", price, currency.ErrInvalidAmount)
	}
	return l.update(func(tx *txn) error {
		if _, err := mustOwn(tx, owner, id); err != nil {
			return err
		}
		key := kv.IDKey(kv.PrefixPrice, uint32(id))
		var listed *decimal.Decimal
		if price == nil {
			tx.Delete(key)
		} else {
			p := *price
			listed = &p
			tx.Put(key, []byte(p.String()))
		}
		tx.emit(Notification{Kind: KindPriceSet, Owner: owner, KittyID: id, Price: listed})
		return nil
	})
}

// Buy sells id from seller to buyer at its listed price, provided the price
// does not exceed maxBid. The buyer pays the listed price, not the bid, and
// the listing does not survive the sale.
func (l *Ledger) Buy(buyer, seller model.AccountID, id model.KittyID, maxBid decimal.Decimal) error {
	return l.update(func(tx *txn) error {
		dna, err := mustOwn(tx, seller, id)
		if err != nil {
			return err
		}
		tx.Delete(kv.KittyKey(string(seller), uint32(id)))

		price, ok, err := priceOf(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotForSale
		}
		tx.Delete(kv.IDKey(kv.PrefixPrice, uint32(id)))

		if price.GreaterThan(maxBid) {
			return ErrPriceTooLow
		}
		if l.currency == nil {
			return fmt.Errorf("buy: no currency configured")
		}
		if err := l.currency.Transfer(tx, buyer, seller, price, currency.KeepAlive); err != nil {
			return err
		}

		if err := putKitty(tx, buyer, id, dna); err != nil {
			return err
		}
		tx.emit(Notification{Kind: KindBought, From: seller, To: buyer, KittyID: id, Kitty: dna, Price: &price})
		return nil
	})
}

func priceOf(r kv.Reader, id model.KittyID) (decimal.Decimal, bool, error) {
	raw, ok, err := r.Get(kv.IDKey(kv.PrefixPrice, uint32(id)))
	if err != nil || !ok {
		return decimal.Zero, false, err
	}
	p, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("price of %d: %w", id, err)
	}
	return p, true, nil
}
