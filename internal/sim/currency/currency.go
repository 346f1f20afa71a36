// Package currency is the reference balance keeper the marketplace pays through.
// Balances live in the ledger's key-value namespace so that a payment is staged
// in the same transaction as the ownership change it pays for.
package currency

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

type Mode int

const (
	// AllowDeath lets the payer's balance reach zero.
	AllowDeath Mode = iota
	// KeepAlive refuses any transfer that would leave the payer below the existential deposit.
	KeepAlive
)

func (m Mode) String() string {
	switch m {
	case AllowDeath:
		return "ALLOW_DEATH"
	case KeepAlive:
		return "KEEP_ALIVE"
	default:
		return fmt.Sprintf("MODE_%d", int(m))
	}
}

var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrWouldDropBelowMinimum   = errors.New("transfer would drop payer below the existential deposit")
	ErrBelowExistentialDeposit = errors.New("recipient balance would stay below the existential deposit")
	ErrInvalidAmount           = errors.New("amount must not be negative")
)

// DefaultExistentialDeposit matches the genesis configuration the ledger tests use.
var DefaultExistentialDeposit = decimal.NewFromInt(1)

type Balances struct {
	existentialDeposit decimal.Decimal
}

func NewBalances(existentialDeposit decimal.Decimal) *Balances {
	if existentialDeposit.IsNegative() {
		existentialDeposit = decimal.Zero
	}
	return &Balances{existentialDeposit: existentialDeposit}
}

func (b *Balances) ExistentialDeposit() decimal.Decimal { return b.existentialDeposit }

// BalanceOf returns zero for accounts with no record.
func (b *Balances) BalanceOf(r kv.Reader, who model.AccountID) (decimal.Decimal, error) {
	raw, ok, err := r.Get(kv.BalanceKey(string(who)))
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode balance of %q: %w", who, err)
	}
	return v, nil
}

// Endow credits amount to who. Used for genesis balances.
func (b *Balances) Endow(rw kv.ReadWriter, who model.AccountID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	cur, err := b.BalanceOf(rw, who)
	if err != nil {
		return err
	}
	next := cur.Add(amount)
	if next.LessThan(b.existentialDeposit) {
		return ErrBelowExistentialDeposit
	}
	b.put(rw, who, next)
	return nil
}

// Transfer moves amount from one account to another through rw. Nothing is
// written unless every check passes.
func (b *Balances) Transfer(rw kv.ReadWriter, from, to model.AccountID, amount decimal.Decimal, mode Mode) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() || from == to {
		return nil
	}

	fromBal, err := b.BalanceOf(rw, from)
	if err != nil {
		return err
	}
	if amount.GreaterThan(fromBal) {
		return ErrInsufficientBalance
	}
	remaining := fromBal.Sub(amount)
	if remaining.IsZero() {
		if mode == KeepAlive && b.existentialDeposit.IsPositive() {
			return ErrWouldDropBelowMinimum
		}
	} else if remaining.LessThan(b.existentialDeposit) {
		return ErrWouldDropBelowMinimum
	}

	toBal, err := b.BalanceOf(rw, to)
	if err != nil {
		return err
	}
	credited := toBal.Add(amount)
	if credited.LessThan(b.existentialDeposit) {
		return ErrBelowExistentialDeposit
	}

	b.put(rw, from, remaining)
	b.put(rw, to, credited)
	return nil
}

func (b *Balances) put(rw kv.ReadWriter, who model.AccountID, v decimal.Decimal) {
	if v.IsZero() {
		rw.Delete(kv.BalanceKey(string(who)))
		return
	}
	rw.Put(kv.BalanceKey(string(who)), []byte(v.String()))
}

// Account is one exported balance record.
type Account struct {
	ID      model.AccountID `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Export lists every account with a balance record, sorted by id.
func (b *Balances) Export(r kv.Reader) ([]Account, error) {
	var out []Account
	err := r.Scan([]byte{kv.PrefixBalance}, func(k, v []byte) error {
		bal, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("decode balance %q: %w", k[1:], err)
		}
		out = append(out, Account{ID: model.AccountID(k[1:]), Balance: bal})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Import replaces the balance set with accounts.
func (b *Balances) Import(rw kv.ReadWriter, accounts []Account) error {
	var stale [][]byte
	if err := rw.Scan([]byte{kv.PrefixBalance}, func(k, _ []byte) error {
		stale = append(stale, k)
		return nil
	}); err != nil {
		return err
	}
	for _, k := range stale {
		rw.Delete(k)
	}
	for _, a := range accounts {
		if a.Balance.IsNegative() {
			return fmt.Errorf("account %q: %w", a.ID, ErrInvalidAmount)
		}
		b.put(rw, a.ID, a.Balance)
	}
	return nil
}
