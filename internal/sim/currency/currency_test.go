package currency

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func genesis(t *testing.T) (*Balances, *kv.MemStore) {
	t.Helper()
	b := NewBalances(DefaultExistentialDeposit)
	s := kv.NewMemStore()
	tx := kv.NewOverlay(s)
	for who, amt := range map[model.AccountID]int64{"100": 100, "200": 200, "300": 300} {
		if err := b.Endow(tx, who, d(amt)); err != nil {
			t.Fatalf("endow %s: %v", who, err)
		}
	}
	if err := s.Apply(tx.Writes()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	return b, s
}

func balance(t *testing.T, b *Balances, r kv.Reader, who model.AccountID) decimal.Decimal {
	t.Helper()
	v, err := b.BalanceOf(r, who)
	if err != nil {
		t.Fatalf("balance of %s: %v", who, err)
	}
	return v
}

func TestTransfer_MovesExactAmount(t *testing.T) {
	b, s := genesis(t)
	tx := kv.NewOverlay(s)
	if err := b.Transfer(tx, "300", "100", d(250), KeepAlive); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balance(t, b, tx, "300"); !got.Equal(d(50)) {
		t.Fatalf("payer=%s want 50", got)
	}
	if got := balance(t, b, tx, "100"); !got.Equal(d(350)) {
		t.Fatalf("payee=%s want 350", got)
	}
	// Not applied yet.
	if got := balance(t, b, s, "300"); !got.Equal(d(300)) {
		t.Fatalf("base payer=%s want 300", got)
	}
}

func TestTransfer_InsufficientBalanceCheckedFirst(t *testing.T) {
	b, s := genesis(t)
	tx := kv.NewOverlay(s)
	if err := b.Transfer(tx, "200", "100", d(250), KeepAlive); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err=%v want ErrInsufficientBalance", err)
	}
	if tx.Len() != 0 {
		t.Fatalf("failed transfer staged %d writes", tx.Len())
	}
}

func TestTransfer_KeepAliveRefusesDrain(t *testing.T) {
	b, s := genesis(t)
	tx := kv.NewOverlay(s)
	if err := b.Transfer(tx, "200", "100", d(200), KeepAlive); !errors.Is(err, ErrWouldDropBelowMinimum) {
		t.Fatalf("err=%v want ErrWouldDropBelowMinimum", err)
	}
	if tx.Len() != 0 {
		t.Fatalf("failed transfer staged %d writes", tx.Len())
	}
}

func TestTransfer_AllowDeathRemovesAccount(t *testing.T) {
	b, s := genesis(t)
	tx := kv.NewOverlay(s)
	if err := b.Transfer(tx, "200", "100", d(200), AllowDeath); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, ok, _ := tx.Get(kv.BalanceKey("200")); ok {
		t.Fatalf("drained account record should be deleted")
	}
	if got := balance(t, b, tx, "100"); !got.Equal(d(300)) {
		t.Fatalf("payee=%s want 300", got)
	}
}

func TestTransfer_DustRemainderRefused(t *testing.T) {
	b := NewBalances(d(10))
	s := kv.NewMemStore()
	tx := kv.NewOverlay(s)
	_ = b.Endow(tx, "a", d(100))
	for _, mode := range []Mode{AllowDeath, KeepAlive} {
		if err := b.Transfer(tx, "a", "b", d(95), mode); !errors.Is(err, ErrWouldDropBelowMinimum) {
			t.Fatalf("mode %s err=%v want ErrWouldDropBelowMinimum", mode, err)
		}
	}
}

func TestTransfer_RecipientBelowExistentialDeposit(t *testing.T) {
	b := NewBalances(d(10))
	s := kv.NewMemStore()
	tx := kv.NewOverlay(s)
	_ = b.Endow(tx, "a", d(100))
	if err := b.Transfer(tx, "a", "fresh", d(5), KeepAlive); !errors.Is(err, ErrBelowExistentialDeposit) {
		t.Fatalf("err=%v want ErrBelowExistentialDeposit", err)
	}
}

func TestTransfer_FractionalAmounts(t *testing.T) {
	b, s := genesis(t)
	tx := kv.NewOverlay(s)
	amt := decimal.RequireFromString("12.345")
	if err := b.Transfer(tx, "100", "200", amt, KeepAlive); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balance(t, b, tx, "100"); !got.Equal(decimal.RequireFromString("87.655")) {
		t.Fatalf("payer=%s want 87.655", got)
	}
}

func TestTransfer_RejectsNegative(t *testing.T) {
	b, s := genesis(t)
	if err := b.Transfer(kv.NewOverlay(s), "100", "200", d(-1), AllowDeath); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err=%v want ErrInvalidAmount", err)
	}
}

func TestExportImport(t *testing.T) {
	b, s := genesis(t)
	accounts, err := b.Export(s)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(accounts) != 3 || accounts[0].ID != "100" || !accounts[2].Balance.Equal(d(300)) {
		t.Fatalf("export=%+v", accounts)
	}

	dst := kv.NewMemStore()
	tx := kv.NewOverlay(dst)
	_ = b.Endow(tx, "stale", d(5))
	if err := b.Import(tx, accounts[:2]); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := dst.Apply(tx.Writes()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, _ := b.Export(dst)
	if len(got) != 2 || got[1].ID != "200" {
		t.Fatalf("imported=%+v", got)
	}
}
