package main

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	persistlog "kittyledger.dev/internal/persistence/log"
	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/protocol"
	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/engine"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/randomness"
)

var genesis = []currency.Account{
	{ID: "alice", Balance: decimal.NewFromInt(100)},
	{ID: "bob", Balance: decimal.NewFromInt(200)},
}

func u32(v uint32) *uint32 { return &v }

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// record runs a short history through an engine that logs into dir and
// returns the snapshot taken after cycle 1.
func record(t *testing.T, dir string) snapshot.Snapshot {
	t.Helper()
	eng, err := engine.New(engine.Config{LedgerID: "r"}, kv.NewMemStore(), currency.NewBalances(currency.DefaultExistentialDeposit), randomness.Crypto{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if _, err := eng.Genesis(genesis); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	cl := persistlog.NewCycleLogger(dir)
	nl := persistlog.NewNotificationLogger(dir)
	eng.SetCycleLogger(cl)
	eng.SetNotificationLogger(nl)

	eng.StepOnce([]protocol.Command{
		{ID: "1", Type: protocol.TypeMint, Caller: "alice"},
		{ID: "2", Type: protocol.TypeMint, Caller: "alice"},
		{ID: "3", Type: protocol.TypeMint, Caller: "bob"},
	})
	eng.StepOnce([]protocol.Command{
		{ID: "4", Type: protocol.TypeSetPrice, Caller: "alice", KittyID: u32(0), Price: dec(40)},
		{ID: "5", Type: protocol.TypeTransfer, Caller: "bob", To: "alice", KittyID: u32(0)},
	})
	snap, err := eng.ExportSnapshot(1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	eng.StepOnce([]protocol.Command{
		{ID: "6", Type: protocol.TypeBuy, Caller: "bob", Seller: "alice", KittyID: u32(0), MaxBid: dec(45)},
		{ID: "7", Type: protocol.TypeBreed, Caller: "alice", Parent1: u32(1), Parent2: u32(1)},
	})
	if err := cl.Close(); err != nil {
		t.Fatalf("close cycles: %v", err)
	}
	if err := nl.Close(); err != nil {
		t.Fatalf("close notifications: %v", err)
	}
	return snap
}

func TestReplay_FromGenesis(t *testing.T) {
	dir := t.TempDir()
	record(t, dir)

	rep, err := replay(options{
		LedgerDir:           dir,
		LedgerID:            "r",
		Genesis:             genesis,
		ExistentialDeposit:  currency.DefaultExistentialDeposit,
		VerifyNotifications: true,
	}, io.Discard)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rep.StartCycle != 0 || rep.Checked != 3 {
		t.Fatalf("report %+v", rep)
	}
	// 3 CREATED, PRICE_SET, BOUGHT.
	if rep.Notifications != 5 {
		t.Fatalf("notifications=%d want 5", rep.Notifications)
	}
}

func TestReplay_FromSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := record(t, dir)
	path := snapshot.Path(filepath.Join(dir, "snapshots"), snap.Header.Cycle)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	rep, err := replay(options{
		LedgerDir:          dir,
		Snapshot:           path,
		ExistentialDeposit: currency.DefaultExistentialDeposit,
	}, io.Discard)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rep.StartCycle != 2 || rep.Checked != 1 {
		t.Fatalf("report %+v", rep)
	}
}

func TestReplay_ToCycle(t *testing.T) {
	dir := t.TempDir()
	record(t, dir)
	rep, err := replay(options{
		LedgerDir:          dir,
		LedgerID:           "r",
		Genesis:            genesis,
		ExistentialDeposit: currency.DefaultExistentialDeposit,
		ToCycle:            1,
	}, io.Discard)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rep.Checked != 2 {
		t.Fatalf("checked=%d want 2", rep.Checked)
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	record(t, dir)

	// Different genesis: bob cannot afford the purchase, so cycle 2 diverges.
	poor := []currency.Account{
		{ID: "alice", Balance: decimal.NewFromInt(100)},
		{ID: "bob", Balance: decimal.NewFromInt(20)},
	}
	_, err := replay(options{
		LedgerDir:          dir,
		LedgerID:           "r",
		Genesis:            poor,
		ExistentialDeposit: currency.DefaultExistentialDeposit,
	}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestReplay_NoLogs(t *testing.T) {
	if _, err := replay(options{LedgerDir: t.TempDir()}, io.Discard); err == nil {
		t.Fatalf("expected error for missing cycle logs")
	}
}

func TestReplay_DetectsResultCountMismatch(t *testing.T) {
	src := t.TempDir()
	record(t, src)

	files, err := persistlog.ListFiles(filepath.Join(src, "cycles"), "cycles")
	if err != nil || len(files) == 0 {
		t.Fatalf("cycle logs=%v err=%v", files, err)
	}
	var entries []protocol.CycleLogEntry
	for _, path := range files {
		if err := persistlog.ReadLines(path, func(line []byte) error {
			var e protocol.CycleLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
	}
	last := &entries[len(entries)-1]
	last.Results = append(last.Results, protocol.Result{ID: "ghost", OK: true})

	dst := t.TempDir()
	cl := persistlog.NewCycleLogger(dst)
	for _, e := range entries {
		if err := cl.WriteCycle(e); err != nil {
			t.Fatalf("write cycle: %v", err)
		}
	}
	if err := cl.Close(); err != nil {
		t.Fatalf("close cycles: %v", err)
	}

	_, err = replay(options{
		LedgerDir:          dst,
		LedgerID:           "r",
		Genesis:            genesis,
		ExistentialDeposit: currency.DefaultExistentialDeposit,
	}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "result count mismatch") {
		t.Fatalf("expected result count mismatch, got %v", err)
	}
}
