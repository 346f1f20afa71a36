package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/protocol"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqCycle, cycle: protocol.CycleLogEntry{Cycle: 1}}

	_ = s.WriteCycle(protocol.CycleLogEntry{Cycle: 2})
	_ = s.WriteNotification(protocol.NotificationRecord{Cycle: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.Snapshot{})
	s.RecordSnapshotState(snapshot.Snapshot{})

	st := s.Stats()
	if st.DropCycleTotal != 1 {
		t.Fatalf("DropCycleTotal=%d want=1", st.DropCycleTotal)
	}
	if st.DropNotificationTotal != 1 {
		t.Fatalf("DropNotificationTotal=%d want=1", st.DropNotificationTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.DropSnapshotStateTotal != 1 {
		t.Fatalf("DropSnapshotStateTotal=%d want=1", st.DropSnapshotStateTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesRows(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.sqlite")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	kittyID := uint32(0)
	price := decimal.NewFromInt(200)
	_ = idx.WriteCycle(protocol.CycleLogEntry{
		Cycle: 3,
		Seed:  "ab",
		Commands: []protocol.Command{
			{ID: "c1", Type: protocol.TypeMint, Caller: "alice"},
			{ID: "c2", Type: protocol.TypeBuy, Caller: "bob"},
		},
		Results: []protocol.Result{
			{ID: "c1", OK: true, KittyID: &kittyID},
			{ID: "c2", OK: false, Code: protocol.ErrNotForSale},
		},
		Digest: "d3",
	})
	_ = idx.WriteNotification(protocol.NotificationRecord{Cycle: 3, Seq: 0, Kind: "CREATED", Owner: "alice", KittyID: 0, Kitty: "00"})
	_ = idx.WriteNotification(protocol.NotificationRecord{Cycle: 3, Seq: 1, Kind: "PRICE_SET", Owner: "alice", KittyID: 0, Price: &price})

	snap := snapshot.Snapshot{
		Header: snapshot.Header{LedgerID: "main", Cycle: 3},
		NextID: 3,
		Kitties: []snapshot.Kitty{
			{ID: 0, Owner: "alice", DNA: [16]byte{1}},
			{ID: 1, Owner: "alice", DNA: [16]byte{2}},
			{ID: 2, Owner: "bob", DNA: [16]byte{3}},
		},
		Lineage:  []snapshot.Lineage{{ID: 2, Mother: 1, Father: 0}},
		Listings: []snapshot.Listing{{ID: 0, Price: price}},
		Accounts: []snapshot.Account{{ID: "alice", Balance: decimal.NewFromInt(100)}, {ID: "bob", Balance: decimal.NewFromInt(50)}},
		Digest:   "d3",
	}
	idx.RecordSnapshot("/data/3.snap.zst", snap)
	idx.RecordSnapshotState(snap)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sql: %v", err)
	}
	defer db.Close()

	type check struct {
		query string
		want  int
	}
	checks := []check{
		{`SELECT COUNT(*) FROM cycles WHERE cycle = 3`, 1},
		{`SELECT failed FROM cycles WHERE cycle = 3`, 1},
		{`SELECT COUNT(*) FROM results WHERE cycle = 3`, 2},
		{`SELECT COUNT(*) FROM results WHERE caller = 'bob' AND code = 'E_NOT_FOR_SALE'`, 1},
		{`SELECT COUNT(*) FROM notifications WHERE cycle = 3`, 2},
		{`SELECT COUNT(*) FROM snapshots WHERE cycle = 3 AND kitties = 3`, 1},
		{`SELECT COUNT(*) FROM snapshot_holdings WHERE cycle = 3 AND owner = 'alice'`, 2},
		{`SELECT COUNT(*) FROM snapshot_balances WHERE cycle = 3`, 2},
	}
	for _, c := range checks {
		var n int
		if err := db.QueryRow(c.query).Scan(&n); err != nil {
			t.Fatalf("%s: %v", c.query, err)
		}
		if n != c.want {
			t.Fatalf("%s = %d want %d", c.query, n, c.want)
		}
	}

	var (
		mother, father sql.NullInt64
		listed         sql.NullString
	)
	if err := db.QueryRow(`SELECT mother,father,price FROM snapshot_holdings WHERE cycle = 3 AND kitty_id = 2`).Scan(&mother, &father, &listed); err != nil {
		t.Fatalf("scan holding 2: %v", err)
	}
	if !mother.Valid || mother.Int64 != 1 || father.Int64 != 0 || listed.Valid {
		t.Fatalf("holding 2 mother=%v father=%v price=%v", mother, father, listed)
	}
	if err := db.QueryRow(`SELECT price FROM snapshot_holdings WHERE cycle = 3 AND kitty_id = 0`).Scan(&listed); err != nil {
		t.Fatalf("scan holding 0: %v", err)
	}
	if !listed.Valid || listed.String != "200" {
		t.Fatalf("holding 0 price=%v want 200", listed)
	}
}
