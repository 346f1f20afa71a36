package indexdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/protocol"
)

// SQLiteIndex is a queryable read model fed from the ledger loop. Writes are
// queued and applied by one goroutine in batched transactions; the JSONL
// logs and snapshots stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCycle         atomic.Uint64
	dropNotification  atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
}

type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropCycleTotal         uint64 `json:"drop_cycle_total"`
	DropNotificationTotal  uint64 `json:"drop_notification_total"`
	DropSnapshotTotal      uint64 `json:"drop_snapshot_total"`
	DropSnapshotStateTotal uint64 `json:"drop_snapshot_state_total"`
}

type reqKind int

const (
	reqCycle reqKind = iota + 1
	reqNotification
	reqSnapshot
	reqSnapshotState
)

type req struct {
	kind reqKind

	cycle        protocol.CycleLogEntry
	notification protocol.NotificationRecord
	snapshot     snapshotRow
	state        snapshot.Snapshot
}

type snapshotRow struct {
	Cycle    uint64
	Path     string
	NextID   uint32
	Kitties  int
	Listings int
	Accounts int
	Digest   string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			cycle INTEGER PRIMARY KEY,
			seed TEXT NOT NULL,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			cycle INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			command_id TEXT NOT NULL,
			type TEXT NOT NULL,
			caller TEXT NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			kitty_id INTEGER,
			PRIMARY KEY (cycle, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_caller_cycle ON results(caller, cycle);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			cycle INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			owner TEXT,
			from_account TEXT,
			to_account TEXT,
			kitty_id INTEGER NOT NULL,
			price TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (cycle, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_kitty_cycle ON notifications(kitty_id, cycle);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			cycle INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			next_id INTEGER NOT NULL,
			kitties INTEGER NOT NULL,
			listings INTEGER NOT NULL,
			accounts INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_holdings (
			cycle INTEGER NOT NULL,
			kitty_id INTEGER NOT NULL,
			owner TEXT NOT NULL,
			dna TEXT NOT NULL,
			mother INTEGER,
			father INTEGER,
			price TEXT,
			PRIMARY KEY (cycle, kitty_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_holdings_owner ON snapshot_holdings(cycle, owner);`,
		`CREATE TABLE IF NOT EXISTS snapshot_balances (
			cycle INTEGER NOT NULL,
			account TEXT NOT NULL,
			balance TEXT NOT NULL,
			PRIMARY KEY (cycle, account)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		if s.db != nil {
			err = s.db.Close()
		}
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropCycleTotal:         s.dropCycle.Load(),
		DropNotificationTotal:  s.dropNotification.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind.
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteCycle(entry protocol.CycleLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqCycle, cycle: entry}, &s.dropCycle)
	return nil
}

func (s *SQLiteIndex) WriteNotification(rec protocol.NotificationRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqNotification, notification: rec}, &s.dropNotification)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.Snapshot) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Cycle:    snap.Header.Cycle,
		Path:     path,
		NextID:   snap.NextID,
		Kitties:  len(snap.Kitties),
		Listings: len(snap.Listings),
		Accounts: len(snap.Accounts),
		Digest:   snap.Digest,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordSnapshotState writes the per-kitty and per-account rows of snap.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.Snapshot) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSnapshotState, state: snap}, &s.dropSnapshotState)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCycle, _ := s.db.Prepare(`INSERT OR REPLACE INTO cycles(cycle,seed,digest,commands,failed,raw_json) VALUES(?,?,?,?,?,?)`)
	insertResult, _ := s.db.Prepare(`INSERT OR REPLACE INTO results(cycle,seq,command_id,type,caller,ok,code,kitty_id) VALUES(?,?,?,?,?,?,?,?)`)
	insertNotification, _ := s.db.Prepare(`INSERT OR REPLACE INTO notifications(cycle,seq,kind,owner,from_account,to_account,kitty_id,price,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(cycle,path,next_id,kitties,listings,accounts,digest) VALUES(?,?,?,?,?,?,?)`)
	insertHolding, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshot_holdings(cycle,kitty_id,owner,dna,mother,father,price) VALUES(?,?,?,?,?,?,?)`)
	insertBalance, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshot_balances(cycle,account,balance) VALUES(?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertCycle, insertResult, insertNotification, insertSnapshot, insertHolding, insertBalance} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCycle:
			c := r.cycle
			failed := 0
			for _, res := range c.Results {
				if !res.OK {
					failed++
				}
			}
			raw, _ := json.Marshal(c)
			if !exec(insertCycle, int64(c.Cycle), c.Seed, c.Digest, len(c.Commands), failed, string(raw)) {
				continue
			}
			for i, res := range c.Results {
				var typ, caller string
				if i < len(c.Commands) {
					typ, caller = c.Commands[i].Type, c.Commands[i].Caller
				}
				var kittyID sql.NullInt64
				if res.KittyID != nil {
					kittyID = sql.NullInt64{Int64: int64(*res.KittyID), Valid: true}
				}
				if !exec(insertResult, int64(c.Cycle), i, res.ID, typ, caller, boolInt(res.OK), nullString(res.Code), kittyID) {
					break
				}
			}

		case reqNotification:
			n := r.notification
			raw, _ := json.Marshal(n)
			var price sql.NullString
			if n.Price != nil {
				price = sql.NullString{String: n.Price.String(), Valid: true}
			}
			exec(insertNotification, int64(n.Cycle), n.Seq, n.Kind,
				nullString(n.Owner), nullString(n.From), nullString(n.To),
				int64(n.KittyID), price, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Cycle), sn.Path, int64(sn.NextID), sn.Kitties, sn.Listings, sn.Accounts, sn.Digest)

		case reqSnapshotState:
			writeSnapshotState(r.state, insertHolding, insertBalance, exec)
		}
		flushIfNeeded()
	}

	commit()
}

func writeSnapshotState(snap snapshot.Snapshot, insertHolding, insertBalance *sql.Stmt, exec func(*sql.Stmt, ...any) bool) {
	cycle := int64(snap.Header.Cycle)
	lineage := make(map[uint32]snapshot.Lineage, len(snap.Lineage))
	for _, l := range snap.Lineage {
		lineage[l.ID] = l
	}
	prices := make(map[uint32]string, len(snap.Listings))
	for _, l := range snap.Listings {
		prices[l.ID] = l.Price.String()
	}

	for _, k := range snap.Kitties {
		var mother, father sql.NullInt64
		if l, ok := lineage[k.ID]; ok {
			mother = sql.NullInt64{Int64: int64(l.Mother), Valid: true}
			father = sql.NullInt64{Int64: int64(l.Father), Valid: true}
		}
		var price sql.NullString
		if p, ok := prices[k.ID]; ok {
			price = sql.NullString{String: p, Valid: true}
		}
		if !exec(insertHolding, cycle, int64(k.ID), k.Owner, hex.EncodeToString(k.DNA[:]), mother, father, price) {
			return
		}
	}
	for _, a := range snap.Accounts {
		if !exec(insertBalance, cycle, a.ID, a.Balance.String()) {
			return
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
