package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	Cycle   uint64
	Limit   int
	Owner   string
	KittyID int64
	Account string
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	ledgerID := fs.String("ledger", "main", "ledger id (ignored with -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	cycle := fs.Uint64("cycle", 0, "snapshot cycle (optional; defaults to latest)")
	limit := fs.Int("limit", 20, "result limit")
	owner := fs.String("owner", "", "owner filter (holdings)")
	kittyID := fs.Int64("kitty", -1, "kitty id filter (notifications)")
	account := fs.String("account", "", "caller filter (results)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "ledgers", *ledgerID, "index.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	err = runQuery(db, q, dbQuery{Cycle: *cycle, Limit: *limit, Owner: *owner, KittyID: *kittyID, Account: *account}, printJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runQuery(db *sql.DB, q string, opts dbQuery, emit func(any)) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	switch q {
	case "holdings", "balances":
		if opts.Cycle == 0 {
			lc, err := latestSnapshotCycle(db)
			if err != nil {
				return fmt.Errorf("latest cycle: %w", err)
			}
			if lc < 0 {
				return fmt.Errorf("no snapshots found")
			}
			opts.Cycle = uint64(lc)
		}
	}

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT cycle,path,next_id,kitties,listings,accounts,digest FROM snapshots ORDER BY cycle DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Cycle    int64  `json:"cycle"`
				Path     string `json:"path"`
				NextID   int64  `json:"next_id"`
				Kitties  int    `json:"kitties"`
				Listings int    `json:"listings"`
				Accounts int    `json:"accounts"`
				Digest   string `json:"digest"`
			}
			if err := rows.Scan(&r.Cycle, &r.Path, &r.NextID, &r.Kitties, &r.Listings, &r.Accounts, &r.Digest); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "cycles":
		rows, err := db.Query(`SELECT cycle,seed,digest,commands,failed FROM cycles ORDER BY cycle DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Cycle    int64  `json:"cycle"`
				Seed     string `json:"seed"`
				Digest   string `json:"digest"`
				Commands int    `json:"commands"`
				Failed   int    `json:"failed"`
			}
			if err := rows.Scan(&r.Cycle, &r.Seed, &r.Digest, &r.Commands, &r.Failed); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "results":
		query := `SELECT cycle,seq,command_id,type,caller,ok,code,kitty_id FROM results`
		var args []any
		if opts.Account != "" {
			query += ` WHERE caller=?`
			args = append(args, opts.Account)
		}
		query += ` ORDER BY cycle DESC, seq ASC LIMIT ?`
		args = append(args, opts.Limit)
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Cycle   int64  `json:"cycle"`
					Seq     int    `json:"seq"`
					ID      string `json:"id"`
					Type    string `json:"type"`
					Caller  string `json:"caller"`
					OK      bool   `json:"ok"`
					Code    string `json:"code,omitempty"`
					KittyID *int64 `json:"kitty_id,omitempty"`
				}
				ok   int
				code sql.NullString
				kid  sql.NullInt64
			)
			if err := rows.Scan(&r.Cycle, &r.Seq, &r.ID, &r.Type, &r.Caller, &ok, &code, &kid); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.OK = ok != 0
			r.Code = code.String
			if kid.Valid {
				v := kid.Int64
				r.KittyID = &v
			}
			emit(r)
		}
		return rows.Err()

	case "notifications":
		query := `SELECT raw_json FROM notifications`
		var args []any
		if opts.KittyID >= 0 {
			query += ` WHERE kitty_id=?`
			args = append(args, opts.KittyID)
		}
		query += ` ORDER BY cycle DESC, seq ASC LIMIT ?`
		args = append(args, opts.Limit)
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(json.RawMessage(raw))
		}
		return rows.Err()

	case "holdings":
		query := `SELECT kitty_id,owner,dna,mother,father,price FROM snapshot_holdings WHERE cycle=?`
		args := []any{opts.Cycle}
		if opts.Owner != "" {
			query += ` AND owner=?`
			args = append(args, opts.Owner)
		}
		query += ` ORDER BY kitty_id ASC LIMIT ?`
		args = append(args, opts.Limit)
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Cycle   uint64 `json:"cycle"`
					KittyID int64  `json:"kitty_id"`
					Owner   string `json:"owner"`
					DNA     string `json:"dna"`
					Mother  *int64 `json:"mother,omitempty"`
					Father  *int64 `json:"father,omitempty"`
					Price   string `json:"price,omitempty"`
				}
				mother, father sql.NullInt64
				price          sql.NullString
			)
			if err := rows.Scan(&r.KittyID, &r.Owner, &r.DNA, &mother, &father, &price); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Cycle = opts.Cycle
			if mother.Valid && father.Valid {
				m, f := mother.Int64, father.Int64
				r.Mother, r.Father = &m, &f
			}
			r.Price = price.String
			emit(r)
		}
		return rows.Err()

	case "balances":
		rows, err := db.Query(`SELECT account,balance FROM snapshot_balances WHERE cycle=? ORDER BY account ASC LIMIT ?`, opts.Cycle, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Cycle   uint64 `json:"cycle"`
				Account string `json:"account"`
				Balance string `json:"balance"`
			}
			if err := rows.Scan(&r.Account, &r.Balance); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Cycle = opts.Cycle
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (want snapshots|cycles|results|notifications|holdings|balances)", q)
	}
}

// latestSnapshotCycle returns -1 when the index holds no snapshots.
func latestSnapshotCycle(db *sql.DB) (int64, error) {
	var c sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(cycle) FROM snapshots`).Scan(&c); err != nil {
		return 0, err
	}
	if !c.Valid {
		return -1, nil
	}
	return c.Int64, nil
}
