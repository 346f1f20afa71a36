package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/sim/engine"
	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger/kv"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	ledgerID := fs.String("ledger", "", "ledger id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "ledgers")
	if *ledgerID != "" {
		base = filepath.Join(base, *ledgerID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

type snapshotSummary struct {
	Path     string `json:"path"`
	LedgerID string `json:"ledger_id"`
	Cycle    uint64 `json:"cycle"`
	NextID   uint32 `json:"next_id"`
	Kitties  int    `json:"kitties"`
	Lineage  int    `json:"lineage"`
	Listings int    `json:"listings"`
	Accounts int    `json:"accounts"`
	Digest   string `json:"digest"`
	Verified *bool  `json:"verified,omitempty"`
}

type holding struct {
	ID     uint32 `json:"kitty_id"`
	Owner  string `json:"owner"`
	DNA    string `json:"dna"`
	Gender string `json:"gender"`
	Mother *int64 `json:"mother,omitempty"`
	Father *int64 `json:"father,omitempty"`
	Price  string `json:"price,omitempty"`
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	ledgerID := fs.String("ledger", "main", "ledger id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	owner := fs.String("owner", "", "list the kitties held by this account")
	verify := fs.Bool("verify", false, "load the snapshot into a scratch ledger and check its digest")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path, _ = snapshot.Latest(filepath.Join(*dataDir, "ledgers", *ledgerID, "snapshots"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run ledgerd until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	if *owner != "" {
		for _, h := range holdingsOf(snap, *owner) {
			printJSON(h)
		}
		return
	}

	sum := summarize(path, snap)
	if *verify {
		ok := verifySnapshot(snap) == nil
		sum.Verified = &ok
	}
	printJSON(sum)
	if sum.Verified != nil && !*sum.Verified {
		os.Exit(1)
	}
}

func summarize(path string, snap snapshot.Snapshot) snapshotSummary {
	return snapshotSummary{
		Path:     path,
		LedgerID: snap.Header.LedgerID,
		Cycle:    snap.Header.Cycle,
		NextID:   snap.NextID,
		Kitties:  len(snap.Kitties),
		Lineage:  len(snap.Lineage),
		Listings: len(snap.Listings),
		Accounts: len(snap.Accounts),
		Digest:   snap.Digest,
	}
}

func verifySnapshot(snap snapshot.Snapshot) error {
	eng, err := engine.New(engine.Config{LedgerID: snap.Header.LedgerID}, kv.NewMemStore(), nil, nil, zerolog.Nop())
	if err != nil {
		return err
	}
	return eng.ImportSnapshot(snap)
}

func holdingsOf(snap snapshot.Snapshot, owner string) []holding {
	parents := make(map[uint32]snapshot.Lineage, len(snap.Lineage))
	for _, l := range snap.Lineage {
		parents[l.ID] = l
	}
	prices := make(map[uint32]string, len(snap.Listings))
	for _, l := range snap.Listings {
		prices[l.ID] = l.Price.String()
	}
	var out []holding
	for _, k := range snap.Kitties {
		if k.Owner != owner {
			continue
		}
		dna := genetics.DNA(k.DNA)
		h := holding{ID: k.ID, Owner: k.Owner, DNA: dna.String(), Gender: dna.Gender().String(), Price: prices[k.ID]}
		if l, ok := parents[k.ID]; ok {
			m, f := int64(l.Mother), int64(l.Father)
			h.Mother, h.Father = &m, &f
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
