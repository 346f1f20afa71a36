package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/config"
	persistlog "kittyledger.dev/internal/persistence/log"
	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/protocol"
	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/engine"
	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/randomness"
)

var errReachedEnd = errors.New("reached -to_cycle")

type options struct {
	LedgerDir string
	LedgerID  string
	Snapshot  string

	// Starting state when no snapshot is given.
	Genesis            []currency.Account
	ExistentialDeposit decimal.Decimal

	FromCycle           uint64
	ToCycle             uint64
	VerifyNotifications bool
}

type report struct {
	StartCycle    uint64
	Checked       uint64
	Notifications uint64
	FinalDigest   string
}

func main() {
	var (
		ledgerDir     = flag.String("ledger_dir", "", "ledger data dir containing cycles/ and snapshots/")
		snapPath      = flag.String("snapshot", "", "path to .snap.zst to start from (default: genesis from -config)")
		configPath    = flag.String("config", "", "ledger.yaml providing ledger id, genesis balances and existential deposit")
		fromCycle     = flag.Uint64("from_cycle", 0, "start verifying from cycle (inclusive, optional)")
		toCycle       = flag.Uint64("to_cycle", 0, "stop at cycle (inclusive, optional)")
		verifyNotices = flag.Bool("verify_notifications", false, "schema-check every logged notification")
	)
	flag.Parse()

	if *ledgerDir == "" {
		fmt.Fprintln(os.Stderr, "missing -ledger_dir")
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	ed, _ := cfg.ExistentialDepositValue()
	genesis, _ := cfg.GenesisAccounts()
	accounts := make([]currency.Account, 0, len(genesis))
	for _, g := range genesis {
		accounts = append(accounts, currency.Account{ID: g.ID, Balance: g.Balance})
	}

	// Without a config the snapshot header names the ledger.
	ledgerID := ""
	if *configPath != "" {
		ledgerID = cfg.LedgerID
	}
	rep, err := replay(options{
		LedgerDir:           *ledgerDir,
		LedgerID:            ledgerID,
		Snapshot:            *snapPath,
		Genesis:             accounts,
		ExistentialDeposit:  ed,
		FromCycle:           *fromCycle,
		ToCycle:             *toCycle,
		VerifyNotifications: *verifyNotices,
	}, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d cycles (from cycle=%d) notifications=%d digest=%s\n",
		rep.Checked, rep.StartCycle, rep.Notifications, rep.FinalDigest)
}

func replay(opts options, out io.Writer) (report, error) {
	var rep report

	eng, err := engine.New(engine.Config{LedgerID: opts.LedgerID}, kv.NewMemStore(), currency.NewBalances(opts.ExistentialDeposit), nil, zerolog.Nop())
	if err != nil {
		return rep, err
	}
	if opts.Snapshot != "" {
		snap, err := snapshot.ReadSnapshot(opts.Snapshot)
		if err != nil {
			return rep, fmt.Errorf("read snapshot: %w", err)
		}
		fmt.Fprintf(out, "snapshot ledger=%s cycle=%d next_id=%d kitties=%d lineage=%d listings=%d accounts=%d\n",
			snap.Header.LedgerID, snap.Header.Cycle, snap.NextID,
			len(snap.Kitties), len(snap.Lineage), len(snap.Listings), len(snap.Accounts))
		if opts.LedgerID == "" {
			eng, err = engine.New(engine.Config{LedgerID: snap.Header.LedgerID}, kv.NewMemStore(), currency.NewBalances(opts.ExistentialDeposit), nil, zerolog.Nop())
			if err != nil {
				return rep, err
			}
		}
		if err := eng.ImportSnapshot(snap); err != nil {
			return rep, fmt.Errorf("import snapshot: %w", err)
		}
	} else if _, err := eng.Genesis(opts.Genesis); err != nil {
		return rep, fmt.Errorf("genesis: %w", err)
	}

	rep.StartCycle = eng.Cycle()
	verifyFrom := opts.FromCycle
	if verifyFrom < rep.StartCycle {
		verifyFrom = rep.StartCycle
	}

	files, err := persistlog.ListFiles(filepath.Join(opts.LedgerDir, "cycles"), "cycles")
	if err != nil {
		return rep, fmt.Errorf("list cycles: %w", err)
	}
	if len(files) == 0 {
		return rep, fmt.Errorf("no cycle logs in %s", filepath.Join(opts.LedgerDir, "cycles"))
	}

	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var entry protocol.CycleLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if entry.Cycle < eng.Cycle() {
				return nil
			}
			if opts.ToCycle != 0 && entry.Cycle > opts.ToCycle {
				return errReachedEnd
			}
			if entry.Cycle != eng.Cycle() {
				return fmt.Errorf("cycle gap: want=%d got=%d", eng.Cycle(), entry.Cycle)
			}
			seed, err := parseSeed(entry.Seed)
			if err != nil {
				return fmt.Errorf("cycle %d: %w", entry.Cycle, err)
			}
			eng.SetRandomness(randomness.Fixed(seed))

			cycle, digest, results := eng.StepOnce(entry.Commands)
			if cycle != entry.Cycle {
				return fmt.Errorf("internal cycle mismatch: stepped=%d entry=%d", cycle, entry.Cycle)
			}
			rep.FinalDigest = digest
			if cycle < verifyFrom {
				return nil
			}
			rep.Checked++
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at cycle %d: got=%s want=%s", cycle, digest, entry.Digest)
			}
			if len(results) != len(entry.Results) {
				return fmt.Errorf("result count mismatch at cycle %d: got=%d want=%d", cycle, len(results), len(entry.Results))
			}
			for i := range results {
				if results[i].Code != entry.Results[i].Code {
					return fmt.Errorf("result mismatch at cycle %d command %d: got=%q want=%q",
						cycle, i, results[i].Code, entry.Results[i].Code)
				}
			}
			return nil
		})
		if errors.Is(err, errReachedEnd) {
			break
		}
		if err != nil {
			return rep, err
		}
	}

	if opts.VerifyNotifications {
		n, err := verifyNotifications(filepath.Join(opts.LedgerDir, "notifications"))
		if err != nil {
			return rep, err
		}
		rep.Notifications = n
	}
	return rep, nil
}

func parseSeed(s string) (genetics.Seed, error) {
	var seed genetics.Seed
	b, err := hex.DecodeString(s)
	if err != nil {
		return seed, fmt.Errorf("seed: %w", err)
	}
	if len(b) != len(seed) {
		return seed, fmt.Errorf("seed: want %d bytes, got %d", len(seed), len(b))
	}
	copy(seed[:], b)
	return seed, nil
}

func verifyNotifications(dir string) (uint64, error) {
	files, err := persistlog.ListFiles(dir, "notifications")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	v, err := protocol.NewValidator()
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, path := range files {
		if err := persistlog.ReadLines(path, func(line []byte) error {
			if err := v.ValidateJSON(protocol.SchemaNotification, line); err != nil {
				return fmt.Errorf("notification %d: %w", n, err)
			}
			n++
			return nil
		}); err != nil {
			return n, err
		}
	}
	return n, nil
}
