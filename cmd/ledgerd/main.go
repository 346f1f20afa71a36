package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"kittyledger.dev/internal/config"
	"kittyledger.dev/internal/observability"
	"kittyledger.dev/internal/persistence/archive"
	"kittyledger.dev/internal/persistence/boltkv"
	"kittyledger.dev/internal/persistence/indexdb"
	persistlog "kittyledger.dev/internal/persistence/log"
	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/protocol"
	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/engine"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/randomness"
)

type options struct {
	Snapshot string
}

func main() {
	var (
		configPath   = flag.String("config", "", "path to ledger.yaml (optional)")
		commandsPath = flag.String("commands", "", "JSONL command file (default: stdin)")
		dataDir      = flag.String("data", "", "runtime data directory (overrides config)")
		ledgerID     = flag.String("ledger", "", "ledger id (overrides config)")
		snapPath     = flag.String("snapshot", "", "snapshot to restore before processing (default for memory store: latest)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	if strings.TrimSpace(*ledgerID) != "" {
		cfg.LedgerID = *ledgerID
	}
	cfg.Normalize()

	logger := observability.InitLoggerTo(os.Stderr, "ledgerd", cfg.LogLevel)

	in := io.Reader(os.Stdin)
	if p := strings.TrimSpace(*commandsPath); p != "" {
		f, err := os.Open(p)
		if err != nil {
			logger.Fatal().Err(err).Str("path", p).Msg("open commands")
		}
		defer f.Close()
		in = f
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, options{Snapshot: *snapPath}, in, os.Stdout, logger); err != nil {
		logger.Error().Err(err).Msg("ledgerd stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	ledgerDir := filepath.Join(cfg.DataDir, "ledgers", cfg.LedgerID)
	if err := os.MkdirAll(ledgerDir, 0o755); err != nil {
		return err
	}
	snapDir := filepath.Join(ledgerDir, "snapshots")

	store, err := openStore(cfg, ledgerDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ed, err := cfg.ExistentialDepositValue()
	if err != nil {
		return err
	}
	src, err := randomness.New(cfg.Randomness, cfg.Seed)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Config{
		LedgerID:            cfg.LedgerID,
		CycleInterval:       time.Duration(cfg.CycleIntervalMs) * time.Millisecond,
		SnapshotEveryCycles: cfg.SnapshotEveryCycles,
		InboxSize:           cfg.InboxSize,
	}, store, currency.NewBalances(ed), src, logger)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics(cfg.LedgerID)
	eng.SetMetrics(metrics)

	// Restore: explicit snapshot, or the latest one when nothing else holds state.
	snapshotToLoad := strings.TrimSpace(opts.Snapshot)
	if snapshotToLoad == "" && cfg.Store == config.StoreMemory {
		snapshotToLoad, _ = snapshot.Latest(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := eng.ImportSnapshot(snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info().Str("snapshot", filepath.Base(snapshotToLoad)).Uint64("cycle", eng.Cycle()).Msg("resumed from snapshot")
	}

	genesis, err := cfg.GenesisAccounts()
	if err != nil {
		return err
	}
	accounts := make([]currency.Account, 0, len(genesis))
	for _, g := range genesis {
		accounts = append(accounts, currency.Account{ID: g.ID, Balance: g.Balance})
	}
	if _, err := eng.Genesis(accounts); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	// Optional read-model index (does not affect ledger determinism).
	var idx *indexdb.SQLiteIndex
	if cfg.IndexEnabled {
		idx, err = indexdb.OpenSQLite(filepath.Join(ledgerDir, "index.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
	}

	cycleLog := persistlog.NewCycleLogger(ledgerDir)
	notifLog := persistlog.NewNotificationLogger(ledgerDir)
	defer cycleLog.Close()
	defer notifLog.Close()
	if idx != nil {
		eng.SetCycleLogger(multiCycleLogger{a: cycleLog, b: idx})
		eng.SetNotificationLogger(multiNotificationLogger{a: notifLog, b: idx})
	} else {
		eng.SetCycleLogger(cycleLog)
		eng.SetNotificationLogger(notifLog)
	}

	w := &snapshotWriter{
		ledgerDir:    ledgerDir,
		dir:          snapDir,
		idx:          idx,
		metrics:      metrics,
		textfile:     cfg.MetricsTextfile,
		archiveEvery: uint64(cfg.ArchiveEveryCycles),
		keep:         cfg.KeepSnapshots,
		log:          logger,
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.Snapshot, 2)
	eng.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for snap := range snapCh {
			w.write(snap)
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("engine stopped")
		}
	}()

	pending := make(chan (<-chan protocol.Result), cfg.InboxSize)
	printerDone := make(chan error, 1)
	go func() { printerDone <- printResults(out, pending, runDone) }()

	readDone := make(chan error, 1)
	go func() {
		readDone <- readCommands(ctx, eng, in, pending, logger)
		close(pending)
	}()

	// A blocked stdin read must not hold up shutdown on a signal.
	var readErr error
	select {
	case readErr = <-readDone:
	case <-ctx.Done():
	}
	printErr := <-printerDone

	eng.Stop()
	<-runDone
	close(snapCh)
	<-writerDone

	if c := eng.Cycle(); c > 0 {
		snap, err := eng.ExportSnapshot(c - 1)
		if err != nil {
			logger.Error().Err(err).Msg("final snapshot")
		} else {
			w.write(snap)
		}
	}
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logger.Warn().Err(err).Msg("metrics textfile")
	}
	logger.Info().Uint64("cycle", eng.Cycle()).Msg("shutdown")

	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		return readErr
	}
	return printErr
}

func openStore(cfg config.Config, ledgerDir string) (kv.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return kv.NewMemStore(), nil
	default:
		return boltkv.Open(filepath.Join(ledgerDir, "ledger.bolt"))
	}
}

// readCommands decodes one command per line and queues it. Lines that fail
// to decode are answered in place, in input order.
func readCommands(ctx context.Context, eng *engine.Engine, in io.Reader, pending chan<- (<-chan protocol.Result), logger zerolog.Logger) error {
	validator, err := protocol.NewValidator()
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := protocol.DecodeCommand(validator, []byte(line))
		if err != nil {
			logger.Debug().Err(err).Msg("rejected command line")
			pending <- rejected(line, err)
			continue
		}
		resp, err := eng.Enqueue(ctx, cmd)
		if err != nil {
			return err
		}
		pending <- resp
	}
	return sc.Err()
}

func rejected(line string, err error) <-chan protocol.Result {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal([]byte(line), &probe)
	ch := make(chan protocol.Result, 1)
	ch <- protocol.Result{ID: probe.ID, OK: false, Code: protocol.CodeFor(err), Message: err.Error()}
	return ch
}

func printResults(out io.Writer, pending <-chan (<-chan protocol.Result), runDone <-chan struct{}) error {
	bw := bufio.NewWriter(out)
	enc := json.NewEncoder(bw)
	for {
		var resp <-chan protocol.Result
		select {
		case next, ok := <-pending:
			if !ok {
				return nil
			}
			resp = next
		case <-runDone:
			return nil
		}
		var r protocol.Result
		select {
		case r = <-resp:
		case <-runDone:
			select {
			case r = <-resp:
			default:
				return errors.New("engine stopped before command was processed")
			}
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
}

type snapshotWriter struct {
	ledgerDir    string
	dir          string
	idx          *indexdb.SQLiteIndex
	metrics      *observability.Metrics
	textfile     string
	archiveEvery uint64
	keep         int
	log          zerolog.Logger
}

func (w *snapshotWriter) write(snap snapshot.Snapshot) {
	path := snapshot.Path(w.dir, snap.Header.Cycle)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		w.log.Error().Err(err).Uint64("cycle", snap.Header.Cycle).Msg("snapshot write")
		return
	}
	if epoch, dst, ok, err := archive.ArchiveEpochSnapshot(w.ledgerDir, path, snap, w.archiveEvery); err != nil {
		w.log.Warn().Err(err).Uint64("cycle", snap.Header.Cycle).Msg("snapshot archive")
	} else if ok {
		w.log.Info().Int("epoch", epoch).Str("path", dst).Msg("snapshot archived")
	}
	if removed, err := archive.PruneSnapshots(w.dir, w.keep); err != nil {
		w.log.Warn().Err(err).Msg("snapshot prune")
	} else if len(removed) > 0 {
		w.log.Debug().Int("removed", len(removed)).Msg("snapshots pruned")
	}
	if w.idx != nil {
		w.idx.RecordSnapshot(path, snap)
		w.idx.RecordSnapshotState(snap)
		st := w.idx.Stats()
		w.metrics.SetIndexDrops("cycle", st.DropCycleTotal)
		w.metrics.SetIndexDrops("notification", st.DropNotificationTotal)
		w.metrics.SetIndexDrops("snapshot", st.DropSnapshotTotal)
		w.metrics.SetIndexDrops("snapshot_state", st.DropSnapshotStateTotal)
	}
	if err := w.metrics.WriteTextfile(w.textfile); err != nil {
		w.log.Warn().Err(err).Msg("metrics textfile")
	}
	w.log.Info().Uint64("cycle", snap.Header.Cycle).Int("kitties", len(snap.Kitties)).Str("path", path).Msg("snapshot written")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiCycleLogger struct {
	a engine.CycleLogger
	b engine.CycleLogger
}

// WriteCycle writes to both sinks even when the first fails.
func (m multiCycleLogger) WriteCycle(entry protocol.CycleLogEntry) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteCycle(entry)
	}
	if m.b != nil {
		errB = m.b.WriteCycle(entry)
	}
	return errors.Join(errA, errB)
}

type multiNotificationLogger struct {
	a engine.NotificationLogger
	b engine.NotificationLogger
}

func (m multiNotificationLogger) WriteNotification(rec protocol.NotificationRecord) error {
	var errA, errB error
	if m.a != nil {
		errA = m.a.WriteNotification(rec)
	}
	if m.b != nil {
		errB = m.b.WriteNotification(rec)
	}
	return errors.Join(errA, errB)
}
