// Package engine serializes ledger commands into numbered processing cycles.
// One goroutine owns the ledger; callers submit commands through an inbox and
// wait for their result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kittyledger.dev/internal/observability"
	"kittyledger.dev/internal/persistence/snapshot"
	"kittyledger.dev/internal/protocol"
	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/ledger"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/randomness"
)

var ErrStopped = errors.New("engine stopped")

type Config struct {
	LedgerID            string
	CycleInterval       time.Duration
	SnapshotEveryCycles int
	InboxSize           int
}

type CycleLogger interface {
	WriteCycle(entry protocol.CycleLogEntry) error
}

type NotificationLogger interface {
	WriteNotification(rec protocol.NotificationRecord) error
}

type request struct {
	cmd  protocol.Command
	resp chan protocol.Result
}

// Engine is driven either by Run or by direct StepOnce calls, never both.
type Engine struct {
	cfg Config

	ledger   *ledger.Ledger
	balances *currency.Balances
	journal  *ledger.Journal
	rand     randomness.Source
	log      zerolog.Logger
	metrics  *observability.Metrics

	cycleLogger  CycleLogger
	notifLogger  NotificationLogger
	snapshotSink chan<- snapshot.Snapshot

	cycle atomic.Uint64

	inbox    chan request
	stop     chan struct{}
	stopOnce sync.Once

	// sendMu orders inbox sends against the final drain: senders hold the
	// read side, Run takes the write side before marking the engine closed.
	sendMu sync.RWMutex
	closed bool
}

func New(cfg Config, store kv.Store, balances *currency.Balances, src randomness.Source, logger zerolog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: nil store")
	}
	if balances == nil {
		balances = currency.NewBalances(currency.DefaultExistentialDeposit)
	}
	if src == nil {
		src = randomness.Crypto{}
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 200 * time.Millisecond
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	journal := &ledger.Journal{}
	e := &Engine{
		cfg:      cfg,
		ledger:   ledger.New(store, balances, journal),
		balances: balances,
		journal:  journal,
		rand:     src,
		log:      logger.With().Str("ledger", cfg.LedgerID).Logger(),
		inbox:    make(chan request, cfg.InboxSize),
		stop:     make(chan struct{}),
	}
	raw, ok, err := store.Get(kv.MetaKey(kv.MetaCycle))
	if err != nil {
		return nil, fmt.Errorf("engine: read cycle: %w", err)
	}
	if ok {
		c, valid := kv.DecodeU64(raw)
		if !valid {
			return nil, fmt.Errorf("engine: corrupt cycle counter %x", raw)
		}
		e.cycle.Store(c)
	}
	return e, nil
}

func (e *Engine) SetCycleLogger(l CycleLogger)                { e.cycleLogger = l }
func (e *Engine) SetNotificationLogger(l NotificationLogger)  { e.notifLogger = l }
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.Snapshot) { e.snapshotSink = ch }
func (e *Engine) SetMetrics(m *observability.Metrics)         { e.metrics = m }
func (e *Engine) SetRandomness(src randomness.Source)         { e.rand = src }
func (e *Engine) Ledger() *ledger.Ledger                      { return e.ledger }
func (e *Engine) Balances() *currency.Balances                { return e.balances }
func (e *Engine) LedgerID() string                            { return e.cfg.LedgerID }

// Cycle is the number the next processed cycle will carry.
func (e *Engine) Cycle() uint64 { return e.cycle.Load() }

// Enqueue hands cmd to the loop. The returned channel yields exactly one
// result once the cycle holding cmd has run.
func (e *Engine) Enqueue(ctx context.Context, cmd protocol.Command) (<-chan protocol.Result, error) {
	select {
	case <-e.stop:
		return nil, ErrStopped
	default:
	}
	e.sendMu.RLock()
	defer e.sendMu.RUnlock()
	if e.closed {
		return nil, ErrStopped
	}
	resp := make(chan protocol.Result, 1)
	select {
	case e.inbox <- request{cmd: cmd, resp: resp}:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stop:
		return nil, ErrStopped
	}
}

func (e *Engine) Submit(ctx context.Context, cmd protocol.Command) (protocol.Result, error) {
	resp, err := e.Enqueue(ctx, cmd)
	if err != nil {
		return protocol.Result{}, err
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return protocol.Result{}, ctx.Err()
	}
}

// Run processes queued commands once per cycle interval. Intervals with an
// empty queue do not consume a cycle number. Commands already queued when
// Run is told to stop are processed in one last cycle. Once Run returns,
// Enqueue and Submit fail with ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	var pending []request
	for {
		select {
		case <-ctx.Done():
			e.shutdown(pending)
			return ctx.Err()
		case <-e.stop:
			e.shutdown(pending)
			return nil
		case req := <-e.inbox:
			pending = append(pending, req)
		case <-ticker.C:
			e.flush(pending)
			pending = pending[:0]
		}
	}
}

func (e *Engine) Stop() { e.stopOnce.Do(func() { close(e.stop) }) }

// shutdown closes the inbox to new senders, then runs everything already
// queued as the last cycle.
func (e *Engine) shutdown(pending []request) {
	e.Stop()
	e.sendMu.Lock()
	e.closed = true
	e.sendMu.Unlock()
	e.flush(e.drainInbox(pending))
}

func (e *Engine) drainInbox(pending []request) []request {
	for {
		select {
		case req := <-e.inbox:
			pending = append(pending, req)
		default:
			return pending
		}
	}
}

func (e *Engine) flush(pending []request) {
	if len(pending) == 0 {
		return
	}
	cmds := make([]protocol.Command, len(pending))
	for i, req := range pending {
		cmds[i] = req.cmd
	}
	_, _, results := e.StepOnce(cmds)
	for i, req := range pending {
		req.resp <- results[i]
	}
}
