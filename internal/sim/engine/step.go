package engine

import (
	"encoding/hex"
	"time"

	"kittyledger.dev/internal/protocol"
	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

// StepOnce runs cmds as one cycle, in order, and returns the cycle number,
// the ledger digest after the last command and one result per command.
// Each command is its own transaction; a failure leaves the others alone.
func (e *Engine) StepOnce(cmds []protocol.Command) (cycle uint64, digest string, results []protocol.Result) {
	start := time.Now()
	cycle = e.cycle.Load()
	seed := e.rand.Seed(cycle)

	results = make([]protocol.Result, len(cmds))
	for i, cmd := range cmds {
		res := e.apply(seed, uint32(i), cmd)
		res.Cycle = cycle
		results[i] = res
		e.metrics.RecordOp(cmd.Type, res.Code)
	}

	notes := e.journal.Drain()
	records := make([]protocol.NotificationRecord, 0, len(notes))
	for seq, n := range notes {
		records = append(records, protocol.NewNotificationRecord(cycle, seq, n))
		e.metrics.RecordNotification(string(n.Kind))
	}

	if err := e.ledger.Update(func(rw kv.ReadWriter) error {
		rw.Put(kv.MetaKey(kv.MetaCycle), kv.EncodeU64(cycle+1))
		return nil
	}); err != nil {
		e.log.Error().Err(err).Uint64("cycle", cycle).Msg("persist cycle counter")
	}
	e.cycle.Store(cycle + 1)

	digest, err := e.ledger.Digest()
	if err != nil {
		e.log.Error().Err(err).Uint64("cycle", cycle).Msg("digest")
	}

	if e.cycleLogger != nil {
		entry := protocol.CycleLogEntry{
			Cycle:    cycle,
			Seed:     hex.EncodeToString(seed[:]),
			Commands: cmds,
			Results:  results,
			Digest:   digest,
		}
		if err := e.cycleLogger.WriteCycle(entry); err != nil {
			e.log.Warn().Err(err).Uint64("cycle", cycle).Msg("cycle log write")
		}
	}
	if e.notifLogger != nil {
		for _, rec := range records {
			if err := e.notifLogger.WriteNotification(rec); err != nil {
				e.log.Warn().Err(err).Uint64("cycle", cycle).Int("seq", rec.Seq).Msg("notification log write")
			}
		}
	}

	// Snapshot every N cycles, starting after cycle 0.
	if e.snapshotSink != nil && cycle != 0 && e.cfg.SnapshotEveryCycles > 0 {
		if cycle%uint64(e.cfg.SnapshotEveryCycles) == 0 {
			snap, err := e.ExportSnapshot(cycle)
			if err != nil {
				e.log.Error().Err(err).Uint64("cycle", cycle).Msg("export snapshot")
			} else {
				select {
				case e.snapshotSink <- snap:
				default:
					e.log.Warn().Uint64("cycle", cycle).Msg("snapshot sink full, dropped")
				}
			}
		}
	}

	nextID, _ := e.ledger.NextID()
	e.metrics.RecordCycle(cycle, uint32(nextID), time.Since(start))
	e.log.Debug().
		Uint64("cycle", cycle).
		Int("commands", len(cmds)).
		Int("notifications", len(records)).
		Str("digest", digest).
		Msg("cycle done")
	return cycle, digest, results
}

// apply runs one command. discriminant separates payloads drawn by the same
// caller within one cycle.
func (e *Engine) apply(seed genetics.Seed, discriminant uint32, cmd protocol.Command) protocol.Result {
	res := protocol.Result{ID: cmd.ID, OK: true}
	if err := cmd.Check(); err != nil {
		return failed(res, err)
	}
	caller := model.AccountID(cmd.Caller)

	switch cmd.Type {
	case protocol.TypeMint:
		id, dna, err := e.ledger.Mint(caller, genetics.DerivePayload(seed, cmd.Caller, discriminant))
		if err != nil {
			return failed(res, err)
		}
		res.KittyID = kittyID(id)
		res.DNA = dna.String()
	case protocol.TypeBreed:
		entropy := genetics.DerivePayload(seed, cmd.Caller, discriminant)
		id, dna, err := e.ledger.Breed(caller, model.KittyID(*cmd.Parent1), model.KittyID(*cmd.Parent2), entropy)
		if err != nil {
			return failed(res, err)
		}
		res.KittyID = kittyID(id)
		res.DNA = dna.String()
	case protocol.TypeTransfer:
		id := model.KittyID(*cmd.KittyID)
		if err := e.ledger.Transfer(caller, model.AccountID(cmd.To), id); err != nil {
			return failed(res, err)
		}
		res.KittyID = kittyID(id)
	case protocol.TypeSetPrice:
		id := model.KittyID(*cmd.KittyID)
		if err := e.ledger.SetPrice(caller, id, cmd.Price); err != nil {
			return failed(res, err)
		}
		res.KittyID = kittyID(id)
	case protocol.TypeBuy:
		id := model.KittyID(*cmd.KittyID)
		if err := e.ledger.Buy(caller, model.AccountID(cmd.Seller), id, *cmd.MaxBid); err != nil {
			return failed(res, err)
		}
		res.KittyID = kittyID(id)
	}
	return res
}

func failed(res protocol.Result, err error) protocol.Result {
	res.OK = false
	res.Code = protocol.CodeFor(err)
	res.Message = err.Error()
	return res
}

func kittyID(id model.KittyID) *uint32 {
	v := uint32(id)
	return &v
}
