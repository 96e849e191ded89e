// Package poh implements RecordStage, the Proof-of-History sequencer that
// turns accepted transaction batches into a totally ordered, hash-chained
// stream of entries.
package poh

import (
	"crypto/sha256"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/types"
)

// Recorder owns the hash chain and runs either in packet-driven mode (an
// entry is emitted only when a transaction batch arrives) or clock-driven
// mode (a background hasher makes continuous progress and emits tick
// entries whenever TickInterval elapses with nothing to record).
type Recorder struct {
	bank         *bank.Bank
	in           <-chan []types.Transaction
	out          chan<- types.Entry
	exit         *pipeline.ExitSignal
	tickInterval time.Duration // zero means packet-driven
}

// New constructs a Recorder seeded at the bank's current LastID. A zero
// tickInterval selects packet-driven mode.
func New(b *bank.Bank, in <-chan []types.Transaction, out chan<- types.Entry, exit *pipeline.ExitSignal, tickInterval time.Duration) *Recorder {
	return &Recorder{bank: b, in: in, out: out, exit: exit, tickInterval: tickInterval}
}

// Run drives the sequencer until the exit signal fires or the inbound
// channel closes. It registers every emitted entry's id with the Bank so
// transactions naming it stay acceptable for the next RecentIDWindow
// entries, then blocks on Run's caller to join.
func (r *Recorder) Run() {
	log.Info("poh: record stage starting", "clockDriven", r.tickInterval > 0)
	if r.tickInterval > 0 {
		r.runClockDriven()
	} else {
		r.runPacketDriven()
	}
	close(r.out)
	log.Info("poh: record stage exited")
}

func (r *Recorder) runPacketDriven() {
	prevHash := r.bank.LastID()
	for {
		batch, ok := pipeline.Recv(r.in, r.exit)
		if !ok {
			return
		}
		entry := types.NewTransactionEntry(prevHash, 1, batch)
		id := entry.ID()
		prevHash = id
		r.bank.RegisterEntryID(id)
		if !pipeline.TrySend[types.Entry](r.out, entry, r.exit) {
			return
		}
	}
}

func (r *Recorder) runClockDriven() {
	// anchor is the id of the last emitted entry, the only valid PrevHash
	// for the next one. running is the background hasher's working value;
	// it must never be read back into PrevHash, only numHashes counts it.
	anchor := r.bank.LastID()
	running := anchor
	var numHashes uint64

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.exit.Done():
			return
		case batch, ok := <-r.in:
			if !ok {
				return
			}
			entry := types.NewTransactionEntry(anchor, numHashes, batch)
			id := entry.ID()
			anchor, running, numHashes = id, id, 0
			r.bank.RegisterEntryID(id)
			if !pipeline.TrySend[types.Entry](r.out, entry, r.exit) {
				return
			}
			continue
		case <-ticker.C:
			entry := types.NewTickEntry(anchor, numHashes)
			id := entry.ID()
			anchor, running, numHashes = id, id, 0
			r.bank.RegisterEntryID(id)
			if !pipeline.TrySend[types.Entry](r.out, entry, r.exit) {
				return
			}
			continue
		default:
		}
		// No transactions and no elapsed tick: keep hashing so elapsed
		// virtual time is never conflated with "no work done".
		running = sha256.Sum256(running[:])
		numHashes++
	}
}
