package tvu

import (
	"errors"

	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/metricsreg"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/types"
)

// ErrLedgerForked is the fatal error ReplicateStage raises when an
// incoming entry's prev_hash does not match the local chain head: the
// broadcast entry stream has diverged from what this validator has
// replayed so far, and replay cannot safely continue.
var ErrLedgerForked = errors.New("tvu: ledger forked, prev_hash mismatch")

// Vote is the acknowledgement ReplicateStage emits for the highest entry
// it has successfully replayed. Vote propagation and aggregation are out
// of scope; this type only carries the payload a consensus collaborator
// would consume.
type Vote struct {
	EntryID types.Pubkey // reinterpreted as a raw 32-byte hash by callers
	Height  uint64
}

// ReplicateStage consumes in-order blobs, decodes each into an Entry,
// checks hash-chain continuity against the local head, applies every
// contained transaction to the local Bank, and advances the Bank's
// recent-id window. A chain-link mismatch is fatal and stops the stage.
type ReplicateStage struct {
	bank     *bank.Bank
	in       <-chan types.Blob
	votes    chan<- Vote
	exit     *pipeline.ExitSignal
	prevHash [32]byte
	height   uint64

	// Err is set once Run returns after a fatal chain-link mismatch.
	Err error
}

// NewReplicateStage constructs a ReplicateStage seeded at the bank's
// current chain head.
func NewReplicateStage(b *bank.Bank, in <-chan types.Blob, votes chan<- Vote, exit *pipeline.ExitSignal) *ReplicateStage {
	return &ReplicateStage{bank: b, in: in, votes: votes, exit: exit, prevHash: b.LastID()}
}

// Run replays blobs until the inbound channel closes, exit fires, or a
// chain-link mismatch occurs (in which case Err is set to ErrLedgerForked
// before returning).
func (s *ReplicateStage) Run() {
	log.Info("tvu: replicate stage starting")
	if s.votes != nil {
		defer close(s.votes)
	}

	for {
		blob, ok := pipeline.Recv(s.in, s.exit)
		if !ok {
			return
		}
		if err := s.apply(blob); err != nil {
			s.Err = err
			log.Error("tvu: replicate stage halting", "err", err)
			return
		}
	}
}

func (s *ReplicateStage) apply(blob types.Blob) error {
	entry, err := blob.Entry()
	if err != nil {
		log.Debug("tvu: replicate dropped undecodable blob", "index", blob.Index, "err", err)
		return nil
	}
	if entry.PrevHash != s.prevHash {
		return ErrLedgerForked
	}

	for _, tx := range entry.Transactions {
		if err := s.bank.ProcessTransaction(tx); err != nil {
			log.Trace("tvu: replicate rejected transaction on replay", "err", err)
		}
	}

	id := entry.ID()
	s.bank.RegisterEntryID(id)
	s.prevHash = id
	s.height++
	metricsreg.EntriesReplayed.Inc(1)

	if s.votes != nil {
		var voteID types.Pubkey
		copy(voteID[:], id[:])
		pipeline.TrySend[Vote](s.votes, Vote{EntryID: voteID, Height: s.height}, s.exit)
	}
	return nil
}
