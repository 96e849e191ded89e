package tvu

import (
	"net"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/crdt"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/recycler"
	"github.com/solnet-labs/fullnode/internal/types"
)

// ChannelCapacity bounds every inter-stage channel in the validator
// pipeline.
const ChannelCapacity = 1024

// DefaultWindowSize is the reorder buffer capacity RetransmitStage uses
// absent an explicit override: 32K blobs.
const DefaultWindowSize = 32 * 1024

// Config wires together everything a Tvu needs: the sockets it receives
// blobs on, who it retransmits to and requests repairs from, and the
// window capacity.
type Config struct {
	Self       types.Pubkey
	BlobConns  []*net.UDPConn // replicate + repair sockets
	Retransmit *net.UDPConn   // socket used to re-broadcast and request repairs
	Members    crdt.View
	WindowSize uint64
}

// Tvu is the validator pipeline: BlobFetch -> Retransmit (window +
// repair) -> Replicate, replaying the broadcast entry stream into a
// shared Bank.
type Tvu struct {
	exit      *pipeline.ExitSignal
	replicate *ReplicateStage
	wg        sync.WaitGroup
}

// New constructs every stage, wires their channels and starts each stage
// in its own goroutine; call Close to stop them. votes may be nil if the caller doesn't care
// to observe emitted votes.
func New(b *bank.Bank, cfg Config, votes chan<- Vote) *Tvu {
	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	t := &Tvu{exit: pipeline.NewExitSignal()}

	blobs := recycler.New(types.BlobBufferSize)

	rawCh := pipeline.NewBounded[[]RawBlob](ChannelCapacity)
	orderedCh := pipeline.NewBounded[types.Blob](ChannelCapacity)

	fetch := NewBlobFetchStage(cfg.BlobConns, rawCh, t.exit, blobs)
	retransmit := NewRetransmitStage(cfg.Self, windowSize, cfg.Members, cfg.Retransmit, rawCh, orderedCh, t.exit, blobs)
	replicate := NewReplicateStage(b, orderedCh, votes, t.exit)
	t.replicate = replicate

	for _, run := range []func(){fetch.Run, retransmit.Run, replicate.Run} {
		run := run
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			run()
		}()
	}

	return t
}

// Err returns the fatal replay error, if ReplicateStage halted on a
// chain-link mismatch.
func (t *Tvu) Err() error {
	return t.replicate.Err
}

// Close requests every stage wind down, then blocks until they have.
func (t *Tvu) Close() {
	log.Info("tvu: close requested")
	t.exit.Close()
	t.wg.Wait()
	log.Info("tvu: all stages joined")
}
