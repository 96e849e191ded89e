package tpu

import (
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/crdt"
	"github.com/solnet-labs/fullnode/internal/ledger"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/poh"
	"github.com/solnet-labs/fullnode/internal/recycler"
	"github.com/solnet-labs/fullnode/internal/types"
)

// ChannelCapacity bounds every inter-stage channel in the pipeline, giving
// producers backpressure instead of unbounded memory growth.
const ChannelCapacity = 1024

// Config wires together everything a Tpu needs to run: the socket it
// receives transactions on, the socket it broadcasts entries from, where
// it persists the ledger, who it broadcasts to, and whether PoH runs
// packet- or clock-driven.
type Config struct {
	Self             types.Pubkey
	TransactionsConn *net.UDPConn
	BroadcastConn    *net.UDPConn
	LedgerPath       string
	Members          crdt.View
	TickInterval     time.Duration // zero selects packet-driven PoH
	SigVerifyDisabled bool
}

// Tpu is the leader pipeline: Fetch -> SigVerify -> Banking -> Record ->
// Write, operating over a shared Bank.
type Tpu struct {
	bank   *bank.Bank
	exit   *pipeline.ExitSignal
	ledger *ledger.Writer
	wg     sync.WaitGroup
}

// New constructs every stage, wires their channels and starts each stage
// in its own goroutine; call Close to stop them.
func New(b *bank.Bank, cfg Config) (*Tpu, error) {
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}

	t := &Tpu{bank: b, exit: pipeline.NewExitSignal(), ledger: led}

	packets := recycler.New(types.PacketBufferSize)
	blobs := recycler.New(types.BlobBufferSize)
	repair := ledger.NewRepairCache(64 << 20)

	packetsCh := pipeline.NewBounded[[]Packet](ChannelCapacity)
	verifiedCh := pipeline.NewBounded[[]Verified](ChannelCapacity)
	acceptedCh := pipeline.NewBounded[[]types.Transaction](ChannelCapacity)
	entriesCh := pipeline.NewBounded[types.Entry](ChannelCapacity)

	fetch := NewFetchStage(cfg.TransactionsConn, packetsCh, t.exit, packets)
	sigverify := NewSigVerifyStage(packetsCh, verifiedCh, t.exit, packets, cfg.SigVerifyDisabled)
	banking := NewBankingStage(b, verifiedCh, acceptedCh, t.exit, packets)
	record := poh.New(b, acceptedCh, entriesCh, t.exit, cfg.TickInterval)
	write := NewWriteStage(cfg.Self, led, repair, cfg.Members, cfg.BroadcastConn, entriesCh, t.exit, blobs)

	for _, run := range []func(){fetch.Run, sigverify.Run, banking.Run, record.Run, write.Run} {
		run := run
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			run()
		}()
	}

	return t, nil
}

// Close requests every stage wind down, then blocks until they have,
// cascading channel closures downstream, and releases the ledger file.
func (t *Tpu) Close() error {
	log.Info("tpu: close requested")
	t.exit.Close()
	t.wg.Wait()
	log.Info("tpu: all stages joined")
	return t.ledger.Close()
}
