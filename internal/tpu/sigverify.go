package tpu

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shirou/gopsutil/cpu"
	"golang.org/x/sync/errgroup"

	"github.com/solnet-labs/fullnode/internal/metricsreg"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/recycler"
	"github.com/solnet-labs/fullnode/internal/types"
)

// Verified pairs a decoded transaction with the buffer it was parsed from
// (for return to the recycler once Banking is done with it) and whether it
// passed signature verification.
type Verified struct {
	Tx       types.Transaction
	Buf      []byte
	Verified bool
}

// SigVerifyStage deserializes each packet's transaction and verifies its
// Ed25519 signature, spreading the CPU-bound work over a worker pool sized
// to the host's core count. Ordering within a batch is preserved by
// allocating each packet's output slot before dispatching, even though
// workers run out of order; ordering across batches is preserved because
// one batch is never dispatched before the previous batch's gather
// completes.
type SigVerifyStage struct {
	in       <-chan []Packet
	out      chan<- []Verified
	exit     *pipeline.ExitSignal
	packets  *recycler.Pool
	disabled bool // sigverify_disabled test-mode flag
	workers  int
}

// NewSigVerifyStage constructs a SigVerifyStage. If disabled is true every
// packet is marked verified without cryptographic work, for test fixtures
// that want deterministic, fast pipelines.
func NewSigVerifyStage(in <-chan []Packet, out chan<- []Verified, exit *pipeline.ExitSignal, packets *recycler.Pool, disabled bool) *SigVerifyStage {
	workers, err := cpu.Counts(true)
	if err != nil || workers < 1 {
		workers = 1
	}
	return &SigVerifyStage{in: in, out: out, exit: exit, packets: packets, disabled: disabled, workers: workers}
}

// Run verifies batches until the inbound channel closes or exit fires.
func (s *SigVerifyStage) Run() {
	log.Info("tpu: sigverify stage starting", "workers", s.workers, "disabled", s.disabled)
	defer close(s.out)

	for {
		batch, ok := pipeline.Recv(s.in, s.exit)
		if !ok {
			return
		}
		start := time.Now()
		results := s.verifyBatch(batch)
		metricsreg.TimeSigVerify(start)
		if !pipeline.TrySend[[]Verified](s.out, results, s.exit) {
			return
		}
	}
}

// verifyBatch parses and verifies every packet in batch, preserving input
// order in the returned slice regardless of worker completion order.
func (s *SigVerifyStage) verifyBatch(batch []Packet) []Verified {
	results := make([]Verified, len(batch))
	var g errgroup.Group
	sem := make(chan struct{}, s.workers)

	for i, pkt := range batch {
		i, pkt := i, pkt
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			results[i] = s.verifyOne(pkt)
			return nil
		})
	}
	g.Wait()
	return results
}

func (s *SigVerifyStage) verifyOne(pkt Packet) Verified {
	tx, err := types.ParsePacket(pkt.Buf)
	if err != nil {
		log.Trace("tpu: sigverify dropped undecodable packet", "err", err)
		metricsreg.TransactionsRejected.Inc(1)
		return Verified{Buf: pkt.Buf, Verified: false}
	}
	ok := s.disabled || tx.VerifySignature()
	if ok {
		metricsreg.TransactionsVerified.Inc(1)
	} else {
		log.Trace("tpu: sigverify rejected bad signature", "payer", tx.Payer)
		metricsreg.TransactionsRejected.Inc(1)
	}
	return Verified{Tx: tx, Buf: pkt.Buf, Verified: ok}
}
