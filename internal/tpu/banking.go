package tpu

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/metricsreg"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/recycler"
	"github.com/solnet-labs/fullnode/internal/types"
)

// BankingStage submits verified transactions to the Bank and forwards only
// the accepted ones, in arrival order, to RecordStage. Packet buffers are
// returned to the recycler once a transaction has been accepted or
// rejected; rejections are silent beyond the per-item trace log and the
// dropped-transaction counter, as the signature never appears in the
// Bank's seen set.
type BankingStage struct {
	bank    *bank.Bank
	in      <-chan []Verified
	out     chan<- []types.Transaction
	exit    *pipeline.ExitSignal
	packets *recycler.Pool
}

// NewBankingStage constructs a BankingStage applying transactions to b.
func NewBankingStage(b *bank.Bank, in <-chan []Verified, out chan<- []types.Transaction, exit *pipeline.ExitSignal, packets *recycler.Pool) *BankingStage {
	return &BankingStage{bank: b, in: in, out: out, exit: exit, packets: packets}
}

// Run applies batches until the inbound channel closes or exit fires.
func (s *BankingStage) Run() {
	log.Info("tpu: banking stage starting")
	defer close(s.out)

	for {
		batch, ok := pipeline.Recv(s.in, s.exit)
		if !ok {
			return
		}
		start := time.Now()
		accepted := s.applyBatch(batch)
		metricsreg.TimeBanking(start)
		if len(accepted) == 0 {
			continue
		}
		if !pipeline.TrySend[[]types.Transaction](s.out, accepted, s.exit) {
			return
		}
	}
}

func (s *BankingStage) applyBatch(batch []Verified) []types.Transaction {
	accepted := make([]types.Transaction, 0, len(batch))
	for _, v := range batch {
		if v.Verified {
			if err := s.bank.ProcessTransaction(v.Tx); err != nil {
				s.logRejection(v.Tx, err)
				metricsreg.TransactionsDropped.Inc(1)
			} else {
				accepted = append(accepted, v.Tx)
			}
		} else {
			metricsreg.TransactionsDropped.Inc(1)
		}
		s.packets.Put(v.Buf)
	}
	return accepted
}

func (s *BankingStage) logRejection(tx types.Transaction, err error) {
	switch {
	case errors.Is(err, bank.ErrDuplicateSignature):
		log.Trace("tpu: banking dropped duplicate signature", "payer", tx.Payer)
	case errors.Is(err, bank.ErrLastIdNotFound):
		log.Trace("tpu: banking dropped stale last_id", "payer", tx.Payer)
	case errors.Is(err, bank.ErrInsufficientFunds):
		log.Trace("tpu: banking dropped insufficient funds", "payer", tx.Payer)
	default:
		log.Debug("tpu: banking rejected transaction", "payer", tx.Payer, "err", err)
	}
}
