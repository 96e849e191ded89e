// Package metricsreg registers the counters, gauges and timers every
// pipeline stage reports through, all backed by the teacher's own metrics
// registry so they show up next to any other go-ethereum-family metric.
package metricsreg

import (
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

var (
	PacketsFetched      = metrics.NewRegisteredCounter("fullnode/fetch/packets", nil)
	TransactionsVerified = metrics.NewRegisteredCounter("fullnode/sigverify/verified", nil)
	TransactionsRejected = metrics.NewRegisteredCounter("fullnode/sigverify/rejected", nil)
	TransactionsAccepted  = metrics.NewRegisteredCounter("fullnode/banking/accepted", nil)
	TransactionsDropped   = metrics.NewRegisteredCounter("fullnode/banking/dropped", nil)
	EntriesEmitted        = metrics.NewRegisteredCounter("fullnode/record/entries", nil)
	BlobsBroadcast        = metrics.NewRegisteredCounter("fullnode/write/blobs", nil)
	BroadcastErrors       = metrics.NewRegisteredCounter("fullnode/write/broadcast_errors", nil)

	BlobsFetched       = metrics.NewRegisteredCounter("fullnode/blobfetch/blobs", nil)
	BlobsRetransmitted = metrics.NewRegisteredCounter("fullnode/retransmit/sent", nil)
	WindowGaps         = metrics.NewRegisteredGauge("fullnode/window/gaps", nil)
	RepairRequests     = metrics.NewRegisteredCounter("fullnode/retransmit/repairs_requested", nil)
	EntriesReplayed    = metrics.NewRegisteredCounter("fullnode/replicate/entries", nil)

	SigVerifyTimer = metrics.NewRegisteredTimer("fullnode/sigverify/duration", nil)
	BankingTimer   = metrics.NewRegisteredTimer("fullnode/banking/duration", nil)
)

// TimeSigVerify records how long a signature-verification batch took.
func TimeSigVerify(start time.Time) {
	SigVerifyTimer.Update(time.Since(start))
}

// TimeBanking records how long a BankingStage batch took to apply.
func TimeBanking(start time.Time) {
	BankingTimer.Update(time.Since(start))
}
