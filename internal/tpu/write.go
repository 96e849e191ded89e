package tpu

import (
	"net"

	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/crdt"
	"github.com/solnet-labs/fullnode/internal/ledger"
	"github.com/solnet-labs/fullnode/internal/metricsreg"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/recycler"
	"github.com/solnet-labs/fullnode/internal/types"
)

// WriteStage appends each entry to the local ledger, frames it into one
// blob (entries larger than one blob buffer are not split; see
// types.EntryBlob), and broadcasts the blob to every peer in the membership
// view. A send failure on one peer is counted and otherwise ignored:
// broadcast fan-out is best-effort, never blocking on a single slow peer.
type WriteStage struct {
	self    types.Pubkey
	ledger  *ledger.Writer
	repair  *ledger.RepairCache
	members crdt.View
	conn    *net.UDPConn
	in      <-chan types.Entry
	exit    *pipeline.ExitSignal
	blobs   *recycler.Pool

	nextIndex uint64
}

// NewWriteStage constructs a WriteStage broadcasting from conn as self.
func NewWriteStage(self types.Pubkey, led *ledger.Writer, repair *ledger.RepairCache, members crdt.View, conn *net.UDPConn, in <-chan types.Entry, exit *pipeline.ExitSignal, blobs *recycler.Pool) *WriteStage {
	return &WriteStage{self: self, ledger: led, repair: repair, members: members, conn: conn, in: in, exit: exit, blobs: blobs}
}

// Run persists and broadcasts entries until the inbound channel closes or
// exit fires.
func (s *WriteStage) Run() {
	log.Info("tpu: write stage starting")
	for {
		entry, ok := pipeline.Recv(s.in, s.exit)
		if !ok {
			return
		}
		if err := s.ledger.Append(entry); err != nil {
			log.Error("tpu: write stage failed to persist entry, continuing", "err", err)
		}
		metricsreg.EntriesEmitted.Inc(1)
		s.broadcast(entry)
	}
}

func (s *WriteStage) broadcast(entry types.Entry) {
	buf := s.blobs.Allocate()
	defer s.blobs.Put(buf)

	blob := types.EntryBlob(entry, s.self, s.nextIndex, buf)
	s.nextIndex++

	datagram := make([]byte, types.BlobHeaderSize+int(blob.Size)+1)
	n := blob.Marshal(datagram)
	s.repair.Put(s.self, blob.Index, datagram[:n])

	peers := s.members.Peers(s.self)
	for _, peer := range peers {
		if _, err := s.conn.WriteToUDP(datagram[:n], peer.Addr); err != nil {
			metricsreg.BroadcastErrors.Inc(1)
			log.Trace("tpu: write stage broadcast to peer failed", "peer", peer.ID, "err", err)
			continue
		}
		metricsreg.BlobsBroadcast.Inc(1)
	}
}
