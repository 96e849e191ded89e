package tvu

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/crdt"
	"github.com/solnet-labs/fullnode/internal/metricsreg"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/recycler"
	"github.com/solnet-labs/fullnode/internal/types"
)

// RepairThreshold is how far Received may outrun Consumed with gaps
// present before RetransmitStage starts emitting repair requests.
const RepairThreshold = 16

// dedupeKey identifies a blob for the already-seen set, independent of
// window index reuse across broadcast epochs.
type dedupeKey struct {
	sender types.Pubkey
	index  uint64
}

// RetransmitStage deduplicates incoming blobs, inserts them into a Window,
// re-broadcasts each newly seen blob to the wider peer set, hands
// contiguous in-order runs downstream to ReplicateStage, and issues repair
// requests for persistent gaps.
type RetransmitStage struct {
	self    types.Pubkey
	window  *Window
	members crdt.View
	conn    *net.UDPConn
	in      <-chan []RawBlob
	out     chan<- types.Blob
	exit    *pipeline.ExitSignal
	blobs   *recycler.Pool

	seen      *Dedupe
	sentHint  *fastcache.Cache
	lastSweep time.Time
}

// NewRetransmitStage constructs a RetransmitStage with a Window of the
// given capacity.
func NewRetransmitStage(self types.Pubkey, windowSize uint64, members crdt.View, conn *net.UDPConn, in <-chan []RawBlob, out chan<- types.Blob, exit *pipeline.ExitSignal, blobs *recycler.Pool) *RetransmitStage {
	return &RetransmitStage{
		self:      self,
		window:    NewWindow(windowSize),
		members:   members,
		conn:      conn,
		in:        in,
		out:       out,
		exit:      exit,
		blobs:     blobs,
		seen:      NewDedupe(),
		sentHint:  fastcache.New(8 << 20),
		lastSweep: time.Now(),
	}
}

// Run processes blob batches until the inbound channel closes or exit
// fires, then closes out.
func (s *RetransmitStage) Run() {
	log.Info("tvu: retransmit stage starting")
	defer close(s.out)

	for {
		batch, ok := pipeline.Recv(s.in, s.exit)
		if !ok {
			return
		}
		for _, raw := range batch {
			s.handle(raw)
		}
		if time.Since(s.lastSweep) > dedupeWindow/4 {
			s.seen.Sweep()
			s.lastSweep = time.Now()
		}
		s.checkGap()
		if !s.drainWindow() {
			return
		}
	}
}

func (s *RetransmitStage) handle(raw RawBlob) {
	// Safe to free unconditionally: retransmit() only reads raw.Blob's
	// payload synchronously before this defer runs, and Window.Insert
	// copies the payload into its own storage rather than holding onto
	// raw.Buf, so nothing downstream keeps a reference past this call.
	defer s.blobs.Put(raw.Buf)

	key := dedupeKey{sender: raw.Blob.Sender, index: raw.Blob.Index}
	if s.seen.SeenOrAdd(key) {
		return
	}

	if !s.window.Insert(raw.Blob) {
		return
	}
	s.retransmit(raw.Blob)
}

func (s *RetransmitStage) retransmit(b types.Blob) {
	hintKey := binary.LittleEndian.AppendUint64(append([]byte{}, b.Sender[:]...), b.Index)
	if s.sentHint.Has(hintKey) {
		return
	}
	s.sentHint.Set(hintKey, []byte{1})

	datagram := make([]byte, types.BlobHeaderSize+int(b.Size)+1)
	n := b.Marshal(datagram)

	for _, peer := range s.members.Peers(s.self) {
		if peer.ID == b.Sender {
			continue
		}
		if _, err := s.conn.WriteToUDP(datagram[:n], peer.Addr); err != nil {
			log.Trace("tvu: retransmit to peer failed", "peer", peer.ID, "err", err)
			continue
		}
		metricsreg.BlobsRetransmitted.Inc(1)
	}
}

func (s *RetransmitStage) drainWindow() bool {
	ready := s.window.Drain()
	metricsreg.WindowGaps.Update(int64(s.window.Received() - s.window.Consumed()))
	for _, b := range ready {
		if !pipeline.TrySend[types.Blob](s.out, b, s.exit) {
			return false
		}
	}
	return true
}

func (s *RetransmitStage) checkGap() {
	needsRepair, missing := s.window.Gap(RepairThreshold)
	if !needsRepair {
		return
	}
	for _, idx := range missing {
		peer, ok := s.members.NextRepairPeer(s.self, idx)
		if !ok {
			continue
		}
		metricsreg.RepairRequests.Inc(1)
		log.Debug("tvu: requesting repair", "index", idx, "peer", peer.ID)
		// The repair request wire format is an external collaborator
		// concern (the gossip/membership overlay's request-response
		// protocol); only the decision of what to ask whom is ours.
	}
}
