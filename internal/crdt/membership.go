// Package crdt stubs the membership/gossip overlay that WriteStage and
// RetransmitStage read peer addresses from. The overlay protocol itself is
// an external collaborator; this package only defines the read-side view
// the core pipeline depends on and a static implementation useful for
// single-process tests and small fixed clusters.
package crdt

import (
	"net"
	"sync"

	"github.com/solnet-labs/fullnode/internal/types"
)

// Peer is one other node's identity and broadcast address, as known to the
// membership view.
type Peer struct {
	ID   types.Pubkey
	Addr *net.UDPAddr
}

// View is the read-only membership surface the pipeline depends on. A real
// implementation is maintained by a gossip protocol external to this
// module; Static below satisfies it for fixed, manually-configured clusters.
type View interface {
	// Peers returns every known peer other than self.
	Peers(self types.Pubkey) []Peer
	// NextRepairPeer returns the peer a repair request for blob index idx
	// should go to, chosen round-robin over the known peer set.
	NextRepairPeer(self types.Pubkey, idx uint64) (Peer, bool)
}

// Static is a manually maintained membership view: the set of peers
// changes only when Set is called. Safe for concurrent reads; Set replaces
// the whole table under a lock so tests can simulate peers joining.
type Static struct {
	mu    sync.RWMutex
	peers []Peer
}

// NewStatic builds a Static view seeded with the given peers.
func NewStatic(peers ...Peer) *Static {
	return &Static{peers: append([]Peer(nil), peers...)}
}

// Set replaces the peer table.
func (s *Static) Set(peers []Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append([]Peer(nil), peers...)
}

// Peers returns every known peer other than self.
func (s *Static) Peers(self types.Pubkey) []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		if p.ID != self {
			out = append(out, p)
		}
	}
	return out
}

// NextRepairPeer picks a peer round-robin over the other-than-self set,
// keyed by idx so repeated repair requests for different indices spread
// across the cluster.
func (s *Static) NextRepairPeer(self types.Pubkey, idx uint64) (Peer, bool) {
	others := s.Peers(self)
	if len(others) == 0 {
		return Peer{}, false
	}
	return others[idx%uint64(len(others))], true
}
