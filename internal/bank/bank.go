// Package bank implements the shared account-state machine mutated by
// BankingStage on the leader and by ReplicateStage on a validator — never
// both in the same process. It enforces double-spend prevention via a
// seen-signature set and bounds that set's growth with a sliding window of
// recently registered entry ids.
package bank

import (
	"errors"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/types"
)

// RecentIDWindow bounds how many entry ids remain valid freshness anchors
// for incoming transactions; older ids — and the ability to replay a
// transaction naming them — roll off together.
const RecentIDWindow = 32

var (
	ErrSignatureInvalid   = errors.New("bank: signature invalid")
	ErrLastIdNotFound     = errors.New("bank: last_id not found in recent window")
	ErrInsufficientFunds  = errors.New("bank: insufficient funds")
	ErrDuplicateSignature = errors.New("bank: duplicate signature")
)

// Bank holds account balances, the signature replay-guard, and the
// sliding window of recently registered entry ids that anchors transaction
// freshness. The zero value is not usable; construct with New.
type Bank struct {
	mu sync.RWMutex // guards balances and the seen-signature set

	balances map[types.Pubkey]int64
	seen     mapset.Set[types.Signature]

	// idMu is the single writer lock over the recent-id window. Lock
	// order: mu before idMu (hasRecentID takes idMu while mu is held).
	idMu       sync.Mutex
	lastID     [32]byte
	recentIDs  [][32]byte // oldest first, capped at RecentIDWindow

	txCount      uint64
	lastProgress time.Time
}

// New creates a Bank with the mint account seeded at emission tokens. All
// other accounts start at zero and are created on first credit. LastID
// starts at the zero hash, which is also the first entry of the recent-id
// window, so transactions may anchor to a fresh Bank's LastID.
func New(mint types.Pubkey, emission int64) *Bank {
	b := &Bank{
		balances:     map[types.Pubkey]int64{mint: emission},
		seen:         mapset.NewSet[types.Signature](),
		recentIDs:    [][32]byte{{}},
		lastProgress: time.Now(),
	}
	return b
}

// ProcessTransaction atomically verifies and applies tx. The signature
// check reads no shared state and runs first; the remaining three checks
// (recent last_id, duplicate signature, payer balance) and the resulting
// mutation form a single critical section: a transaction either observes
// every prior transaction's effects or none of them.
func (b *Bank) ProcessTransaction(tx types.Transaction) error {
	if !tx.VerifySignature() {
		return ErrSignatureInvalid
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasRecentID(tx.LastID) {
		return ErrLastIdNotFound
	}
	if b.seen.Contains(tx.Signature) {
		return ErrDuplicateSignature
	}
	if b.balances[tx.Payer] < tx.Amount {
		return ErrInsufficientFunds
	}

	b.balances[tx.Payer] -= tx.Amount
	b.balances[tx.Recipient] += tx.Amount
	b.seen.Add(tx.Signature)
	b.txCount++
	b.lastProgress = time.Now()

	log.Trace("bank: transaction applied", "payer", tx.Payer, "recipient", tx.Recipient, "amount", tx.Amount)
	return nil
}

// hasRecentID reports whether id is within the sliding acceptance window.
// Caller must hold b.mu.
func (b *Bank) hasRecentID(id [32]byte) bool {
	b.idMu.Lock()
	defer b.idMu.Unlock()
	for _, cur := range b.recentIDs {
		if cur == id {
			return true
		}
	}
	return false
}

// RegisterEntryID appends hash to the recent-id window, evicting the
// oldest entry once the window exceeds RecentIDWindow, and advances
// LastID. Called by RecordStage for every emitted entry, and by
// ReplicateStage for every replayed one.
func (b *Bank) RegisterEntryID(hash [32]byte) {
	b.mu.Lock()
	b.lastProgress = time.Now()
	b.mu.Unlock()

	b.idMu.Lock()
	b.recentIDs = append(b.recentIDs, hash)
	if len(b.recentIDs) > RecentIDWindow {
		b.recentIDs = b.recentIDs[len(b.recentIDs)-RecentIDWindow:]
	}
	b.lastID = hash
	b.idMu.Unlock()
}

// HasSignature reports whether sig has already been applied.
func (b *Bank) HasSignature(sig types.Signature) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seen.Contains(sig)
}

// GetBalance returns key's balance, or 0 for an unknown account.
func (b *Bank) GetBalance(key types.Pubkey) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[key]
}

// LastID returns the hash of the most recently registered entry.
func (b *Bank) LastID() [32]byte {
	b.idMu.Lock()
	defer b.idMu.Unlock()
	return b.lastID
}

// TransactionCount returns the number of transactions applied so far.
func (b *Bank) TransactionCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.txCount
}

// Finality returns the duration since the Bank last made progress —
// either a transaction applied or an entry id registered.
func (b *Bank) Finality() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Since(b.lastProgress)
}

// TotalBalance sums every account's balance, for the conservation-law test.
func (b *Bank) TotalBalance() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, v := range b.balances {
		total += v
	}
	return total
}
