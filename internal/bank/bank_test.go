package bank

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solnet-labs/fullnode/internal/types"
)

func mustKeypair(t *testing.T) types.Keypair {
	t.Helper()
	kp, err := types.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func nextID(seed byte) [32]byte {
	return sha256.Sum256([]byte{seed})
}

func TestProcessTransactionTransfersBalance(t *testing.T) {
	alice := mustKeypair(t)
	bob := mustKeypair(t)

	b := New(alice.Pubkey(), 10_000)
	id := nextID(1)
	b.RegisterEntryID(id)

	tx := types.NewTransaction(alice, bob.Pubkey(), 20, id)
	require.NoError(t, b.ProcessTransaction(tx))

	assert.Equal(t, int64(20), b.GetBalance(bob.Pubkey()))
	assert.Equal(t, int64(9_980), b.GetBalance(alice.Pubkey()))
	assert.EqualValues(t, 1, b.TransactionCount())
	assert.True(t, b.HasSignature(tx.Signature))
}

func TestConservationOfBalances(t *testing.T) {
	alice := mustKeypair(t)
	bob := mustKeypair(t)
	carol := mustKeypair(t)

	const emission = 10_000
	b := New(alice.Pubkey(), emission)
	id := nextID(2)
	b.RegisterEntryID(id)

	require.NoError(t, b.ProcessTransaction(types.NewTransaction(alice, bob.Pubkey(), 500, id)))
	require.NoError(t, b.ProcessTransaction(types.NewTransaction(bob, carol.Pubkey(), 100, id)))

	assert.Equal(t, int64(emission), b.TotalBalance())
}

func TestDuplicateSignatureRejected(t *testing.T) {
	alice := mustKeypair(t)
	bob := mustKeypair(t)

	b := New(alice.Pubkey(), 10_000)
	id := nextID(3)
	b.RegisterEntryID(id)

	tx := types.NewTransaction(alice, bob.Pubkey(), 20, id)
	require.NoError(t, b.ProcessTransaction(tx))
	err := b.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrDuplicateSignature)
}

func TestLastIdNotFoundForStaleAnchor(t *testing.T) {
	alice := mustKeypair(t)
	bob := mustKeypair(t)

	b := New(alice.Pubkey(), 10_000)
	staleID := nextID(4)

	tx := types.NewTransaction(alice, bob.Pubkey(), 20, staleID)
	err := b.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrLastIdNotFound)
}

func TestInsufficientFundsRejected(t *testing.T) {
	alice := mustKeypair(t)
	bob := mustKeypair(t)

	b := New(alice.Pubkey(), 10)
	id := nextID(5)
	b.RegisterEntryID(id)

	tx := types.NewTransaction(alice, bob.Pubkey(), 20, id)
	err := b.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, b.HasSignature(tx.Signature))
}

func TestReplaySafetyAfterWindowExpiry(t *testing.T) {
	alice := mustKeypair(t)
	bob := mustKeypair(t)

	b := New(alice.Pubkey(), 10_000)
	id := nextID(6)
	b.RegisterEntryID(id)

	tx := types.NewTransaction(alice, bob.Pubkey(), 20, id)
	require.NoError(t, b.ProcessTransaction(tx))

	// Resubmitting immediately: the id is still fresh, so the signature
	// dedupe fires first.
	assert.ErrorIs(t, b.ProcessTransaction(tx), ErrDuplicateSignature)

	// Roll the window past id's lifetime.
	for i := byte(7); i < 7+RecentIDWindow; i++ {
		b.RegisterEntryID(nextID(i))
	}

	assert.ErrorIs(t, b.ProcessTransaction(tx), ErrLastIdNotFound)
}

func TestSignatureInvalidRejectsTamperedTransaction(t *testing.T) {
	alice := mustKeypair(t)
	bob := mustKeypair(t)
	mallory := mustKeypair(t)

	b := New(alice.Pubkey(), 10_000)
	id := nextID(8)
	b.RegisterEntryID(id)

	tx := types.NewTransaction(alice, bob.Pubkey(), 20, id)
	tx.Signature = mallory.Sign([]byte("not the real payload"))

	err := b.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}
