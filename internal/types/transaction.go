package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
)

// TransactionWireSize is the fixed on-wire length of an encoded Transaction:
// payer(32) + recipient(32) + amount(8) + last_id(32) + signature(64).
const TransactionWireSize = PubkeySize + PubkeySize + 8 + PubkeySize + SignatureSize

// ErrShortPacket is returned when a packet is too small to hold a Transaction.
var ErrShortPacket = errors.New("packet shorter than a transaction")

// Transaction moves a signed integer amount of tokens from Payer to
// Recipient, anchored to a recent ledger hash (LastID) so it cannot be
// replayed once that hash rolls out of the Bank's recent-id window.
type Transaction struct {
	Payer     Pubkey
	Recipient Pubkey
	Amount    int64
	LastID    [32]byte
	Signature Signature
}

// NewTransaction builds and signs a transfer from the given keypair.
func NewTransaction(from Keypair, to Pubkey, amount int64, lastID [32]byte) Transaction {
	tx := Transaction{
		Payer:     from.Pubkey(),
		Recipient: to,
		Amount:    amount,
		LastID:    lastID,
	}
	tx.Signature = from.Sign(tx.signedFields())
	return tx
}

// signedFields returns the exact byte sequence the signature covers: every
// field but the signature itself, in wire order.
func (t Transaction) signedFields() []byte {
	buf := make([]byte, PubkeySize+PubkeySize+8+PubkeySize)
	off := 0
	off += copy(buf[off:], t.Payer[:])
	off += copy(buf[off:], t.Recipient[:])
	putInt64(buf[off:off+8], t.Amount)
	off += 8
	copy(buf[off:], t.LastID[:])
	return buf
}

// VerifySignature reports whether Signature verifies against Payer for the
// transaction's signed fields.
func (t Transaction) VerifySignature() bool {
	return ed25519.Verify(t.Payer[:], t.signedFields(), t.Signature[:])
}

// Marshal encodes the transaction in fixed field order, little-endian.
func (t Transaction) Marshal() []byte {
	buf := make([]byte, TransactionWireSize)
	off := 0
	off += copy(buf[off:], t.Payer[:])
	off += copy(buf[off:], t.Recipient[:])
	putInt64(buf[off:off+8], t.Amount)
	off += 8
	off += copy(buf[off:], t.LastID[:])
	copy(buf[off:], t.Signature[:])
	return buf
}

// PacketHeaderSize is the length prefix FetchStage's UDP datagrams carry
// ahead of the serialized transaction.
const PacketHeaderSize = 4

// PacketBufferSize is the fixed recycled-buffer size a single UDP packet
// is read into: a length prefix plus one transaction, with slack.
const PacketBufferSize = 256

// MarshalPacket frames tx as a length-prefixed datagram for UDP transport.
func MarshalPacket(tx Transaction) []byte {
	body := tx.Marshal()
	buf := make([]byte, PacketHeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[:PacketHeaderSize], uint32(len(body)))
	copy(buf[PacketHeaderSize:], body)
	return buf
}

// ParsePacket reads a length-prefixed transaction out of a received
// datagram.
func ParsePacket(datagram []byte) (Transaction, error) {
	if len(datagram) < PacketHeaderSize {
		return Transaction{}, ErrShortPacket
	}
	n := binary.LittleEndian.Uint32(datagram[:PacketHeaderSize])
	body := datagram[PacketHeaderSize:]
	if uint32(len(body)) < n {
		return Transaction{}, ErrShortPacket
	}
	return UnmarshalTransaction(body[:n])
}

// UnmarshalTransaction decodes a Transaction from its wire representation.
func UnmarshalTransaction(buf []byte) (Transaction, error) {
	var t Transaction
	if len(buf) < TransactionWireSize {
		return t, ErrShortPacket
	}
	off := 0
	copy(t.Payer[:], buf[off:off+PubkeySize])
	off += PubkeySize
	copy(t.Recipient[:], buf[off:off+PubkeySize])
	off += PubkeySize
	t.Amount = getInt64(buf[off : off+8])
	off += 8
	copy(t.LastID[:], buf[off:off+PubkeySize])
	off += PubkeySize
	copy(t.Signature[:], buf[off:off+SignatureSize])
	return t, nil
}
