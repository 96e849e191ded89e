package types

import (
	"crypto/sha256"
	"encoding/binary"
)

// Entry is one link in the Proof-of-History hash chain: a claim that
// NumHashes sequential hashes elapsed since PrevHash, optionally carrying a
// batch of transactions accepted during that interval. A tick entry carries
// no transactions and exists purely to advance virtual time.
type Entry struct {
	PrevHash     [32]byte
	NumHashes    uint64
	Transactions []Transaction
	IsTick       bool
}

// NewTickEntry builds a transactionless entry advancing the chain by
// numHashes steps from prevHash.
func NewTickEntry(prevHash [32]byte, numHashes uint64) Entry {
	return Entry{PrevHash: prevHash, NumHashes: numHashes, IsTick: true}
}

// NewTransactionEntry builds an entry carrying accepted transactions.
func NewTransactionEntry(prevHash [32]byte, numHashes uint64, txs []Transaction) Entry {
	return Entry{PrevHash: prevHash, NumHashes: numHashes, Transactions: txs}
}

// fingerprint hashes the entry's transactions in order; an empty batch
// fingerprints to the zero hash, matching a pure-tick entry.
func (e Entry) fingerprint() [32]byte {
	if len(e.Transactions) == 0 {
		return [32]byte{}
	}
	h := sha256.New()
	for _, tx := range e.Transactions {
		h.Write(tx.Marshal())
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ID computes the entry's identifying hash: H(prev_hash || num_hashes ||
// transactions_fingerprint). Adjacent entries link by this value — entry
// i+1's PrevHash must equal entry i's ID.
func (e Entry) ID() [32]byte {
	h := sha256.New()
	h.Write(e.PrevHash[:])
	var nh [8]byte
	binary.LittleEndian.PutUint64(nh[:], e.NumHashes)
	h.Write(nh[:])
	fp := e.fingerprint()
	h.Write(fp[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// LinksFrom reports whether e is a valid successor of prev in the chain.
func (e Entry) LinksFrom(prev Entry) bool {
	return e.PrevHash == prev.ID()
}

// Marshal encodes an entry as: prev_hash(32) num_hashes(8) is_tick(1)
// tx_count(4) followed by each transaction's fixed-size encoding.
func (e Entry) Marshal() []byte {
	buf := make([]byte, 32+8+1+4+len(e.Transactions)*TransactionWireSize)
	off := 0
	off += copy(buf[off:], e.PrevHash[:])
	binary.LittleEndian.PutUint64(buf[off:off+8], e.NumHashes)
	off += 8
	if e.IsTick {
		buf[off] = 1
	}
	off++
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(e.Transactions)))
	off += 4
	for _, tx := range e.Transactions {
		off += copy(buf[off:], tx.Marshal())
	}
	return buf
}

// UnmarshalEntry decodes an Entry produced by Marshal.
func UnmarshalEntry(buf []byte) (Entry, error) {
	var e Entry
	if len(buf) < 32+8+1+4 {
		return e, ErrShortPacket
	}
	off := 0
	copy(e.PrevHash[:], buf[off:off+32])
	off += 32
	e.NumHashes = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	e.IsTick = buf[off] != 0
	off++
	count := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	e.Transactions = make([]Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+TransactionWireSize > len(buf) {
			return e, ErrShortPacket
		}
		tx, err := UnmarshalTransaction(buf[off : off+TransactionWireSize])
		if err != nil {
			return e, err
		}
		e.Transactions = append(e.Transactions, tx)
		off += TransactionWireSize
	}
	return e, nil
}
