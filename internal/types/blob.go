package types

import (
	"encoding/binary"
	"net"
)

// BlobBufferSize is the fixed capacity of a recycled blob payload buffer.
// It comfortably holds one marshaled Entry at typical batch sizes. Entries
// are never split across multiple blobs: EntryBlob copies only as many
// encoded bytes as fit in the buffer.
const BlobBufferSize = 64 * 1024

// BlobHeaderSize is the fixed, un-prefixed header: index(8) + sender_id(32)
// + size(8).
const BlobHeaderSize = 8 + PubkeySize + 8

// BlobMeta carries out-of-band bookkeeping that rides alongside a blob but
// is not part of its payload: whether it answers a repair request.
type BlobMeta struct {
	IsRepair bool
}

// Blob is a framed network datagram carrying one serialized Entry, or a
// repair response payload. Index is unique per Sender within a broadcast
// epoch; ReplicateStage relies on strictly-ordered delivery by Index.
type Blob struct {
	Index    uint64
	Sender   Pubkey
	Size     uint64
	Payload  []byte // len(Payload) == cap, Size bytes are meaningful
	Dest     *net.UDPAddr
	Meta     BlobMeta
}

// Marshal writes the blob's wire framing plus payload into dst, which must
// have capacity for BlobHeaderSize+Size+1 bytes, and returns the number of
// bytes written.
func (b *Blob) Marshal(dst []byte) int {
	off := 0
	binary.LittleEndian.PutUint64(dst[off:off+8], b.Index)
	off += 8
	off += copy(dst[off:], b.Sender[:])
	binary.LittleEndian.PutUint64(dst[off:off+8], b.Size)
	off += 8
	off += copy(dst[off:off+int(b.Size)], b.Payload[:b.Size])
	if b.Meta.IsRepair {
		dst[off] = 1
	} else {
		dst[off] = 0
	}
	off++
	return off
}

// UnmarshalBlob decodes a datagram into buf, a recycled buffer that becomes
// the blob's Payload. buf must be at least BlobBufferSize long.
func UnmarshalBlob(datagram []byte, buf []byte) (Blob, error) {
	var b Blob
	if len(datagram) < BlobHeaderSize+1 {
		return b, ErrShortPacket
	}
	off := 0
	b.Index = binary.LittleEndian.Uint64(datagram[off : off+8])
	off += 8
	copy(b.Sender[:], datagram[off:off+PubkeySize])
	off += PubkeySize
	b.Size = binary.LittleEndian.Uint64(datagram[off : off+8])
	off += 8
	if off+int(b.Size)+1 > len(datagram) {
		return b, ErrShortPacket
	}
	if int(b.Size) > len(buf) {
		return b, ErrShortPacket
	}
	copy(buf, datagram[off:off+int(b.Size)])
	off += int(b.Size)
	b.Meta.IsRepair = datagram[off] != 0
	b.Payload = buf
	return b, nil
}

// EntryBlob frames a single Entry into a recycled buffer as one Blob. The
// caller supplies buf (from a recycler.Pool) and the next broadcast Index.
// An encoded entry longer than buf is cut off at len(buf) bytes.
func EntryBlob(e Entry, sender Pubkey, index uint64, buf []byte) Blob {
	encoded := e.Marshal()
	n := copy(buf, encoded)
	return Blob{
		Index:   index,
		Sender:  sender,
		Size:    uint64(n),
		Payload: buf,
	}
}

// Entry decodes the blob's payload back into an Entry.
func (b Blob) Entry() (Entry, error) {
	return UnmarshalEntry(b.Payload[:b.Size])
}
