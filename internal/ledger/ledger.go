// Package ledger implements the append-only ledger file WriteStage writes
// entries to, and a recent-blob cache WriteStage fills as it broadcasts.
package ledger

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"

	"github.com/solnet-labs/fullnode/internal/types"
)

// recordHeaderSize is the length prefix ahead of each framed entry record.
const recordHeaderSize = 4

// Writer appends entries to a local ledger file as length-prefixed
// records, with no other framing or header: replay reads records back in
// the order they were written. A process-exclusive file lock guards
// against two instances appending to the same path concurrently.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	lock *flock.Flock
}

// Open creates or appends to the ledger file at path, taking an exclusive
// advisory lock for the lifetime of the Writer.
func Open(path string) (*Writer, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ledger: acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("ledger: %s is locked by another process", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	return &Writer{file: f, lock: lock}, nil
}

// Append writes one entry as a length-prefixed record and flushes to disk.
func (w *Writer) Append(e types.Entry) error {
	body := e.Marshal()
	w.mu.Lock()
	defer w.mu.Unlock()

	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.file.Write(header[:]); err != nil {
		return fmt.Errorf("ledger: writing record header: %w", err)
	}
	if _, err := w.file.Write(body); err != nil {
		return fmt.Errorf("ledger: writing record body: %w", err)
	}
	return w.file.Sync()
}

// Close releases the file handle and the advisory lock.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.file.Close()
	if uerr := w.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// Replay reads every entry recorded at path, in write order, calling fn
// for each. A missing file replays as empty. No code in this module calls
// it.
func Replay(path string, fn func(types.Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ledger: opening %s for replay: %w", path, err)
	}
	defer f.Close()

	var header [recordHeaderSize]byte
	for {
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("ledger: reading record header: %w", err)
		}
		n := binary.LittleEndian.Uint32(header[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(f, body); err != nil {
			return fmt.Errorf("ledger: reading record body: %w", err)
		}
		entry, err := types.UnmarshalEntry(body)
		if err != nil {
			return fmt.Errorf("ledger: decoding record: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}

// RepairCache holds recently broadcast blobs keyed by sender+index.
// WriteStage puts every broadcast datagram into it; no stage in this
// module reads from it, so repair requests are not answered from it.
// Older datagrams are evicted once maxBytes is reached.
type RepairCache struct {
	c *fastcache.Cache
}

// NewRepairCache creates a cache with maxBytes capacity.
func NewRepairCache(maxBytes int) *RepairCache {
	return &RepairCache{c: fastcache.New(maxBytes)}
}

// Put stores datagram under (sender, index).
func (r *RepairCache) Put(sender types.Pubkey, index uint64, datagram []byte) {
	r.c.Set(repairKey(sender, index), datagram)
}

// Get retrieves a previously stored datagram, if still cached.
func (r *RepairCache) Get(sender types.Pubkey, index uint64) ([]byte, bool) {
	buf, ok := r.c.HasGet(nil, repairKey(sender, index))
	if !ok {
		log.Trace("ledger: repair cache miss", "sender", sender, "index", index)
	}
	return buf, ok
}

func repairKey(sender types.Pubkey, index uint64) []byte {
	key := make([]byte, types.PubkeySize+8)
	copy(key, sender[:])
	binary.LittleEndian.PutUint64(key[types.PubkeySize:], index)
	return key
}
