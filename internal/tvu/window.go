package tvu

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/types"
)

// Window is a sparse, index-ordered reorder buffer bounded to at most
// WindowSize blobs. Blobs arrive out of order over UDP; Window accumulates
// them until the next expected index (Consumed) is present, then hands
// runs of contiguous blobs off in order.
type Window struct {
	size     uint64
	slots    map[uint64]types.Blob
	consumed uint64 // next index to deliver
	received uint64 // highest index ever inserted, 0 until first insert
	hasRecv  bool
}

// NewWindow creates an empty Window with the given capacity.
func NewWindow(size uint64) *Window {
	return &Window{size: size, slots: make(map[uint64]types.Blob)}
}

// Insert records a newly seen blob at its index. Blobs before the consumed
// cursor are stale and dropped; blobs at or beyond consumed+size overrun
// the window and are dropped newest-first with a log line, per the
// overrun policy.
func (w *Window) Insert(b types.Blob) (accepted bool) {
	if b.Index < w.consumed {
		log.Trace("tvu: window dropped stale blob", "index", b.Index, "consumed", w.consumed)
		return false
	}
	if b.Index >= w.consumed+w.size {
		log.Debug("tvu: window overrun, dropping newest blob", "index", b.Index, "consumed", w.consumed, "size", w.size)
		return false
	}
	if _, dup := w.slots[b.Index]; dup {
		return false
	}
	// Window outlives the caller's recycled buffer: own a copy of the
	// payload so the buffer can be returned to the pool the instant
	// Insert returns, regardless of how long the blob sits here before
	// Drain hands it downstream.
	owned := b
	owned.Payload = append([]byte(nil), b.Payload[:b.Size]...)
	w.slots[b.Index] = owned
	if !w.hasRecv || b.Index > w.received {
		w.received = b.Index
		w.hasRecv = true
	}
	return true
}

// Drain returns every contiguous run of blobs starting at the consumed
// cursor, advancing it past the run, in index order with no gaps.
func (w *Window) Drain() []types.Blob {
	var out []types.Blob
	for {
		b, ok := w.slots[w.consumed]
		if !ok {
			return out
		}
		out = append(out, b)
		delete(w.slots, w.consumed)
		w.consumed++
	}
}

// Consumed returns the next index Window expects to deliver.
func (w *Window) Consumed() uint64 { return w.consumed }

// Received returns the highest index ever inserted.
func (w *Window) Received() uint64 { return w.received }

// Gap reports whether received has outrun consumed by more than threshold,
// meaning repair requests should be considered, and the sorted list of
// missing indices in [consumed, received].
func (w *Window) Gap(threshold uint64) (needsRepair bool, missing []uint64) {
	if !w.hasRecv || w.received < w.consumed {
		return false, nil
	}
	if w.received-w.consumed <= threshold {
		return false, nil
	}
	for i := w.consumed; i <= w.received; i++ {
		if _, ok := w.slots[i]; !ok {
			missing = append(missing, i)
		}
	}
	return len(missing) > 0, missing
}
