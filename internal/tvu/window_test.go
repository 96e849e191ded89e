package tvu

import (
	"testing"

	"github.com/solnet-labs/fullnode/internal/types"
)

func blobAt(index uint64) types.Blob {
	return types.Blob{Index: index, Size: 0, Payload: []byte{}}
}

func TestWindowDeliversInOrderAfterOutOfOrderInsert(t *testing.T) {
	w := NewWindow(8)
	w.Insert(blobAt(2))
	w.Insert(blobAt(0))
	w.Insert(blobAt(1))

	got := w.Drain()
	if len(got) != 3 {
		t.Fatalf("expected 3 blobs drained, got %d", len(got))
	}
	for i, b := range got {
		if b.Index != uint64(i) {
			t.Fatalf("expected index %d at position %d, got %d", i, i, b.Index)
		}
	}
	if w.Consumed() != 3 {
		t.Fatalf("consumed cursor should be 3, got %d", w.Consumed())
	}
}

func TestWindowHoldsBackOnGap(t *testing.T) {
	w := NewWindow(8)
	w.Insert(blobAt(0))
	w.Insert(blobAt(2)) // index 1 missing

	got := w.Drain()
	if len(got) != 1 || got[0].Index != 0 {
		t.Fatalf("expected only index 0 drained while index 1 is missing, got %+v", got)
	}
	if w.Consumed() != 1 {
		t.Fatalf("consumed should stay at 1, got %d", w.Consumed())
	}

	w.Insert(blobAt(1))
	got = w.Drain()
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 2 {
		t.Fatalf("expected indices 1,2 drained once the gap fills, got %+v", got)
	}
}

func TestWindowDropsStaleBlob(t *testing.T) {
	w := NewWindow(8)
	w.Insert(blobAt(0))
	w.Drain()
	if w.Insert(blobAt(0)) {
		t.Fatalf("re-inserting an already-consumed index should be rejected")
	}
}

func TestWindowOverrunDropsNewest(t *testing.T) {
	w := NewWindow(4)
	if w.Insert(blobAt(10)) {
		t.Fatalf("insert far beyond window capacity should be rejected")
	}
}

func TestWindowGapDetection(t *testing.T) {
	w := NewWindow(64)
	w.Insert(blobAt(0))
	for i := uint64(2); i <= 10; i++ {
		w.Insert(blobAt(i))
	}
	needsRepair, missing := w.Gap(3)
	if !needsRepair {
		t.Fatalf("expected gap to be flagged")
	}
	if len(missing) != 1 || missing[0] != 1 {
		t.Fatalf("expected index 1 reported missing, got %v", missing)
	}
}
