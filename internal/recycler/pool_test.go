package recycler

import "testing"

func TestAllocateRecyclesReturnedBuffers(t *testing.T) {
	p := New(128)
	buf := p.Allocate()
	if len(buf) != 128 {
		t.Fatalf("want len 128, got %d", len(buf))
	}
	p.Put(buf)
	if got := p.Len(); got != 1 {
		t.Fatalf("want 1 idle buffer, got %d", got)
	}
	again := p.Allocate()
	if &again[0] != &buf[0] {
		t.Fatalf("expected Allocate to hand back the recycled buffer")
	}
	if p.Len() != 0 {
		t.Fatalf("want 0 idle buffers after Allocate, got %d", p.Len())
	}
}

func TestPutDropsWrongSizedBuffer(t *testing.T) {
	p := New(64)
	p.Put(make([]byte, 32))
	if got := p.Len(); got != 0 {
		t.Fatalf("want wrong-sized buffer dropped, pool has %d", got)
	}
}

func TestAllocateGrowsWhenPoolEmpty(t *testing.T) {
	p := New(16)
	a := p.Allocate()
	b := p.Allocate()
	if &a[0] == &b[0] {
		t.Fatalf("expected distinct backing arrays when pool is empty")
	}
}
