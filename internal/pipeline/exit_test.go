package pipeline

import (
	"testing"
	"time"
)

func TestExitSignalCloseIsIdempotent(t *testing.T) {
	e := NewExitSignal()
	if e.IsSet() {
		t.Fatalf("fresh signal should not be set")
	}
	e.Close()
	e.Close() // must not panic
	if !e.IsSet() {
		t.Fatalf("signal should be set after Close")
	}
}

func TestTrySendUnblocksOnExit(t *testing.T) {
	ch := NewBounded[int](0) // unbuffered, nobody receiving
	e := NewExitSignal()
	done := make(chan bool)
	go func() { done <- TrySend(ch, 1, e) }()

	time.Sleep(10 * time.Millisecond)
	e.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected TrySend to report failure after exit")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("TrySend did not unblock after exit")
	}
}

func TestRecvReturnsValueWhenSent(t *testing.T) {
	ch := NewBounded[int](1)
	e := NewExitSignal()
	ch <- 42
	v, ok := Recv[int](ch, e)
	if !ok || v != 42 {
		t.Fatalf("want (42, true), got (%d, %v)", v, ok)
	}
}

func TestRecvFalseOnClosedChannel(t *testing.T) {
	ch := NewBounded[int](1)
	e := NewExitSignal()
	close(ch)
	_, ok := Recv[int](ch, e)
	if ok {
		t.Fatalf("expected ok=false on closed channel")
	}
}
