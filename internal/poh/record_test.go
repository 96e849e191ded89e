package poh

import (
	"testing"
	"time"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/types"
)

func newTestBank(t *testing.T) (*bank.Bank, types.Pubkey) {
	t.Helper()
	mint, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	return bank.New(mint.Pubkey(), 10_000), mint.Pubkey()
}

func TestPacketDrivenChainLinkage(t *testing.T) {
	b, _ := newTestBank(t)
	in := pipeline.NewBounded[[]types.Transaction](4)
	out := pipeline.NewBounded[types.Entry](4)
	exit := pipeline.NewExitSignal()

	r := New(b, in, out, exit, 0)
	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	in <- nil
	in <- nil
	in <- nil

	var entries []types.Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, <-out)
	}
	exit.Close()
	close(in)
	<-done

	for i := 1; i < len(entries); i++ {
		if !entries[i].LinksFrom(entries[i-1]) {
			t.Fatalf("entry %d does not link from entry %d", i, i-1)
		}
	}
}

func TestClockDrivenEmitsTicksWhileIdle(t *testing.T) {
	b, _ := newTestBank(t)
	in := pipeline.NewBounded[[]types.Transaction](4)
	out := pipeline.NewBounded[types.Entry](64)
	exit := pipeline.NewExitSignal()

	const tick = 20 * time.Millisecond
	r := New(b, in, out, exit, tick)
	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	elapsed := 5 * tick
	time.Sleep(elapsed)
	exit.Close()
	close(in)
	<-done

	var ticks []types.Entry
	for {
		select {
		case e, ok := <-out:
			if !ok {
				goto drained
			}
			ticks = append(ticks, e)
		default:
			goto drained
		}
	}
drained:
	if len(ticks) < 2 {
		t.Fatalf("expected at least a couple of tick entries over %s, got %d", elapsed, len(ticks))
	}
	for _, e := range ticks {
		if !e.IsTick || len(e.Transactions) != 0 {
			t.Fatalf("expected pure tick entries, got %+v", e)
		}
	}
	for i := 1; i < len(ticks); i++ {
		if !ticks[i].LinksFrom(ticks[i-1]) {
			t.Fatalf("tick %d does not link from tick %d", i, i-1)
		}
	}
}
