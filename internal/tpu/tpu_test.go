package tpu

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/crdt"
	"github.com/solnet-labs/fullnode/internal/types"
)

func mustListenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestTpuAcceptsTransactionEndToEnd(t *testing.T) {
	mint, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	recipient, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	b := bank.New(mint.Pubkey(), 1_000_000)

	txConn := mustListenUDP(t)
	broadcastConn := mustListenUDP(t)
	defer broadcastConn.Close()

	ledgerPath := filepath.Join(t.TempDir(), "ledger.bin")

	tp, err := New(b, Config{
		Self:             mint.Pubkey(),
		TransactionsConn: txConn,
		BroadcastConn:    broadcastConn,
		LedgerPath:       ledgerPath,
		Members:          crdt.NewStatic(),
		TickInterval:     0,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer tp.Close()

	client, err := net.DialUDP("udp", nil, txConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	tx := types.NewTransaction(mint, recipient.Pubkey(), 250, b.LastID())
	if _, err := client.Write(types.MarshalPacket(tx)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.GetBalance(recipient.Pubkey()) == 250 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("transaction never applied, recipient balance = %d", b.GetBalance(recipient.Pubkey()))
}

func TestTpuCloseJoinsCleanly(t *testing.T) {
	mint, _ := types.GenerateKeypair()
	b := bank.New(mint.Pubkey(), 1)

	txConn := mustListenUDP(t)
	broadcastConn := mustListenUDP(t)
	defer broadcastConn.Close()

	ledgerPath := filepath.Join(t.TempDir(), "ledger.bin")
	tp, err := New(b, Config{
		Self:             mint.Pubkey(),
		TransactionsConn: txConn,
		BroadcastConn:    broadcastConn,
		LedgerPath:       ledgerPath,
		Members:          crdt.NewStatic(),
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		tp.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return in time")
	}

	if _, err := os.Stat(ledgerPath); err != nil {
		t.Fatalf("ledger file should exist: %v", err)
	}
}
