package tvu

import (
	"net"
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

func TestTvuReplicatesBroadcastEntries(t *testing.T) {
	mint, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	recipient, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	b := bank.New(mint.Pubkey(), 1_000_000)

	replicateConn := mustListenUDP(t)
	repairConn := mustListenUDP(t)
	retransmitConn := mustListenUDP(t)
	defer repairConn.Close()
	defer retransmitConn.Close()

	tv := New(b, Config{
		Self:       mint.Pubkey(),
		BlobConns:  []*net.UDPConn{replicateConn, repairConn},
		Retransmit: retransmitConn,
		Members:    crdt.NewStatic(),
		WindowSize: 64,
	}, nil)
	defer tv.Close()

	tx := types.NewTransaction(mint, recipient.Pubkey(), 75, b.LastID())
	entry := types.NewTransactionEntry(b.LastID(), 1, []types.Transaction{tx})

	buf := make([]byte, types.BlobBufferSize)
	blob := types.EntryBlob(entry, mint.Pubkey(), 0, buf)
	datagram := make([]byte, types.BlobHeaderSize+int(blob.Size)+1)
	n := blob.Marshal(datagram)

	client, err := net.DialUDP("udp", nil, replicateConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if _, err := client.Write(datagram[:n]); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.GetBalance(recipient.Pubkey()) == 75 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("entry never replayed, recipient balance = %d", b.GetBalance(recipient.Pubkey()))
}
