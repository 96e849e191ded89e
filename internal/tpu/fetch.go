// Package tpu implements the leader-side pipeline: Fetch, SigVerify,
// Banking, Record and Write stages chained by bounded channels.
package tpu

import (
	"errors"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/solnet-labs/fullnode/internal/metricsreg"
	"github.com/solnet-labs/fullnode/internal/pipeline"
	"github.com/solnet-labs/fullnode/internal/recycler"
	"github.com/solnet-labs/fullnode/internal/types"
)

// MaxPacketBatch bounds how many packets a single FetchStage read cycle
// gathers before forwarding the batch downstream.
const MaxPacketBatch = 128

// readTimeout is the UDP deadline FetchStage polls at, distinct from
// pipeline.PollInterval only in that it drives net.Conn's own deadline
// mechanism rather than a select timer.
const readTimeout = pipeline.PollInterval

// Packet is one received datagram in its recycled buffer, sized to
// buf[:N] with the buffer's full capacity retained so it can be returned
// to the pool once downstream stages are done with it.
type Packet struct {
	Buf []byte
}

// FetchStage reads transaction packets off one bound UDP socket, batching
// up to MaxPacketBatch per read cycle, and forwards each non-empty batch
// downstream using recycled packet buffers.
type FetchStage struct {
	conn    *net.UDPConn
	out     chan<- []Packet
	exit    *pipeline.ExitSignal
	packets *recycler.Pool
}

// NewFetchStage constructs a FetchStage reading from conn.
func NewFetchStage(conn *net.UDPConn, out chan<- []Packet, exit *pipeline.ExitSignal, packets *recycler.Pool) *FetchStage {
	return &FetchStage{conn: conn, out: out, exit: exit, packets: packets}
}

// Run reads packet batches until the exit signal fires or the socket
// errors for a reason other than a read timeout, then closes out.
func (f *FetchStage) Run() {
	log.Info("tpu: fetch stage starting", "local", f.conn.LocalAddr())
	defer close(f.out)

	for !f.exit.IsSet() {
		batch, ok := f.readBatch()
		if !ok {
			return
		}
		if len(batch) == 0 {
			continue
		}
		if !pipeline.TrySend[[]Packet](f.out, batch, f.exit) {
			for _, p := range batch {
				f.packets.Put(p.Buf)
			}
			return
		}
	}
}

// readBatch gathers up to MaxPacketBatch packets, returning as soon as a
// read times out with whatever was gathered so far. ok is false only on a
// terminal socket error, distinct from a batch that's merely empty because
// nothing arrived within one poll interval.
func (f *FetchStage) readBatch() (batch []Packet, ok bool) {
	for len(batch) < MaxPacketBatch {
		buf := f.packets.Allocate()
		f.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			f.packets.Put(buf)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return batch, true
			}
			if f.exit.IsSet() {
				return nil, false
			}
			log.Info("tpu: fetch stage socket error, terminating", "err", err)
			return nil, false
		}
		metricsreg.PacketsFetched.Inc(1)
		batch = append(batch, Packet{Buf: buf[:n]})
	}
	return batch, true
}
