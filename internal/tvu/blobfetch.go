// Package tvu implements the validator-side pipeline: BlobFetch,
// Retransmit (window reordering + repair) and Replicate stages.
package tvu

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

// MaxBlobBatch bounds how many blobs a single read cycle gathers across
// all bound sockets before forwarding downstream.
const MaxBlobBatch = 128

const readTimeout = pipeline.PollInterval

// RawBlob is a received blob datagram still in its recycled buffer,
// decoded enough to know its length but not yet validated against the
// window.
type RawBlob struct {
	Blob types.Blob
	Buf  []byte // the recycled payload buffer backing Blob.Payload
}

// BlobFetchStage reads blob datagrams off the replicate and repair
// sockets and multiplexes them into one downstream batch channel,
// symmetric to FetchStage on the leader side.
type BlobFetchStage struct {
	conns []*net.UDPConn
	out   chan<- []RawBlob
	exit  *pipeline.ExitSignal
	blobs *recycler.Pool
}

// NewBlobFetchStage constructs a BlobFetchStage reading from every conn in
// conns (typically one replicate socket and one repair socket).
func NewBlobFetchStage(conns []*net.UDPConn, out chan<- []RawBlob, exit *pipeline.ExitSignal, blobs *recycler.Pool) *BlobFetchStage {
	return &BlobFetchStage{conns: conns, out: out, exit: exit, blobs: blobs}
}

// Run fans every socket's worker into a single shared output channel until
// every worker has exited, then closes out.
func (s *BlobFetchStage) Run() {
	log.Info("tvu: blobfetch stage starting", "sockets", len(s.conns))
	done := make(chan struct{}, len(s.conns))
	for _, conn := range s.conns {
		conn := conn
		go func() {
			s.readLoop(conn)
			done <- struct{}{}
		}()
	}
	for range s.conns {
		<-done
	}
	close(s.out)
	log.Info("tvu: blobfetch stage exited")
}

func (s *BlobFetchStage) readLoop(conn *net.UDPConn) {
	for !s.exit.IsSet() {
		batch, ok := s.readBatch(conn)
		if !ok {
			return
		}
		if len(batch) == 0 {
			continue
		}
		if !pipeline.TrySend[[]RawBlob](s.out, batch, s.exit) {
			for _, b := range batch {
				s.blobs.Put(b.Buf)
			}
			return
		}
	}
}

func (s *BlobFetchStage) readBatch(conn *net.UDPConn) (batch []RawBlob, ok bool) {
	for len(batch) < MaxBlobBatch {
		buf := s.blobs.Allocate()
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			s.blobs.Put(buf)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return batch, true
			}
			if s.exit.IsSet() {
				return nil, false
			}
			log.Info("tvu: blobfetch socket error, terminating worker", "local", conn.LocalAddr(), "err", err)
			return nil, false
		}
		blob, err := types.UnmarshalBlob(buf[:n], buf)
		if err != nil {
			s.blobs.Put(buf)
			log.Trace("tvu: blobfetch dropped undecodable datagram", "err", err)
			continue
		}
		metricsreg.BlobsFetched.Inc(1)
		batch = append(batch, RawBlob{Blob: blob, Buf: buf})
	}
	return batch, true
}
