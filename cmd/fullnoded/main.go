// Command fullnoded runs a fullnode process: a TPU leader pipeline or a
// TVU validator pipeline over a shared Bank, plus the read-only RPC query
// surface.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/solnet-labs/fullnode/internal/bank"
	"github.com/solnet-labs/fullnode/internal/config"
	"github.com/solnet-labs/fullnode/internal/crdt"
	"github.com/solnet-labs/fullnode/internal/rpcapi"
	"github.com/solnet-labs/fullnode/internal/tpu"
	"github.com/solnet-labs/fullnode/internal/tvu"
	"github.com/solnet-labs/fullnode/internal/types"
)

func main() {
	app := &cli.App{
		Name:  "fullnoded",
		Usage: "run a fullnode leader or validator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Required: true, Usage: "path to node config JSON"},
			&cli.StringFlag{Name: "ledger", Value: "ledger.bin", Usage: "path to the ledger file"},
			&cli.StringFlag{Name: "rpc-addr", Value: "127.0.0.1:8899", Usage: "address the JSON-RPC surface listens on"},
			&cli.BoolFlag{Name: "leader", Usage: "run as leader (TPU); absent means validator (TVU)"},
			&cli.Int64Flag{Name: "mint", Value: 10_000, Usage: "leader-only: emission minted to this node's pubkey"},
			&cli.DurationFlag{Name: "tick", Value: 0, Usage: "leader-only: PoH tick interval, 0 selects packet-driven mode"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("fullnoded: fatal", "err", err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	kp, err := cfg.Keypair()
	if err != nil {
		return err
	}

	members := crdt.NewStatic()

	var b *bank.Bank
	var closeFn func()

	if c.Bool("leader") {
		b = bank.New(kp.Pubkey(), c.Int64("mint"))
		txConn, err := net.ListenUDP("udp", mustResolve(cfg.BindAddr))
		if err != nil {
			return fmt.Errorf("fullnoded: binding transactions socket: %w", err)
		}
		broadcastConn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return fmt.Errorf("fullnoded: binding broadcast socket: %w", err)
		}
		tp, err := tpu.New(b, tpu.Config{
			Self:             kp.Pubkey(),
			TransactionsConn: txConn,
			BroadcastConn:    broadcastConn,
			LedgerPath:       c.String("ledger"),
			Members:          members,
			TickInterval:     c.Duration("tick"),
		})
		if err != nil {
			return fmt.Errorf("fullnoded: starting tpu: %w", err)
		}
		closeFn = func() { tp.Close() }
	} else {
		b = bank.New(kp.Pubkey(), 0)
		replicateConn, err := net.ListenUDP("udp", mustResolve(cfg.BindAddr))
		if err != nil {
			return fmt.Errorf("fullnoded: binding replicate socket: %w", err)
		}
		repairConn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return fmt.Errorf("fullnoded: binding repair socket: %w", err)
		}
		retransmitConn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return fmt.Errorf("fullnoded: binding retransmit socket: %w", err)
		}
		tv := tvu.New(b, tvu.Config{
			Self:       kp.Pubkey(),
			BlobConns:  []*net.UDPConn{replicateConn, repairConn},
			Retransmit: retransmitConn,
			Members:    members,
		}, nil)
		closeFn = func() { tv.Close() }
	}

	rpcServer := rpcapi.NewServer(b, c.String("rpc-addr"))
	addr, err := rpcServer.Start()
	if err != nil {
		return fmt.Errorf("fullnoded: starting rpc server: %w", err)
	}
	log.Info("fullnoded: rpc listening", "addr", addr)

	stopStatus := make(chan struct{})
	go printStatus(b, kp.Pubkey(), stopStatus)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	close(stopStatus)
	closeFn()
	return rpcServer.Close()
}

func mustResolve(addr string) *net.UDPAddr {
	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Crit("fullnoded: invalid bind address", "addr", addr, "err", err)
	}
	return resolved
}

// printStatus renders a periodic operator-facing table of node health:
// pubkey, balance, transaction count, finality.
func printStatus(b *bank.Bank, self types.Pubkey, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	green := color.New(color.FgGreen).SprintFunc()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Pubkey", "Balance", "Tx Count", "Finality"})
			table.Append([]string{
				self.String(),
				green(fmt.Sprintf("%d", b.GetBalance(self))),
				fmt.Sprintf("%d", b.TransactionCount()),
				b.Finality().Round(time.Millisecond).String(),
			})
			table.Render()
		}
	}
}
