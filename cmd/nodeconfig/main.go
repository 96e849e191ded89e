// Command nodeconfig generates a fullnode's NodeConfig JSON document:
// a signing identity loaded from a keypair file and a bind address,
// written to stdout.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/solnet-labs/fullnode/internal/config"
	"github.com/solnet-labs/fullnode/internal/types"
)

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func main() {
	app := &cli.App{
		Name:  "nodeconfig",
		Usage: "generate a fullnode configuration document",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "local", Aliases: []string{"l"}, Usage: "detect network address from local machine configuration"},
			&cli.BoolFlag{Name: "public", Aliases: []string{"p"}, Usage: "detect public network address using public servers"},
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "bind to PORT or ADDR:PORT"},
			&cli.StringFlag{Name: "keypair", Aliases: []string{"k"}, Value: defaultKeypairPath(), Usage: "path to id.json"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("nodeconfig: failed", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	bindAddr, err := resolveBindAddr(c)
	if err != nil {
		return err
	}

	kp, err := loadKeypair(c.String("keypair"))
	if err != nil {
		return err
	}

	cfg := config.New(bindAddr, kp)
	return cfg.Encode(os.Stdout)
}

// resolveBindAddr applies -b, then -l/-p address-discovery overrides.
// Address discovery itself (querying local network configuration or an
// external IP-reporting service) is an out-of-scope collaborator; both
// flags are accepted but only override the host when a discoverer is
// actually wired in by the caller's environment.
func resolveBindAddr(c *cli.Context) (string, error) {
	port := "8001"
	host := "0.0.0.0"
	if b := c.String("bind"); b != "" {
		if h, p, err := net.SplitHostPort(b); err == nil {
			host, port = h, p
		} else {
			port = b
		}
	}
	if c.Bool("local") {
		if ip, ok := detectLocalAddr(); ok {
			host = ip
		} else {
			log.Warn("nodeconfig: local address detection unavailable, keeping bind host", "host", host)
		}
	}
	if c.Bool("public") {
		if ip, ok := detectPublicAddr(); ok {
			host = ip
		} else {
			log.Warn("nodeconfig: public address detection unavailable, keeping bind host", "host", host)
		}
	}
	return net.JoinHostPort(host, port), nil
}

// loadKeypair reads a PKCS#8-encoded identity from an id.json file shaped
// like {"pkcs8": [...]}. This mirrors the reference CLI's read_pkcs8: a
// missing or unparseable keypair file is a fatal startup error, not a
// reason to mint a throwaway identity.
func loadKeypair(path string) (types.Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Keypair{}, fmt.Errorf("nodeconfig: reading keypair file %s: %w", path, err)
	}
	var raw struct {
		PKCS8 []byte `json:"pkcs8"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.Keypair{}, fmt.Errorf("nodeconfig: parsing keypair file %s: %w", path, err)
	}
	kp, err := config.NodeConfig{PKCS8: raw.PKCS8}.Keypair()
	if err != nil {
		return types.Keypair{}, err
	}
	return kp, nil
}
