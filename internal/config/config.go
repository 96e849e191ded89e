// Package config defines the node's on-disk JSON configuration, the
// document cmd/nodeconfig writes and cmd/fullnoded reads.
package config

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/solnet-labs/fullnode/internal/types"
)

// NodeConfig is the exact two-field JSON document a fullnode reads at
// startup: the address it binds its sockets to, and the raw PKCS#8 bytes
// of its signing identity.
type NodeConfig struct {
	BindAddr string `json:"bind_addr"`
	PKCS8    []byte `json:"pkcs8"`
}

// Keypair decodes PKCS8 into a usable signing identity.
func (c NodeConfig) Keypair() (types.Keypair, error) {
	priv, err := parsePKCS8Ed25519(c.PKCS8)
	if err != nil {
		return types.Keypair{}, fmt.Errorf("config: decoding pkcs8 key: %w", err)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return types.Keypair{}, fmt.Errorf("config: pkcs8 key is not ed25519")
	}
	return types.Keypair{Public: pub, Private: priv}, nil
}

// Load reads and parses a NodeConfig from path.
func Load(path string) (NodeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a NodeConfig from r, the same shape `cmd/nodeconfig`
// writes to stdout.
func Decode(r io.Reader) (NodeConfig, error) {
	var c NodeConfig
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return c, fmt.Errorf("config: decoding json: %w", err)
	}
	return c, nil
}

// Encode writes c as JSON to w.
func (c NodeConfig) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(c)
}

// New builds a NodeConfig for a freshly generated or loaded keypair.
func New(bindAddr string, kp types.Keypair) NodeConfig {
	return NodeConfig{BindAddr: bindAddr, PKCS8: marshalPKCS8Ed25519(kp.Private)}
}
