package config

import (
	"bytes"
	"testing"

	"github.com/solnet-labs/fullnode/internal/types"
)

func TestNodeConfigRoundTrip(t *testing.T) {
	kp, err := types.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	c := New("127.0.0.1:8001", kp)

	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.BindAddr != c.BindAddr {
		t.Fatalf("bind addr mismatch: %q vs %q", decoded.BindAddr, c.BindAddr)
	}

	gotKp, err := decoded.Keypair()
	if err != nil {
		t.Fatal(err)
	}
	if gotKp.Pubkey() != kp.Pubkey() {
		t.Fatalf("keypair did not survive round trip")
	}
}

func TestNodeConfigJSONShape(t *testing.T) {
	kp, _ := types.GenerateKeypair()
	c := New("0.0.0.0:8001", kp)

	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"bind_addr"`)) {
		t.Fatalf("expected bind_addr field in encoded config: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"pkcs8"`)) {
		t.Fatalf("expected pkcs8 field in encoded config: %s", buf.String())
	}
}
