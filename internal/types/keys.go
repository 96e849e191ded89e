// Package types holds the wire-level data model shared by the TPU and TVU
// pipelines: keys, transactions, PoH entries and broadcast blobs.
package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"github.com/mr-tron/base58"
)

// PubkeySize and SignatureSize match the reference serialization: fixed-size
// byte arrays, never length-prefixed on the wire.
const (
	PubkeySize    = 32
	SignatureSize = ed25519.SignatureSize // 64
)

// Pubkey identifies an account. The zero Pubkey is the unassigned key and is
// never a valid signer.
type Pubkey [PubkeySize]byte

// Signature is an Ed25519 signature over a Transaction's signed fields.
type Signature [SignatureSize]byte

// String renders the base58 encoding used on the RPC surface and in logs.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (s Signature) String() string {
	return base58.Encode(s[:])
}

// PubkeyFromBase58 decodes and length-checks a base58-encoded public key.
func PubkeyFromBase58(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, err
	}
	if len(raw) != PubkeySize {
		return pk, errInvalidLength
	}
	copy(pk[:], raw)
	return pk, nil
}

// SignatureFromBase58 decodes and length-checks a base58-encoded signature.
func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, err
	}
	if len(raw) != SignatureSize {
		return sig, errInvalidLength
	}
	copy(sig[:], raw)
	return sig, nil
}

var errInvalidLength = errors.New("decoded value has the wrong byte length")

// Keypair is a local Ed25519 signing identity, loaded from PKCS#8 bytes per
// the node config format.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Pubkey returns the Keypair's public half as a fixed-size Pubkey.
func (k Keypair) Pubkey() Pubkey {
	var pk Pubkey
	copy(pk[:], k.Public)
	return pk
}

// Sign produces a Signature over msg using the keypair's private key.
func (k Keypair) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.Private, msg))
	return sig
}

// GenerateKeypair creates a fresh random Ed25519 identity.
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// putUint64 / getUint64 centralize the little-endian integer encoding
// mandated by the wire format so every codec in this package uses the same
// byte order.
func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

func putInt64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
func getInt64(b []byte) int64    { return int64(binary.LittleEndian.Uint64(b)) }
