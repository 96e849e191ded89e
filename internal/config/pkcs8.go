package config

import (
	"crypto/ed25519"
	"crypto/x509"
	"fmt"
)

// parsePKCS8Ed25519 and marshalPKCS8Ed25519 wrap the stdlib PKCS#8 codec,
// which already understands ed25519 keys; no corpus dependency offers a
// narrower-scoped alternative worth adopting for two call sites.
func parsePKCS8Ed25519(der []byte) (ed25519.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("pkcs8 key is %T, not ed25519.PrivateKey", key)
	}
	return priv, nil
}

func marshalPKCS8Ed25519(priv ed25519.PrivateKey) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		// ed25519.PrivateKey always marshals; a failure here means the
		// key itself is malformed, which Keypair construction prevents.
		panic(err)
	}
	return der
}
