package client

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer signs relay proofs with the gateway's client key. The AATs it
// countersigns are pre-signed by application owners and come from the
// record store; the signer only proves the gateway dispatched the relay.
type Signer struct {
	privKey ed25519.PrivateKey
	pubKey  string
}

// NewSignerFromHex creates a signer from a hex-encoded ed25519 private key.
// Both 32-byte seeds and 64-byte expanded keys are accepted.
func NewSignerFromHex(privKeyHex string) (*Signer, error) {
	if privKeyHex == "" {
		return nil, fmt.Errorf("private key hex is empty")
	}

	raw, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}

	var privKey ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		privKey = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		privKey = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("invalid private key length: expected %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}

	pubKey := privKey.Public().(ed25519.PublicKey)

	return &Signer{
		privKey: privKey,
		pubKey:  hex.EncodeToString(pubKey),
	}, nil
}

// PublicKey returns the hex-encoded client public key carried in AATs.
func (s *Signer) PublicKey() string {
	return s.pubKey
}

// Sign hashes the payload and returns the hex-encoded signature.
func (s *Signer) Sign(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(ed25519.Sign(s.privKey, digest[:]))
}
