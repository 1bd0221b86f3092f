// Package canonical provides the deterministic serialization and signing
// primitives every ATEL component builds on: RFC 8785 (JCS) canonical JSON,
// Ed25519 sign/verify over canonical bytes, and did:atel identifiers.
//
// Signer and verifier must reproduce the exact same bytes for semantically
// equal payloads regardless of field order, so all signatures in this module
// are computed over Serialize output, never over raw json.Marshal output.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Serialize returns the RFC 8785 canonical JSON form of v.
// Map key order in the input is irrelevant; the output is byte-identical for
// semantically equal values.
func Serialize(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 hex digest of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns a hex string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
