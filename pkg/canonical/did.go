package canonical

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DIDPrefix is the fixed prefix of every ATEL identifier.
const DIDPrefix = "did:atel:"

// didKeyAlgorithm is the third DID segment. Every ATEL DID has exactly four
// colon-delimited segments (did:atel:ed25519:<hex>); the Solana v2 memo codec
// depends on this segment count to reconstruct DIDs from memo text.
const didKeyAlgorithm = "ed25519"

// DIDSegments is the number of colon-delimited segments in an ATEL DID.
const DIDSegments = 4

var ErrInvalidDID = errors.New("invalid ATEL DID")

// CreateDID encodes an Ed25519 public key as an ATEL DID.
func CreateDID(pub ed25519.PublicKey) string {
	return DIDPrefix + didKeyAlgorithm + ":" + hex.EncodeToString(pub)
}

// ParseDID extracts the Ed25519 public key from an ATEL DID. It fails on a
// wrong prefix, wrong segment count, unknown key algorithm, or a key that is
// not valid hex of the Ed25519 public key size.
func ParseDID(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, DIDPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidDID, DIDPrefix)
	}
	parts := strings.Split(did, ":")
	if len(parts) != DIDSegments {
		return nil, fmt.Errorf("%w: expected %d segments, got %d", ErrInvalidDID, DIDSegments, len(parts))
	}
	if parts[2] != didKeyAlgorithm {
		return nil, fmt.Errorf("%w: unsupported key algorithm %q", ErrInvalidDID, parts[2])
	}
	key, err := hex.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: key segment is not hex", ErrInvalidDID)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrInvalidDID, len(key), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(key), nil
}
