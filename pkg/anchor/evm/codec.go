// Package evm anchors hashes on EVM-family chains as calldata in zero-value
// self-transactions. One shared codec and driver serve every EVM chain;
// chains differ only in configuration (RPC endpoint, chain id).
package evm

import (
	"encoding/hex"
	"strings"
)

// anchorMarker prefixes every anchor payload so foreign transaction data is
// distinguishable from anchor data.
const anchorMarker = "ATEL_ANCHOR:"

// EncodePayload renders a hash as transaction calldata: the UTF-8 bytes of
// the marker followed by the hash.
func EncodePayload(hash string) []byte {
	return []byte(anchorMarker + hash)
}

// DecodePayload recovers the hash from calldata. It fails closed: data
// without the marker yields ("", false), never a partial result.
func DecodePayload(data []byte) (string, bool) {
	s := string(data)
	if !strings.HasPrefix(s, anchorMarker) {
		return "", false
	}
	return strings.TrimPrefix(s, anchorMarker), true
}

// EncodePayloadHex is EncodePayload in the 0x-prefixed hex form used on the
// JSON-RPC wire.
func EncodePayloadHex(hash string) string {
	return "0x" + hex.EncodeToString(EncodePayload(hash))
}

// DecodePayloadHex decodes a 0x-prefixed hex calldata string. Malformed hex
// and missing markers both fail closed.
func DecodePayloadHex(s string) (string, bool) {
	trimmed := strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return "", false
	}
	return DecodePayload(raw)
}
