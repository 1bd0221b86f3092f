// Package solana anchors hashes on Solana as memo-program instructions.
// Two memo formats are supported: the legacy marker format shared with the
// EVM providers, and a structured v2 format that binds an anchor to the
// agents and task that produced it.
package solana

import (
	"fmt"
	"strings"

	"github.com/atel-protocol/atel/pkg/canonical"
)

// legacyMarker prefixes plain hash memos.
const legacyMarker = "ATEL_ANCHOR:"

// v2Prefix opens structured proof memos. The full layout is
// ATEL:1:<executor DID>:<requester DID>:<task id>:<trace root>, where each
// DID itself occupies four colon-separated segments.
const v2Prefix = "ATEL:1:"

// didSegments is how many colon segments one DID spans inside a v2 memo.
const didSegments = 4

// ProofV2 is the structured payload of a v2 memo.
type ProofV2 struct {
	ExecutorDID  string
	RequesterDID string
	TaskID       string
	TraceRoot    string
}

// EncodeLegacyMemo renders a bare hash memo.
func EncodeLegacyMemo(hash string) string {
	return legacyMarker + hash
}

// DecodeLegacyMemo recovers the hash from a legacy memo, failing closed on
// anything without the marker.
func DecodeLegacyMemo(memo string) (string, bool) {
	if !strings.HasPrefix(memo, legacyMarker) {
		return "", false
	}
	return strings.TrimPrefix(memo, legacyMarker), true
}

// EncodeMemoV2 renders a structured proof memo.
func EncodeMemoV2(p ProofV2) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", v2Prefix, p.ExecutorDID, p.RequesterDID, p.TaskID, p.TraceRoot)
}

// DecodeMemoV2 parses a structured proof memo. Both DIDs must carry the
// protocol DID prefix; any structural defect yields (nil, false).
func DecodeMemoV2(memo string) (*ProofV2, bool) {
	parts := strings.Split(memo, ":")
	// ATEL, 1, two 4-segment DIDs, task id, trace root.
	if len(parts) < 2+2*didSegments+2 {
		return nil, false
	}
	if parts[0] != "ATEL" || parts[1] != "1" {
		return nil, false
	}

	executor := strings.Join(parts[2:2+didSegments], ":")
	requester := strings.Join(parts[2+didSegments:2+2*didSegments], ":")
	taskID := parts[2+2*didSegments]
	traceRoot := strings.Join(parts[2+2*didSegments+1:], ":")

	if !strings.HasPrefix(executor, canonical.DIDPrefix) || !strings.HasPrefix(requester, canonical.DIDPrefix) {
		return nil, false
	}
	if taskID == "" || traceRoot == "" {
		return nil, false
	}
	return &ProofV2{
		ExecutorDID:  executor,
		RequesterDID: requester,
		TaskID:       taskID,
		TraceRoot:    traceRoot,
	}, true
}
