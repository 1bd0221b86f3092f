// Package anchor timestamps content hashes on public ledgers and verifies
// them later. The Manager fans out over chain-specific providers; each
// provider owns one chain's codec and transaction driver.
package anchor

import "context"

// Record is the durable result of a successful anchor. It is created once
// and never mutated.
type Record struct {
	Hash        string            `json:"hash"`
	TxHash      string            `json:"txHash"`
	Chain       string            `json:"chain"`
	Timestamp   int64             `json:"timestamp"` // ms since epoch, local wall clock at anchoring
	BlockNumber *uint64           `json:"blockNumber,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Verification is the structured outcome of checking an anchor against live
// ledger data. Computed fresh on every call, never cached.
type Verification struct {
	Valid          bool   `json:"valid"`
	Hash           string `json:"hash"`
	TxHash         string `json:"txHash"`
	Chain          string `json:"chain"`
	BlockTimestamp *int64 `json:"blockTimestamp,omitempty"` // ledger time, unix seconds
	Detail         string `json:"detail"`
}

// Provider is the contract every chain driver implements.
//
// Anchor fails when the provider cannot sign or submit (no key, chain
// unreachable). Verify never returns an error: any failure, including "not
// found", comes back as Valid:false with a Detail. Lookup is best-effort and
// returns an empty slice rather than failing when no indexer is available.
type Provider interface {
	Chain() string
	Anchor(ctx context.Context, hash string, metadata map[string]string) (*Record, error)
	Verify(ctx context.Context, hash, txHash string) Verification
	Lookup(ctx context.Context, hash string) []Record
	Available(ctx context.Context) bool
}
