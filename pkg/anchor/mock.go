package anchor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider simulates a chain in memory. It backs tests and deployments
// without real blockchain access, and honors the full Provider contract:
// hash mismatches and missing transactions produce structured, non-throwing
// verification failures, exactly like the network providers.
type MockProvider struct {
	mu        sync.Mutex
	chain     string
	txs       map[string]Record // txHash -> record
	available bool
	seq       int
	clock     func() time.Time
}

// NewMockProvider creates an available mock chain with the given id.
func NewMockProvider(chain string) *MockProvider {
	return &MockProvider{
		chain:     chain,
		txs:       make(map[string]Record),
		available: true,
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (p *MockProvider) WithClock(clock func() time.Time) *MockProvider {
	p.clock = clock
	return p
}

// SetAvailable toggles the availability flag for failure injection.
func (p *MockProvider) SetAvailable(available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = available
}

func (p *MockProvider) Chain() string { return p.chain }

func (p *MockProvider) Available(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *MockProvider) Anchor(_ context.Context, hash string, metadata map[string]string) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return nil, fmt.Errorf("%s: chain unreachable", p.chain)
	}

	p.seq++
	block := uint64(p.seq)
	rec := Record{
		Hash:        hash,
		TxHash:      fmt.Sprintf("mock-%s-tx-%d", p.chain, p.seq),
		Chain:       p.chain,
		Timestamp:   p.clock().UnixMilli(),
		BlockNumber: &block,
		Metadata:    metadata,
	}
	p.txs[rec.TxHash] = rec
	return &rec, nil
}

func (p *MockProvider) Verify(_ context.Context, hash, txHash string) Verification {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := Verification{Hash: hash, TxHash: txHash, Chain: p.chain}
	if !p.available {
		v.Detail = "chain unreachable"
		return v
	}
	rec, ok := p.txs[txHash]
	if !ok {
		v.Detail = fmt.Sprintf("transaction %s not found", txHash)
		return v
	}
	if rec.Hash != hash {
		v.Detail = fmt.Sprintf("hash mismatch: anchored %s, expected %s", rec.Hash, hash)
		return v
	}
	blockTime := rec.Timestamp / 1000
	v.Valid = true
	v.BlockTimestamp = &blockTime
	v.Detail = "anchor verified"
	return v
}

func (p *MockProvider) Lookup(_ context.Context, hash string) []Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return nil
	}
	var out []Record
	for _, rec := range p.txs {
		if rec.Hash == hash {
			out = append(out, rec)
		}
	}
	return out
}
