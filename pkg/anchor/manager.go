package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Error kinds.
var (
	ErrDuplicateProvider  = errors.New("anchor: provider already registered for chain")
	ErrUnknownChain       = errors.New("anchor: no provider registered for chain")
	ErrAllProvidersFailed = errors.New("anchor: all providers failed")
	ErrInvalidImport      = errors.New("anchor: import payload is not a JSON array of records")
)

// Manager orchestrates anchoring across registered providers and keeps an
// append-only local record list. The record list and registration map are
// the only mutable state; one mutex owns both. Provider iteration order is
// registration order, which makes AnchorAll's record appends deterministic.
type Manager struct {
	mu        sync.Mutex
	providers map[string]Provider
	order     []string
	records   []Record
	store     RecordStore
	logger    *slog.Logger
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		logger:    slog.Default(),
	}
}

// WithLogger overrides the manager's logger.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger
	return m
}

// WithStore attaches a durable record store. Every locally appended record
// is also written through; store failures are logged, not propagated, so a
// broken disk never blocks an already-confirmed on-chain anchor.
func (m *Manager) WithStore(store RecordStore) *Manager {
	m.store = store
	return m
}

// Register adds a provider. A second provider for the same chain id fails.
func (m *Manager) Register(p Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain := p.Chain()
	if _, exists := m.providers[chain]; exists {
		return fmt.Errorf("%w %q", ErrDuplicateProvider, chain)
	}
	m.providers[chain] = p
	m.order = append(m.order, chain)
	return nil
}

// Chains returns the registered chain ids in registration order.
func (m *Manager) Chains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Manager) provider(chain string) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[chain]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownChain, chain)
	}
	return p, nil
}

func (m *Manager) appendRecord(ctx context.Context, rec Record) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	store := m.store
	m.mu.Unlock()

	if store != nil {
		if err := store.Append(ctx, rec); err != nil {
			m.logger.Warn("anchor record store append failed",
				"chain", rec.Chain, "txHash", rec.TxHash, "error", err)
		}
	}
}

// Anchor submits the hash through the named provider and appends the
// resulting record locally. Provider failures propagate unchanged; an
// unregistered chain is its own distinct failure.
func (m *Manager) Anchor(ctx context.Context, hash, chain string, metadata map[string]string) (*Record, error) {
	p, err := m.provider(chain)
	if err != nil {
		return nil, err
	}
	rec, err := p.Anchor(ctx, hash, metadata)
	if err != nil {
		return nil, err
	}
	m.appendRecord(ctx, *rec)
	m.logger.Debug("anchored", "chain", chain, "hash", hash, "txHash", rec.TxHash)
	return rec, nil
}

// AnchorAll attempts every registered provider sequentially in registration
// order, collecting successes and failures independently. It returns the
// successful records and fails only when every provider failed, with an
// aggregate error naming each chain and its error.
func (m *Manager) AnchorAll(ctx context.Context, hash string, metadata map[string]string) ([]Record, error) {
	m.mu.Lock()
	chains := make([]string, len(m.order))
	copy(chains, m.order)
	providers := make([]Provider, 0, len(chains))
	for _, c := range chains {
		providers = append(providers, m.providers[c])
	}
	m.mu.Unlock()

	var (
		successes []Record
		failures  []string
	)
	for i, p := range providers {
		rec, err := p.Anchor(ctx, hash, metadata)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", chains[i], err))
			m.logger.Warn("anchor failed", "chain", chains[i], "hash", hash, "error", err)
			continue
		}
		m.appendRecord(ctx, *rec)
		successes = append(successes, *rec)
	}

	if len(successes) == 0 && len(failures) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllProvidersFailed, strings.Join(failures, "; "))
	}
	return successes, nil
}

// Verify delegates to the named provider only; local records are not
// consulted — verification answers what the ledger says now.
func (m *Manager) Verify(ctx context.Context, hash, txHash, chain string) Verification {
	p, err := m.provider(chain)
	if err != nil {
		return Verification{Valid: false, Hash: hash, TxHash: txHash, Chain: chain, Detail: err.Error()}
	}
	return p.Verify(ctx, hash, txHash)
}

// Lookup queries every provider, swallowing individual failures, then merges
// in locally cached records whose txHash the chains did not already report.
// The result is biased toward the chain's answer.
func (m *Manager) Lookup(ctx context.Context, hash string) []Record {
	m.mu.Lock()
	providers := make([]Provider, 0, len(m.order))
	for _, c := range m.order {
		providers = append(providers, m.providers[c])
	}
	local := make([]Record, len(m.records))
	copy(local, m.records)
	m.mu.Unlock()

	var results []Record
	seen := make(map[string]bool)
	for _, p := range providers {
		for _, rec := range p.Lookup(ctx, hash) {
			results = append(results, rec)
			seen[rec.TxHash] = true
		}
	}
	for _, rec := range local {
		if rec.Hash == hash && !seen[rec.TxHash] {
			results = append(results, rec)
			seen[rec.TxHash] = true
		}
	}
	return results
}

// Records returns a copy of the local record list in append order.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// ExportRecords renders the local record cache as a JSON array.
func (m *Manager) ExportRecords() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.records)
}

// ImportRecords appends records from a JSON array into the local cache.
// Non-array JSON and unparsable text are rejected, never silently ignored.
func (m *Manager) ImportRecords(ctx context.Context, data []byte) (int, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		return 0, ErrInvalidImport
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	for _, rec := range recs {
		m.appendRecord(ctx, rec)
	}
	return len(recs), nil
}
