package solana

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	"github.com/atel-protocol/atel/pkg/anchor"
)

// memoProgramID is the SPL memo program.
var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// lookupScanLimit bounds how many recent signatures a Lookup walks.
const lookupScanLimit = 50

// rpcClient is the slice of the Solana JSON-RPC surface the provider needs.
// *rpc.Client satisfies it; tests substitute a stub.
type rpcClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetSignaturesForAddress(ctx context.Context, account solana.PublicKey) ([]*rpc.TransactionSignature, error)
	GetHealth(ctx context.Context) (string, error)
}

// Config selects the endpoint and fee payer. PrivateKeyBase58 may be empty
// for verify-only use. MaxRPS throttles outbound RPC; zero means 4
// requests/second.
type Config struct {
	Chain            string
	RPCURL           string
	PrivateKeyBase58 string
	MaxRPS           float64
}

// Provider anchors hashes on Solana via the memo program.
type Provider struct {
	cfg     Config
	client  rpcClient
	key     solana.PrivateKey
	payer   solana.PublicKey
	limiter *rate.Limiter
}

// New dials the configured RPC endpoint and builds a provider.
func New(cfg Config) (*Provider, error) {
	return newWithClient(cfg, rpc.New(cfg.RPCURL))
}

// NewMainnet builds a provider against the public mainnet-beta endpoint.
func NewMainnet(privateKeyBase58 string) (*Provider, error) {
	return New(Config{
		Chain:            "solana",
		RPCURL:           rpc.MainNetBeta_RPC,
		PrivateKeyBase58: privateKeyBase58,
	})
}

func newWithClient(cfg Config, client rpcClient) (*Provider, error) {
	if cfg.Chain == "" {
		cfg.Chain = "solana"
	}
	p := &Provider{cfg: cfg, client: client}

	rps := cfg.MaxRPS
	if rps <= 0 {
		rps = 4
	}
	p.limiter = rate.NewLimiter(rate.Limit(rps), 1)

	if cfg.PrivateKeyBase58 != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.PrivateKeyBase58)
		if err != nil {
			return nil, fmt.Errorf("%s: parse private key: %w", cfg.Chain, err)
		}
		p.key = key
		p.payer = key.PublicKey()
	}
	return p, nil
}

func (p *Provider) Chain() string { return p.cfg.Chain }

// Available reports whether the RPC endpoint answers its health check.
func (p *Provider) Available(ctx context.Context) bool {
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}
	out, err := p.client.GetHealth(ctx)
	return err == nil && out == rpc.HealthOk
}

// Anchor submits a legacy-format memo transaction carrying the hash.
func (p *Provider) Anchor(ctx context.Context, hash string, metadata map[string]string) (*anchor.Record, error) {
	return p.submitMemo(ctx, EncodeLegacyMemo(hash), hash, metadata)
}

// AnchorProofV2 submits a structured v2 memo. The record's hash is the
// proof's trace root, so verification and lookup work the same way as for
// legacy anchors.
func (p *Provider) AnchorProofV2(ctx context.Context, proof ProofV2, metadata map[string]string) (*anchor.Record, error) {
	meta := map[string]string{
		"task_id":       proof.TaskID,
		"executor_did":  proof.ExecutorDID,
		"requester_did": proof.RequesterDID,
	}
	for k, v := range metadata {
		meta[k] = v
	}
	return p.submitMemo(ctx, EncodeMemoV2(proof), proof.TraceRoot, meta)
}

func (p *Provider) submitMemo(ctx context.Context, memoText, hash string, metadata map[string]string) (*anchor.Record, error) {
	if p.key == nil {
		return nil, fmt.Errorf("%s: no signing key configured", p.cfg.Chain)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	blockhash, err := p.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch blockhash: %w", p.cfg.Chain, err)
	}

	inst := solana.NewInstruction(memoProgramID, solana.AccountMetaSlice{}, []byte(memoText))
	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(p.payer),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: build transaction: %w", p.cfg.Chain, err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(p.payer) {
			return &p.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: sign transaction: %w", p.cfg.Chain, err)
	}

	sig, err := p.client.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: submit transaction: %w", p.cfg.Chain, err)
	}

	return &anchor.Record{
		Hash:      hash,
		TxHash:    sig.String(),
		Chain:     p.cfg.Chain,
		Timestamp: time.Now().UnixMilli(),
		Metadata:  metadata,
	}, nil
}

// Verify fetches the transaction, extracts its memo, and compares the
// recovered hash. Both memo formats are accepted; a v2 memo matches through
// its trace root. Failures are structured, never errors.
func (p *Provider) Verify(ctx context.Context, hash, txHash string) anchor.Verification {
	v := anchor.Verification{Hash: hash, TxHash: txHash, Chain: p.cfg.Chain}

	if err := p.limiter.Wait(ctx); err != nil {
		v.Detail = fmt.Sprintf("rpc throttle interrupted: %v", err)
		return v
	}
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		v.Detail = fmt.Sprintf("malformed transaction signature: %v", err)
		return v
	}
	res, err := p.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{Encoding: solana.EncodingBase64})
	if err != nil {
		v.Detail = fmt.Sprintf("transaction fetch failed: %v", err)
		return v
	}

	memoText, ok := extractMemo(res)
	if !ok {
		v.Detail = "transaction carries no memo"
		return v
	}
	recovered, ok := recoverHash(memoText)
	if !ok {
		v.Detail = "memo does not carry anchor data"
		return v
	}
	if recovered != hash {
		v.Detail = fmt.Sprintf("hash mismatch: anchored %s, expected %s", recovered, hash)
		return v
	}

	v.Valid = true
	v.Detail = "anchor verified"
	if res.BlockTime != nil {
		blockTime := int64(*res.BlockTime)
		v.BlockTimestamp = &blockTime
	}
	return v
}

// Lookup walks the payer's recent signatures and returns every transaction
// whose memo anchors the hash. Without a configured key there is no address
// to scan, so the answer is empty. Fetch failures skip the signature.
func (p *Provider) Lookup(ctx context.Context, hash string) []anchor.Record {
	if p.key == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil
	}
	sigs, err := p.client.GetSignaturesForAddress(ctx, p.payer)
	if err != nil {
		return nil
	}

	var out []anchor.Record
	for i, entry := range sigs {
		if i >= lookupScanLimit {
			break
		}
		if err := p.limiter.Wait(ctx); err != nil {
			break
		}
		res, err := p.client.GetTransaction(ctx, entry.Signature, &rpc.GetTransactionOpts{Encoding: solana.EncodingBase64})
		if err != nil {
			continue
		}
		memoText, ok := extractMemo(res)
		if !ok {
			continue
		}
		recovered, ok := recoverHash(memoText)
		if !ok || recovered != hash {
			continue
		}
		rec := anchor.Record{
			Hash:   hash,
			TxHash: entry.Signature.String(),
			Chain:  p.cfg.Chain,
		}
		slot := res.Slot
		rec.BlockNumber = &slot
		if res.BlockTime != nil {
			rec.Timestamp = int64(*res.BlockTime) * 1000
		}
		out = append(out, rec)
	}
	return out
}

// recoverHash accepts either memo format and yields the anchored hash.
func recoverHash(memoText string) (string, bool) {
	if h, ok := DecodeLegacyMemo(memoText); ok {
		return h, true
	}
	if proof, ok := DecodeMemoV2(memoText); ok {
		return proof.TraceRoot, true
	}
	return "", false
}

// extractMemo pulls the memo text out of a fetched transaction. It prefers
// the decoded memo-program instruction and falls back to scanning the log
// messages, which is all some RPC responses expose.
func extractMemo(res *rpc.GetTransactionResult) (string, bool) {
	if res == nil {
		return "", false
	}
	if res.Transaction != nil {
		if tx, err := res.Transaction.GetTransaction(); err == nil && tx != nil {
			for _, inst := range tx.Message.Instructions {
				idx := int(inst.ProgramIDIndex)
				if idx >= len(tx.Message.AccountKeys) {
					continue
				}
				if tx.Message.AccountKeys[idx].Equals(memoProgramID) {
					return string(inst.Data), true
				}
			}
		}
	}
	if res.Meta != nil {
		for _, msg := range res.Meta.LogMessages {
			if idx := strings.Index(msg, legacyMarker); idx >= 0 {
				return strings.Trim(msg[idx:], `"`), true
			}
			if idx := strings.Index(msg, v2Prefix); idx >= 0 {
				return strings.Trim(msg[idx:], `"`), true
			}
		}
	}
	return "", false
}
