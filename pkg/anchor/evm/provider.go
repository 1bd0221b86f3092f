package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/atel-protocol/atel/pkg/anchor"
)

// anchorGasLimit covers a value-less self-transaction plus the marker+hash
// calldata with headroom.
const anchorGasLimit = 100_000

// rpcClient is the slice of the Ethereum JSON-RPC surface the provider
// needs. *ethclient.Client satisfies it; tests substitute a stub.
type rpcClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config selects the chain an EVM provider drives. PrivateKeyHex may be
// empty for verify/lookup-only use; anchoring then fails with a no-key
// error. MaxRPS throttles outbound RPC; zero means 4 requests/second.
type Config struct {
	Chain         string
	RPCURL        string
	ChainID       int64
	PrivateKeyHex string
	MaxRPS        float64
}

// Provider anchors hashes on one EVM-family chain.
type Provider struct {
	cfg     Config
	client  rpcClient
	key     *ecdsa.PrivateKey
	from    common.Address
	limiter *rate.Limiter
}

// New dials the configured RPC endpoint and builds a provider.
func New(cfg Config) (*Provider, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%s: dial rpc: %w", cfg.Chain, err)
	}
	return newWithClient(cfg, client)
}

func newWithClient(cfg Config, client rpcClient) (*Provider, error) {
	if cfg.Chain == "" {
		return nil, fmt.Errorf("evm: chain id string is required")
	}
	p := &Provider{cfg: cfg, client: client}

	rps := cfg.MaxRPS
	if rps <= 0 {
		rps = 4
	}
	p.limiter = rate.NewLimiter(rate.Limit(rps), 1)

	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%s: parse private key: %w", cfg.Chain, err)
		}
		p.key = key
		p.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return p, nil
}

// NewBSC builds a provider for BNB Smart Chain with its default public RPC.
func NewBSC(privateKeyHex string) (*Provider, error) {
	return New(Config{
		Chain:         "bsc",
		RPCURL:        "https://bsc-dataseed.binance.org",
		ChainID:       56,
		PrivateKeyHex: privateKeyHex,
	})
}

// NewBase builds a provider for Base with its default public RPC.
func NewBase(privateKeyHex string) (*Provider, error) {
	return New(Config{
		Chain:         "base",
		RPCURL:        "https://mainnet.base.org",
		ChainID:       8453,
		PrivateKeyHex: privateKeyHex,
	})
}

func (p *Provider) Chain() string { return p.cfg.Chain }

// Available reports whether the RPC endpoint answers.
func (p *Provider) Available(ctx context.Context) bool {
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}
	_, err := p.client.BlockNumber(ctx)
	return err == nil
}

// Anchor submits a zero-value self-transaction whose calldata carries the
// marker-prefixed hash.
func (p *Provider) Anchor(ctx context.Context, hash string, metadata map[string]string) (*anchor.Record, error) {
	if p.key == nil {
		return nil, fmt.Errorf("%s: no signing key configured", p.cfg.Chain)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch nonce: %w", p.cfg.Chain, err)
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch gas price: %w", p.cfg.Chain, err)
	}

	to := p.from
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      anchorGasLimit,
		GasPrice: gasPrice,
		Data:     EncodePayload(hash),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(p.cfg.ChainID)), p.key)
	if err != nil {
		return nil, fmt.Errorf("%s: sign transaction: %w", p.cfg.Chain, err)
	}
	if err := p.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%s: submit transaction: %w", p.cfg.Chain, err)
	}

	return &anchor.Record{
		Hash:      hash,
		TxHash:    signed.Hash().Hex(),
		Chain:     p.cfg.Chain,
		Timestamp: time.Now().UnixMilli(),
		Metadata:  metadata,
	}, nil
}

// Verify fetches the transaction, decodes its calldata, and compares the
// recovered hash. Any failure is a structured Valid:false, never an error.
func (p *Provider) Verify(ctx context.Context, hash, txHash string) anchor.Verification {
	v := anchor.Verification{Hash: hash, TxHash: txHash, Chain: p.cfg.Chain}

	if err := p.limiter.Wait(ctx); err != nil {
		v.Detail = fmt.Sprintf("rpc throttle interrupted: %v", err)
		return v
	}
	tx, pending, err := p.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		v.Detail = fmt.Sprintf("transaction fetch failed: %v", err)
		return v
	}

	recovered, ok := DecodePayload(tx.Data())
	if !ok {
		v.Detail = "transaction does not carry anchor data"
		return v
	}
	if recovered != hash {
		v.Detail = fmt.Sprintf("hash mismatch: anchored %s, expected %s", recovered, hash)
		return v
	}

	v.Valid = true
	v.Detail = "anchor verified"
	if pending {
		v.Detail = "anchor verified (transaction pending)"
		return v
	}

	// Block info is reported when retrievable but its absence does not
	// invalidate an already-matched anchor.
	receipt, err := p.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil || receipt.BlockNumber == nil {
		return v
	}
	if header, err := p.client.HeaderByNumber(ctx, receipt.BlockNumber); err == nil {
		blockTime := int64(header.Time)
		v.BlockTimestamp = &blockTime
	}
	return v
}

// Lookup is best-effort: plain EVM RPC has no hash-to-transaction index, so
// without an external indexer the answer is always empty.
func (p *Provider) Lookup(_ context.Context, _ string) []anchor.Record {
	return nil
}
