package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/atel-protocol/atel/pkg/anchor"
	"github.com/atel-protocol/atel/pkg/anchor/evm"
	solanachain "github.com/atel-protocol/atel/pkg/anchor/solana"
	"github.com/atel-protocol/atel/pkg/canonical"
	"github.com/atel-protocol/atel/pkg/config"
	"github.com/atel-protocol/atel/pkg/consent"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "keygen":
		return runKeygen(args[2:], stdout, stderr)
	case "mint":
		return runMint(args[2:], stdout, stderr)
	case "verify-token":
		return runVerifyToken(args[2:], stdout, stderr)
	case "anchor":
		return runAnchor(args[2:], stdout, stderr)
	case "verify-anchor":
		return runVerifyAnchor(args[2:], stdout, stderr)
	case "export-records":
		return runExportRecords(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "ATEL - agent trust and execution layer")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  atel <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "IDENTITY & CONSENT:")
	fmt.Fprintln(w, "  keygen          Generate an agent keypair and DID")
	fmt.Fprintln(w, "  mint            Mint a consent token (--key, --issuer, --subject, --scopes)")
	fmt.Fprintln(w, "  verify-token    Verify a consent token (--token, --pubkey)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "ANCHORING:")
	fmt.Fprintln(w, "  anchor          Anchor a hash on configured chains (--hash, --chain)")
	fmt.Fprintln(w, "  verify-anchor   Verify an anchored hash (--hash, --tx, --chain)")
	fmt.Fprintln(w, "  export-records  Export the persisted anchor record cache as JSON")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  help            Show this help")
	fmt.Fprintln(w, "")
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOutput := cmd.Bool("json", false, "Output result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	pub, priv, err := canonical.GenerateKeypair()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating keypair: %v\n", err)
		return 1
	}
	did := canonical.CreateDID(pub)

	if *jsonOutput {
		out, _ := json.MarshalIndent(map[string]string{
			"did":         did,
			"public_key":  canonical.PublicKeyHex(pub),
			"private_key": fmt.Sprintf("%x", []byte(priv)),
		}, "", "  ")
		fmt.Fprintln(stdout, string(out))
		return 0
	}

	fmt.Fprintf(stdout, "DID:         %s\n", did)
	fmt.Fprintf(stdout, "Public key:  %s\n", canonical.PublicKeyHex(pub))
	fmt.Fprintf(stdout, "Private key: %x\n", []byte(priv))
	return 0
}

func runMint(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("mint", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		keyHex   string
		issuer   string
		subject  string
		scopes   string
		maxCalls int
		ttl      int64
		ceiling  string
	)
	cmd.StringVar(&keyHex, "key", "", "Issuer private key, hex (REQUIRED)")
	cmd.StringVar(&issuer, "issuer", "", "Issuer DID (REQUIRED)")
	cmd.StringVar(&subject, "subject", "", "Subject DID (REQUIRED)")
	cmd.StringVar(&scopes, "scopes", "", "Comma-separated scope list (REQUIRED)")
	cmd.IntVar(&maxCalls, "max-calls", 1, "Call budget")
	cmd.Int64Var(&ttl, "ttl", 300, "Token lifetime in seconds")
	cmd.StringVar(&ceiling, "risk", "low", "Risk ceiling (low|medium|high|critical)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if keyHex == "" || issuer == "" || subject == "" || scopes == "" {
		fmt.Fprintln(stderr, "Error: --key, --issuer, --subject, and --scopes are required")
		cmd.Usage()
		return 2
	}

	priv, err := parsePrivateKeyHex(keyHex)
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing private key: %v\n", err)
		return 2
	}

	token, err := consent.Mint(issuer, subject, strings.Split(scopes, ","), consent.Constraints{
		MaxCalls: maxCalls,
		TTLSec:   ttl,
	}, consent.RiskLevel(ceiling), consent.DirectKey(priv))
	if err != nil {
		fmt.Fprintf(stderr, "Error minting token: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

func runVerifyToken(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-token", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		tokenPath  string
		pubHex     string
		jsonOutput bool
	)
	cmd.StringVar(&tokenPath, "token", "", "Path to token JSON, or - for stdin (REQUIRED)")
	cmd.StringVar(&pubHex, "pubkey", "", "Issuer public key, hex (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if tokenPath == "" || pubHex == "" {
		fmt.Fprintln(stderr, "Error: --token and --pubkey are required")
		cmd.Usage()
		return 2
	}

	var (
		data []byte
		err  error
	)
	if tokenPath == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(tokenPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error reading token: %v\n", err)
		return 2
	}

	var token consent.Token
	if err := json.Unmarshal(data, &token); err != nil {
		fmt.Fprintf(stderr, "Error parsing token: %v\n", err)
		return 2
	}

	verifyErr := consent.Verify(&token, pubHex)
	if jsonOutput {
		result := map[string]any{"valid": verifyErr == nil}
		if verifyErr != nil {
			result["error"] = verifyErr.Error()
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(out))
	} else if verifyErr != nil {
		fmt.Fprintf(stderr, "Token invalid: %v\n", verifyErr)
	} else {
		fmt.Fprintln(stdout, "Token valid")
	}
	if verifyErr != nil {
		return 1
	}
	return 0
}

func runAnchor(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("anchor", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		hash       string
		chain      string
		jsonOutput bool
	)
	cmd.StringVar(&hash, "hash", "", "Hash to anchor (REQUIRED)")
	cmd.StringVar(&chain, "chain", "", "Single chain to anchor on; empty anchors on all")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if hash == "" {
		fmt.Fprintln(stderr, "Error: --hash is required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	manager, cleanup, err := buildManager(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error building anchor manager: %v\n", err)
		return 1
	}
	defer cleanup()

	var records []anchor.Record
	if chain != "" {
		rec, err := manager.Anchor(ctx, hash, chain, nil)
		if err != nil {
			fmt.Fprintf(stderr, "Error anchoring: %v\n", err)
			return 1
		}
		records = []anchor.Record{*rec}
	} else {
		records, err = manager.AnchorAll(ctx, hash, nil)
		if err != nil {
			fmt.Fprintf(stderr, "Error anchoring: %v\n", err)
			return 1
		}
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(records, "", "  ")
		fmt.Fprintln(stdout, string(out))
		return 0
	}
	for _, rec := range records {
		fmt.Fprintf(stdout, "%s: %s\n", rec.Chain, rec.TxHash)
	}
	return 0
}

func runVerifyAnchor(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-anchor", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		hash       string
		txHash     string
		chain      string
		jsonOutput bool
	)
	cmd.StringVar(&hash, "hash", "", "Anchored hash (REQUIRED)")
	cmd.StringVar(&txHash, "tx", "", "Transaction hash (REQUIRED)")
	cmd.StringVar(&chain, "chain", "", "Chain the transaction lives on (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if hash == "" || txHash == "" || chain == "" {
		fmt.Fprintln(stderr, "Error: --hash, --tx, and --chain are required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	manager, cleanup, err := buildManager(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error building anchor manager: %v\n", err)
		return 1
	}
	defer cleanup()

	v := manager.Verify(ctx, hash, txHash, chain)
	if jsonOutput {
		out, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(stdout, string(out))
	} else if v.Valid {
		fmt.Fprintf(stdout, "Anchor valid: %s\n", v.Detail)
	} else {
		fmt.Fprintf(stderr, "Anchor invalid: %s\n", v.Detail)
	}
	if !v.Valid {
		return 1
	}
	return 0
}

func runExportRecords(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export-records", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	store, err := anchor.OpenSQLiteRecordStore(cfg.RecordStore)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening record store: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.All(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Error reading records: %v\n", err)
		return 1
	}
	if records == nil {
		records = []anchor.Record{}
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding records: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

// buildManager wires the anchor manager from chains.yaml and the record
// store. A missing chains file falls back to a single mock provider so the
// CLI stays usable offline.
func buildManager(ctx context.Context) (*anchor.Manager, func(), error) {
	cfg := config.Load()
	logger := slog.Default()

	store, err := anchor.OpenSQLiteRecordStore(cfg.RecordStore)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { store.Close() }

	manager := anchor.NewManager().WithLogger(logger).WithStore(store)

	chains, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		logger.Warn("chains file unavailable, using mock provider", "path", cfg.ChainsFile, "error", err)
		if regErr := manager.Register(anchor.NewMockProvider("mock")); regErr != nil {
			cleanup()
			return nil, nil, regErr
		}
		return manager, cleanup, nil
	}

	for _, c := range chains {
		provider, err := buildProvider(c)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("chain %s: %w", c.Name, err)
		}
		if err := manager.Register(provider); err != nil {
			cleanup()
			return nil, nil, err
		}
		if !provider.Available(ctx) {
			logger.Warn("chain provider unreachable", "chain", c.Name)
		}
	}
	return manager, cleanup, nil
}

// parsePrivateKeyHex accepts either a 64-byte Ed25519 private key or a
// 32-byte seed, both hex encoded.
func parsePrivateKeyHex(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("expected %d or %d bytes, got %d", ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}
}

func buildProvider(c config.ChainProfile) (anchor.Provider, error) {
	switch c.Kind {
	case "evm":
		return evm.New(evm.Config{
			Chain:         c.Name,
			RPCURL:        c.RPCURL,
			ChainID:       c.ChainID,
			PrivateKeyHex: c.Key(),
			MaxRPS:        c.MaxRPS,
		})
	case "solana":
		return solanachain.New(solanachain.Config{
			Chain:            c.Name,
			RPCURL:           c.RPCURL,
			PrivateKeyBase58: c.Key(),
			MaxRPS:           c.MaxRPS,
		})
	case "mock":
		return anchor.NewMockProvider(c.Name), nil
	default:
		return nil, fmt.Errorf("unknown chain kind %q", c.Kind)
	}
}
