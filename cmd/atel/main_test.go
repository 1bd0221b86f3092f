package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/atel-protocol/atel/pkg/canonical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"atel", "no-such-command"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Unknown command")
}

func TestRun_Help(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"atel", "help"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "keygen")
	assert.Contains(t, out.String(), "verify-anchor")
}

func TestKeygen_JSON(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"atel", "keygen", "--json"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var result map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Contains(t, result["did"], "did:atel:ed25519:")
	assert.Len(t, result["public_key"], 64)
	assert.Len(t, result["private_key"], 128)
}

func TestMintAndVerifyToken_RoundTrip(t *testing.T) {
	pub, priv, err := canonical.GenerateKeypair()
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	code := Run([]string{
		"atel", "mint",
		"--key", fmt.Sprintf("%x", []byte(priv)),
		"--issuer", canonical.CreateDID(pub),
		"--subject", "did:atel:ed25519:ff00",
		"--scopes", "tool:http:get,data:public_web:read",
		"--max-calls", "3",
		"--ttl", "120",
		"--risk", "medium",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	tokenPath := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(tokenPath, out.Bytes(), 0o600))

	out.Reset()
	errOut.Reset()
	code = Run([]string{
		"atel", "verify-token",
		"--token", tokenPath,
		"--pubkey", canonical.PublicKeyHex(pub),
	}, &out, &errOut)
	assert.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "Token valid")

	// Wrong issuer key fails with a nonzero exit.
	otherPub, _, err := canonical.GenerateKeypair()
	require.NoError(t, err)
	out.Reset()
	errOut.Reset()
	code = Run([]string{
		"atel", "verify-token",
		"--token", tokenPath,
		"--pubkey", canonical.PublicKeyHex(otherPub),
	}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "signature")
}

func TestMint_MissingFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"atel", "mint", "--issuer", "did:atel:ed25519:aa"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "required")
}

func TestAnchorAndVerify_MockFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ATEL_RECORD_STORE", filepath.Join(dir, "records.db"))
	t.Setenv("ATEL_CHAINS_FILE", filepath.Join(dir, "absent.yaml"))

	var out, errOut bytes.Buffer
	code := Run([]string{"atel", "anchor", "--hash", "h1", "--json"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var records []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "mock", records[0]["chain"])
	txHash := records[0]["txHash"].(string)

	// The record store persists across invocations even though the mock
	// provider is rebuilt fresh each time.
	out.Reset()
	errOut.Reset()
	code = Run([]string{"atel", "export-records"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &exported))
	require.Len(t, exported, 1)
	assert.Equal(t, txHash, exported[0]["txHash"])
}
