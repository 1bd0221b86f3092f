// Package consent implements the scoped, time-boxed, call-budgeted grant one
// agent issues to another. A token is minted once, signed over its canonical
// JSON body, and is immutable afterwards; pkg/policy consumes it read-only.
package consent

import (
	"errors"
	"fmt"
	"time"

	"github.com/atel-protocol/atel/pkg/canonical"
	"github.com/google/uuid"
)

// Error kinds. ErrConsent is the base every consent failure wraps, so callers
// can branch on the specific reason or catch the whole class with errors.Is.
var (
	ErrConsent            = errors.New("consent")
	ErrEmptyScopes        = fmt.Errorf("%w: scopes must not be empty", ErrConsent)
	ErrInvalidMaxCalls    = fmt.Errorf("%w: max_calls must be >= 1", ErrConsent)
	ErrInvalidTTL         = fmt.Errorf("%w: ttl_sec must be >= 1", ErrConsent)
	ErrInvalidRiskCeiling = fmt.Errorf("%w: unknown risk ceiling", ErrConsent)
	ErrSigner             = fmt.Errorf("%w: signing failed", ErrConsent)
	ErrBadSignature       = fmt.Errorf("%w: signature does not verify", ErrConsent)
	ErrExpired            = fmt.Errorf("%w: token expired", ErrConsent)
	ErrIssuedInFuture     = fmt.Errorf("%w: token issued in the future", ErrConsent)
)

// Constraints bound how much work a token authorizes.
type Constraints struct {
	MaxCalls int   `json:"max_calls"`
	TTLSec   int64 `json:"ttl_sec"`
}

// Token is a signed consent grant from an issuer to an executor. Scope order
// is preserved as minted; duplicates are permitted and harmless.
type Token struct {
	Issuer      string      `json:"iss"`
	Subject     string      `json:"sub"`
	Scopes      []string    `json:"scopes"`
	Constraints Constraints `json:"constraints"`
	RiskCeiling RiskLevel   `json:"risk_ceiling"`
	Nonce       string      `json:"nonce"`
	IssuedAt    int64       `json:"iat"`
	ExpiresAt   int64       `json:"exp"`
	Signature   string      `json:"sig"`
}

// signingPayload is the token body without the signature, in the exact field
// layout both signer and verifier canonicalize.
func (t *Token) signingPayload() ([]byte, error) {
	body := struct {
		Issuer      string      `json:"iss"`
		Subject     string      `json:"sub"`
		Scopes      []string    `json:"scopes"`
		Constraints Constraints `json:"constraints"`
		RiskCeiling RiskLevel   `json:"risk_ceiling"`
		Nonce       string      `json:"nonce"`
		IssuedAt    int64       `json:"iat"`
		ExpiresAt   int64       `json:"exp"`
	}{t.Issuer, t.Subject, t.Scopes, t.Constraints, t.RiskCeiling, t.Nonce, t.IssuedAt, t.ExpiresAt}
	return canonical.Serialize(body)
}

// Mint creates and signs a consent token valid from now for ttl_sec seconds.
func Mint(issuerDID, executorDID string, scopes []string, c Constraints, ceiling RiskLevel, signer TokenSigner) (*Token, error) {
	return MintAt(issuerDID, executorDID, scopes, c, ceiling, signer, time.Now())
}

// MintAt is Mint with an explicit clock for deterministic tests.
func MintAt(issuerDID, executorDID string, scopes []string, c Constraints, ceiling RiskLevel, signer TokenSigner, now time.Time) (*Token, error) {
	if len(scopes) == 0 {
		return nil, ErrEmptyScopes
	}
	if c.MaxCalls < 1 {
		return nil, ErrInvalidMaxCalls
	}
	if c.TTLSec < 1 {
		return nil, ErrInvalidTTL
	}
	if !ceiling.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRiskCeiling, ceiling)
	}

	iat := now.Unix()
	tok := &Token{
		Issuer:      issuerDID,
		Subject:     executorDID,
		Scopes:      scopes,
		Constraints: c,
		RiskCeiling: ceiling,
		Nonce:       uuid.NewString(),
		IssuedAt:    iat,
		ExpiresAt:   iat + c.TTLSec,
	}

	payload, err := tok.signingPayload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConsent, err)
	}
	sig, err := signer.SignPayload(payload)
	if err != nil {
		return nil, err
	}
	tok.Signature = sig
	return tok, nil
}

// Verify checks the token signature against the issuer's hex-encoded public
// key, then the validity window. Signature and structural problems are never
// downgraded: the result is always a specific error or nil.
func Verify(tok *Token, issuerPubHex string) error {
	return VerifyAt(tok, issuerPubHex, time.Now())
}

// VerifyAt is Verify with an explicit clock for deterministic tests.
func VerifyAt(tok *Token, issuerPubHex string, now time.Time) error {
	payload, err := tok.signingPayload()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConsent, err)
	}
	if !canonical.Verify(payload, tok.Signature, issuerPubHex) {
		return ErrBadSignature
	}

	ts := now.Unix()
	if ts >= tok.ExpiresAt {
		return ErrExpired
	}
	if ts < tok.IssuedAt {
		return ErrIssuedInFuture
	}
	return nil
}
