package policy_test

import (
	"testing"
	"time"

	"github.com/atel-protocol/atel/pkg/canonical"
	"github.com/atel-protocol/atel/pkg/consent"
	"github.com/atel-protocol/atel/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0)

func mintToken(t *testing.T, scopes []string, maxCalls int, ttlSec int64, ceiling consent.RiskLevel) *consent.Token {
	t.Helper()
	pub, priv, err := canonical.GenerateKeypair()
	require.NoError(t, err)
	tok, err := consent.MintAt(canonical.CreateDID(pub), "did:atel:ed25519:ab", scopes,
		consent.Constraints{MaxCalls: maxCalls, TTLSec: ttlSec}, ceiling, consent.DirectKey(priv), testNow)
	require.NoError(t, err)
	return tok
}

func frozenEngine(tok *consent.Token) *policy.Engine {
	return policy.NewEngine(tok).WithClock(func() time.Time { return testNow })
}

func TestScopeMatches(t *testing.T) {
	cases := []struct {
		granted, requested string
		want               bool
	}{
		{"tool:http", "tool:http:get", true},
		{"tool:http:get", "tool:http", false},
		{"tool:http:get", "tool:http:get", true},
		{"tool:http", "tool:httpx", false},
		{"tool", "tool:http:get", true},
		{"data:public_web", "data:public_web:read", true},
		{"", "tool:http", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, policy.ScopeMatches(tc.granted, tc.requested),
			"granted=%q requested=%q", tc.granted, tc.requested)
	}
}

func TestEvaluate_Allow(t *testing.T) {
	tok := mintToken(t, []string{"tool:http", "data:public_web"}, 2, 60, consent.RiskLow)
	eng := frozenEngine(tok)

	d := eng.Evaluate(policy.Action{Tool: "http", Method: "get", DataScope: "public_web:read", Risk: consent.RiskLow})
	assert.Equal(t, policy.EffectAllow, d.Effect)
}

func TestEvaluate_ExpiredDeniesEverything(t *testing.T) {
	tok := mintToken(t, []string{"tool:http"}, 5, 60, consent.RiskCritical)
	eng := policy.NewEngine(tok).WithClock(func() time.Time { return testNow.Add(61 * time.Second) })

	d := eng.Evaluate(policy.Action{Tool: "http", Method: "get", DataScope: "x", Risk: consent.RiskLow})
	assert.Equal(t, policy.EffectDeny, d.Effect)
	assert.Contains(t, d.Reason, "expired")
}

func TestEvaluate_BudgetDenyRegardlessOfScopeAndRisk(t *testing.T) {
	tok := mintToken(t, []string{"tool:http", "data:public_web"}, 1, 60, consent.RiskCritical)
	eng := frozenEngine(tok)

	require.NoError(t, eng.RecordCall())

	d := eng.Evaluate(policy.Action{Tool: "http", Method: "get", DataScope: "public_web:read", Risk: consent.RiskLow})
	assert.Equal(t, policy.EffectDeny, d.Effect)
	assert.Contains(t, d.Reason, "budget")
}

func TestEvaluate_RiskLadder(t *testing.T) {
	tok := mintToken(t, []string{"tool", "data"}, 10, 60, consent.RiskLow)
	eng := frozenEngine(tok)
	action := func(r consent.RiskLevel) policy.Action {
		return policy.Action{Tool: "http", Method: "get", DataScope: "public", Risk: r}
	}

	assert.Equal(t, policy.EffectAllow, eng.Evaluate(action(consent.RiskLow)).Effect)
	// Exactly one rank above the ceiling: escalate, do not deny.
	assert.Equal(t, policy.EffectNeedsConfirm, eng.Evaluate(action(consent.RiskMedium)).Effect)
	// Two or more ranks above: deny.
	assert.Equal(t, policy.EffectDeny, eng.Evaluate(action(consent.RiskHigh)).Effect)
	assert.Equal(t, policy.EffectDeny, eng.Evaluate(action(consent.RiskCritical)).Effect)
	// Unknown risk fails closed.
	assert.Equal(t, policy.EffectDeny, eng.Evaluate(action(consent.RiskLevel("extreme"))).Effect)
}

func TestEvaluateConfirmed_AllowsOneRankExcessOnly(t *testing.T) {
	tok := mintToken(t, []string{"tool", "data"}, 10, 60, consent.RiskLow)
	eng := frozenEngine(tok)
	action := func(r consent.RiskLevel) policy.Action {
		return policy.Action{Tool: "http", Method: "get", DataScope: "public", Risk: r}
	}

	assert.Equal(t, policy.EffectAllow, eng.EvaluateConfirmed(action(consent.RiskMedium)).Effect)
	// Confirmation does not unlock two ranks above.
	assert.Equal(t, policy.EffectDeny, eng.EvaluateConfirmed(action(consent.RiskHigh)).Effect)
}

func TestEvaluate_RiskCheckedBeforeScope(t *testing.T) {
	// Scope does not cover the action, but risk is one rank above: the
	// needs_confirm signal must not be masked by the scope denial.
	tok := mintToken(t, []string{"tool:ftp"}, 10, 60, consent.RiskLow)
	eng := frozenEngine(tok)

	d := eng.Evaluate(policy.Action{Tool: "http", Method: "get", DataScope: "public", Risk: consent.RiskMedium})
	assert.Equal(t, policy.EffectNeedsConfirm, d.Effect)
}

func TestEvaluate_ScopeDenials(t *testing.T) {
	tok := mintToken(t, []string{"tool:http:get", "data:public_web:read"}, 10, 60, consent.RiskLow)
	eng := frozenEngine(tok)

	// Method not covered.
	d := eng.Evaluate(policy.Action{Tool: "http", Method: "post", DataScope: "public_web:read", Risk: consent.RiskLow})
	assert.Equal(t, policy.EffectDeny, d.Effect)
	assert.Contains(t, d.Reason, "tool:http:post")

	// Data scope not covered.
	d = eng.Evaluate(policy.Action{Tool: "http", Method: "get", DataScope: "private_db:read", Risk: consent.RiskLow})
	assert.Equal(t, policy.EffectDeny, d.Effect)
	assert.Contains(t, d.Reason, "data:private_db:read")
}

func TestRecordCall_ExhaustionAndRemaining(t *testing.T) {
	tok := mintToken(t, []string{"tool:http"}, 2, 60, consent.RiskLow)
	eng := frozenEngine(tok)

	assert.Equal(t, 2, eng.Remaining())
	require.NoError(t, eng.RecordCall())
	require.NoError(t, eng.RecordCall())
	assert.Equal(t, 0, eng.Remaining())

	err := eng.RecordCall()
	assert.ErrorIs(t, err, policy.ErrBudgetExceeded)
	assert.ErrorIs(t, err, policy.ErrPolicy)
}

// End-to-end scenario from the protocol conformance set: one-call token over
// http.get on public_web, low ceiling.
func TestEndToEnd_SingleCallConsent(t *testing.T) {
	pub, priv, err := canonical.GenerateKeypair()
	require.NoError(t, err)
	tok, err := consent.MintAt(canonical.CreateDID(pub), "did:atel:ed25519:ab",
		[]string{"tool:http:get", "data:public_web:read"},
		consent.Constraints{MaxCalls: 1, TTLSec: 60}, consent.RiskLow, consent.DirectKey(priv), testNow)
	require.NoError(t, err)
	require.NoError(t, consent.VerifyAt(tok, canonical.PublicKeyHex(pub), testNow))

	eng := frozenEngine(tok)
	action := policy.Action{Tool: "http", Method: "get", DataScope: "public_web:read", Risk: consent.RiskLow}

	assert.Equal(t, policy.EffectAllow, eng.Evaluate(action).Effect)
	require.NoError(t, eng.RecordCall())

	d := eng.Evaluate(action)
	assert.Equal(t, policy.EffectDeny, d.Effect)
	assert.Contains(t, d.Reason, "budget")
}
