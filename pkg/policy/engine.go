// Package policy evaluates proposed actions against one consent token.
//
// An Engine is bound 1:1 to a token and owns the mutable call counter for
// that execution. It is rebuilt per execution, never persisted, and assumes a
// single logical flow of control: callers sharing an instance across
// goroutines must serialize Evaluate/RecordCall pairs themselves.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/atel-protocol/atel/pkg/consent"
)

// Effect is the outcome of an evaluation.
type Effect string

const (
	EffectAllow        Effect = "allow"
	EffectDeny         Effect = "deny"
	EffectNeedsConfirm Effect = "needs_confirm"
)

// Error kinds.
var (
	ErrPolicy         = errors.New("policy")
	ErrBudgetExceeded = fmt.Errorf("%w: call budget exceeded", ErrPolicy)
)

// Action is a proposed tool invocation.
type Action struct {
	Tool      string
	Method    string
	DataScope string
	Risk      consent.RiskLevel
}

// requiredScopes derives the two scope strings the token must cover.
func (a Action) requiredScopes() [2]string {
	return [2]string{
		"tool:" + a.Tool + ":" + a.Method,
		"data:" + a.DataScope,
	}
}

// Decision is the structured result of one evaluation.
type Decision struct {
	Effect Effect `json:"effect"`
	Reason string `json:"reason"`
}

// Engine gates tool calls against one consent token. callCount starts at 0
// and only RecordCall advances it; Evaluate never mutates state.
type Engine struct {
	token     *consent.Token
	callCount int
	clock     func() time.Time
}

// NewEngine binds an engine to a verified token. Verification is the
// caller's job (consent.Verify); the engine trusts the token it is given.
func NewEngine(tok *consent.Token) *Engine {
	return &Engine{token: tok, clock: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Evaluate runs the full check pipeline for a proposed action.
//
// Order is deliberate: expiry then budget (cheap, time-insensitive) before
// risk, and risk before scope so a needs_confirm signal is never masked by an
// unrelated scope denial.
func (e *Engine) Evaluate(action Action) Decision {
	return e.evaluate(action, false)
}

// EvaluateConfirmed is Evaluate after explicit operator confirmation: a risk
// exactly one rank above the ceiling is allowed through, everything else is
// unchanged. The engine itself holds no confirmation state.
func (e *Engine) EvaluateConfirmed(action Action) Decision {
	return e.evaluate(action, true)
}

func (e *Engine) evaluate(action Action, confirmed bool) Decision {
	if e.Expired(e.clock()) {
		return Decision{Effect: EffectDeny, Reason: "consent token expired"}
	}
	if e.callCount >= e.token.Constraints.MaxCalls {
		return Decision{Effect: EffectDeny, Reason: "call budget exhausted"}
	}

	ceiling := e.token.RiskCeiling.Rank()
	risk := action.Risk.Rank()
	if risk < 0 {
		return Decision{Effect: EffectDeny, Reason: fmt.Sprintf("unknown action risk %q", action.Risk)}
	}
	if risk > ceiling {
		if risk == ceiling+1 && !confirmed {
			return Decision{
				Effect: EffectNeedsConfirm,
				Reason: fmt.Sprintf("action risk %s is one rank above ceiling %s", action.Risk, e.token.RiskCeiling),
			}
		}
		if risk > ceiling+1 {
			return Decision{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("action risk %s exceeds ceiling %s", action.Risk, e.token.RiskCeiling),
			}
		}
	}

	for _, required := range action.requiredScopes() {
		if !scopeCovered(e.token.Scopes, required) {
			return Decision{Effect: EffectDeny, Reason: fmt.Sprintf("scope %q not granted", required)}
		}
	}

	return Decision{Effect: EffectAllow, Reason: "within consent"}
}

// RecordCall consumes one unit of the call budget. Call it only after a
// successful dispatch, never speculatively.
func (e *Engine) RecordCall() error {
	if e.callCount >= e.token.Constraints.MaxCalls {
		return ErrBudgetExceeded
	}
	e.callCount++
	return nil
}

// Remaining returns how many calls the budget still allows.
func (e *Engine) Remaining() int {
	r := e.token.Constraints.MaxCalls - e.callCount
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether the token's window has closed at the given time.
func (e *Engine) Expired(now time.Time) bool {
	return now.Unix() >= e.token.ExpiresAt
}
