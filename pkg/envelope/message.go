// Package envelope implements the signed ATEL message wrapper and the replay
// protection that guards it. A message is created once, signed over the
// canonical form of every field except the signature, and transmitted as a
// unit; verification returns structured results with distinct reason strings
// so transport handlers can map outcomes to status codes without
// exception-driven control flow.
package envelope

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atel-protocol/atel/pkg/canonical"
	"github.com/google/uuid"
)

// Version is the envelope version tag. Exactly one value is currently valid.
const Version = "ATEL/1.0"

// MessageType is the closed set of message kinds.
type MessageType string

const (
	TypeDelegationRequest  MessageType = "delegation_request"
	TypeDelegationResponse MessageType = "delegation_response"
	TypeConsentGrant       MessageType = "consent_grant"
	TypeExecutionProof     MessageType = "execution_proof"
	TypeTrustQuery         MessageType = "trust_query"
	TypeError              MessageType = "error"
	TypePing               MessageType = "ping"
)

var validTypes = map[MessageType]bool{
	TypeDelegationRequest:  true,
	TypeDelegationResponse: true,
	TypeConsentGrant:       true,
	TypeExecutionProof:     true,
	TypeTrustQuery:         true,
	TypeError:              true,
	TypePing:               true,
}

// Error kinds.
var (
	ErrEnvelope      = errors.New("envelope")
	ErrInvalidJSON   = fmt.Errorf("%w: not valid JSON", ErrEnvelope)
	ErrMissingFields = fmt.Errorf("%w: missing required fields", ErrEnvelope)
	ErrUnknownType   = fmt.Errorf("%w: unknown message type", ErrEnvelope)
)

// timestampLayout renders UTC with millisecond precision, matching what the
// rest of the protocol family emits.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is the signed transport wrapper. Payload is opaque to the
// envelope; signatures cover its canonical JSON form, so a JSON round-trip
// through any transport keeps the message verifiable.
type Message struct {
	Envelope  string      `json:"envelope"`
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Timestamp string      `json:"timestamp"`
	Nonce     string      `json:"nonce"`
	Payload   any         `json:"payload"`
	Signature string      `json:"signature"`
}

func (m *Message) signingPayload() ([]byte, error) {
	body := struct {
		Envelope  string      `json:"envelope"`
		Type      MessageType `json:"type"`
		From      string      `json:"from"`
		To        string      `json:"to"`
		Timestamp string      `json:"timestamp"`
		Nonce     string      `json:"nonce"`
		Payload   any         `json:"payload"`
	}{m.Envelope, m.Type, m.From, m.To, m.Timestamp, m.Nonce, m.Payload}
	return canonical.Serialize(body)
}

// Create builds and signs a message from sender to recipient.
func Create(typ MessageType, from, to string, payload any, priv ed25519.PrivateKey) (*Message, error) {
	return CreateAt(typ, from, to, payload, priv, time.Now())
}

// CreateAt is Create with an explicit clock for deterministic tests.
func CreateAt(typ MessageType, from, to string, payload any, priv ed25519.PrivateKey, now time.Time) (*Message, error) {
	if !validTypes[typ] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	msg := &Message{
		Envelope:  Version,
		Type:      typ,
		From:      from,
		To:        to,
		Timestamp: now.UTC().Format(timestampLayout),
		Nonce:     uuid.NewString(),
		Payload:   payload,
	}
	body, err := msg.signingPayload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	msg.Signature = canonical.Sign(body, priv)
	return msg, nil
}

// VerifyOptions tunes message verification.
type VerifyOptions struct {
	// MaxAge is how old a message may be before it is rejected.
	// Zero means the 5 minute default.
	MaxAge time.Duration
	// SkipTimestampCheck disables freshness checks entirely (offline
	// verification of archived messages).
	SkipTimestampCheck bool
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// DefaultMaxAge is the default freshness window for incoming messages.
const DefaultMaxAge = 5 * time.Minute

// futureSkewTolerance absorbs clock skew between peers for messages stamped
// slightly ahead of local time.
const futureSkewTolerance = 30 * time.Second

// VerifyResult is the structured outcome of message verification. Reason is
// empty when Valid.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func invalid(format string, args ...any) VerifyResult {
	return VerifyResult{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

// Verify checks a received message against the sender's hex-encoded public
// key. Each failure mode yields a distinct reason; it never panics and never
// returns an error.
func Verify(msg *Message, senderPubHex string, opts VerifyOptions) VerifyResult {
	if msg == nil {
		return invalid("message is nil")
	}
	if msg.Envelope != Version {
		return invalid("unknown envelope version %q", msg.Envelope)
	}
	if msg.From == "" {
		return invalid("missing from field")
	}
	if msg.To == "" {
		return invalid("missing to field")
	}
	if msg.Type == "" {
		return invalid("missing type field")
	}
	if msg.Nonce == "" {
		return invalid("missing nonce field")
	}

	if !opts.SkipTimestampCheck {
		clock := opts.Clock
		if clock == nil {
			clock = time.Now
		}
		maxAge := opts.MaxAge
		if maxAge == 0 {
			maxAge = DefaultMaxAge
		}
		ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
		if err != nil {
			return invalid("unparsable timestamp %q", msg.Timestamp)
		}
		now := clock()
		if age := now.Sub(ts); age > maxAge {
			return invalid("message too old: age %s exceeds %s", age.Truncate(time.Millisecond), maxAge)
		}
		if ts.Sub(now) > futureSkewTolerance {
			return invalid("message timestamp is in the future")
		}
	}

	body, err := msg.signingPayload()
	if err != nil {
		return invalid("cannot canonicalize message: %v", err)
	}
	if !canonical.Verify(body, msg.Signature, senderPubHex) {
		return invalid("signature verification failed")
	}
	return VerifyResult{Valid: true}
}

// Serialize renders the message as JSON for transport.
func Serialize(msg *Message) ([]byte, error) {
	out, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	return out, nil
}

// Deserialize parses a transported message. It fails with an envelope error
// when the text is not JSON or the envelope/type/from fields are absent;
// signature and freshness checks are Verify's job.
func Deserialize(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ErrInvalidJSON
	}
	if msg.Envelope == "" || msg.Type == "" || msg.From == "" {
		return nil, ErrMissingFields
	}
	return &msg, nil
}
