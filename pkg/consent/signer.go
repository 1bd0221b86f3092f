package consent

import (
	"crypto/ed25519"
	"fmt"

	"github.com/atel-protocol/atel/pkg/canonical"
)

// TokenSigner produces the issuer signature over a canonical token body.
// The two implementations are deliberately distinct types so a caller cannot
// mix a raw key into a callback convention or vice versa: key custody stays
// wherever the caller put it.
type TokenSigner interface {
	SignPayload(payload []byte) (string, error)
}

// directKeySigner signs locally with an in-memory Ed25519 private key.
type directKeySigner struct {
	priv ed25519.PrivateKey
}

// DirectKey returns a TokenSigner that signs with the given private key.
func DirectKey(priv ed25519.PrivateKey) TokenSigner {
	return directKeySigner{priv: priv}
}

func (s directKeySigner) SignPayload(payload []byte) (string, error) {
	if len(s.priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("%w: private key is %d bytes, want %d", ErrSigner, len(s.priv), ed25519.PrivateKeySize)
	}
	return canonical.Sign(payload, s.priv), nil
}

// delegatedSigner forwards signing to an injected callback, e.g. a remote
// signing service or HSM front end. The callback returns a hex signature.
type delegatedSigner struct {
	sign func(payload []byte) (string, error)
}

// DelegatedSigner returns a TokenSigner backed by a signing callback.
func DelegatedSigner(sign func(payload []byte) (string, error)) TokenSigner {
	return delegatedSigner{sign: sign}
}

func (s delegatedSigner) SignPayload(payload []byte) (string, error) {
	if s.sign == nil {
		return "", fmt.Errorf("%w: nil signing callback", ErrSigner)
	}
	sig, err := s.sign(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigner, err)
	}
	return sig, nil
}
