package canonical_test

import (
	"testing"

	"github.com/atel-protocol/atel/pkg/canonical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"y": "v", "x": "u"}}
	b := map[string]any{"nested": map[string]any{"x": "u", "y": "v"}, "a": 1, "b": 2}

	ca, err := canonical.Serialize(a)
	require.NoError(t, err)
	cb, err := canonical.Serialize(b)
	require.NoError(t, err)

	assert.Equal(t, string(ca), string(cb))
}

func TestSerialize_SortsKeysAndCompacts(t *testing.T) {
	out, err := canonical.Serialize(map[string]any{"z": true, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","z":true}`, string(out))
}

func TestSerialize_RespectsStructTags(t *testing.T) {
	type payload struct {
		Second string `json:"second"`
		First  string `json:"first"`
	}
	out, err := canonical.Serialize(payload{Second: "2", First: "1"})
	require.NoError(t, err)
	assert.Equal(t, `{"first":"1","second":"2"}`, string(out))
}

func TestHash_DeterministicAcrossEqualValues(t *testing.T) {
	h1, err := canonical.Hash(map[string]any{"k": []any{1.0, 2.0}, "j": "v"})
	require.NoError(t, err)
	h2, err := canonical.Hash(map[string]any{"j": "v", "k": []any{1.0, 2.0}})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestSignVerify_RoundTrip(t *testing.T) {
	pub, priv, err := canonical.GenerateKeypair()
	require.NoError(t, err)

	payload := []byte(`{"a":1}`)
	sig := canonical.Sign(payload, priv)

	assert.True(t, canonical.Verify(payload, sig, canonical.PublicKeyHex(pub)))
	assert.False(t, canonical.Verify([]byte(`{"a":2}`), sig, canonical.PublicKeyHex(pub)))
}

func TestVerify_MalformedInputs(t *testing.T) {
	pub, priv, err := canonical.GenerateKeypair()
	require.NoError(t, err)
	sig := canonical.Sign([]byte("x"), priv)

	assert.False(t, canonical.Verify([]byte("x"), "not-hex", canonical.PublicKeyHex(pub)))
	assert.False(t, canonical.Verify([]byte("x"), sig, "not-hex"))
	assert.False(t, canonical.Verify([]byte("x"), sig, "abcd")) // wrong key size
}

func TestDID_RoundTrip(t *testing.T) {
	pub, _, err := canonical.GenerateKeypair()
	require.NoError(t, err)

	did := canonical.CreateDID(pub)
	assert.True(t, len(did) > len(canonical.DIDPrefix))

	parsed, err := canonical.ParseDID(did)
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), []byte(parsed))
}

func TestParseDID_Malformed(t *testing.T) {
	cases := []struct {
		name string
		did  string
	}{
		{"wrong prefix", "did:web:ed25519:abcd"},
		{"too few segments", "did:atel:abcd"},
		{"too many segments", "did:atel:ed25519:abcd:extra"},
		{"unknown algorithm", "did:atel:secp256k1:abcd"},
		{"not hex", "did:atel:ed25519:zzzz"},
		{"wrong key size", "did:atel:ed25519:abcd"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := canonical.ParseDID(tc.did)
			assert.ErrorIs(t, err, canonical.ErrInvalidDID)
		})
	}
}
