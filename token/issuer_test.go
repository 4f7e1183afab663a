package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEdIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	iss, err := NewIssuer(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "merchkit",
		Audience:      "merchkit-api",
	})
	require.NoError(t, err)
	return iss
}

func TestIssuerSignParseRoundtrip(t *testing.T) {
	iss := newEdIssuer(t, time.Minute)

	signed, err := iss.Sign("id-1", "alice@example.com", []string{"product:read", "cart:manage"})
	require.NoError(t, err)

	claims, err := iss.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "id-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, []string{"product:read", "cart:manage"}, claims.Perms)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "merchkit", claims.Issuer)
}

func TestIssuerTokensAreUnique(t *testing.T) {
	iss := newEdIssuer(t, time.Minute)

	a, err := iss.Sign("id-1", "alice@example.com", nil)
	require.NoError(t, err)
	b, err := iss.Sign("id-1", "alice@example.com", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIssuerRejectsExpired(t *testing.T) {
	iss := newEdIssuer(t, time.Nanosecond)

	signed, err := iss.Sign("id-1", "alice@example.com", nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = iss.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuerRejectsForeignSignature(t *testing.T) {
	minting := newEdIssuer(t, time.Minute)
	verifying := newEdIssuer(t, time.Minute)

	signed, err := minting.Sign("id-1", "alice@example.com", nil)
	require.NoError(t, err)

	_, err = verifying.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuerRejectsGarbage(t *testing.T) {
	iss := newEdIssuer(t, time.Minute)
	for _, bad := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := iss.Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, "input %q", bad)
	}
}

func TestIssuerCrossAlgorithmRejected(t *testing.T) {
	hmac, err := NewIssuer(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "merchkit",
	})
	require.NoError(t, err)

	signed, err := hmac.Sign("id-1", "alice@example.com", nil)
	require.NoError(t, err)

	ed := newEdIssuer(t, time.Minute)
	_, err = ed.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerValidation(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub}},
		{"hs256 without secret", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}},
		{"ed25519 bad private key", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("short"), PublicKey: pub}},
		{"ed25519 bad public key", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: []byte("short")}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: priv}},
		{"excessive leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Leeway: time.Hour}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIssuer(tc.cfg)
			assert.Error(t, err)
		})
	}
}
