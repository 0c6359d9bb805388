package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecretFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, secret, SecretLength)
		assert.True(t, IsValidSecretFormat(secret), "generated secret failed format check: %s", secret)
		assert.False(t, seen[secret], "duplicate secret generated")
		seen[secret] = true
	}
}

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"event":"pet.created","data":{}}`)
	secret := "whsec_0123456789abcdef0123456789abcdef0123456789abcdef"
	ts := int64(1700000000)

	got := Sign(payload, secret, ts)

	// Compute the expected HMAC independently, key without prefix.
	mac := hmac.New(sha256.New, []byte("0123456789abcdef0123456789abcdef0123456789abcdef"))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, got)
}

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"event":"test.ping"}`)
	secret, err := GenerateSecret()
	require.NoError(t, err)

	a := Sign(payload, secret, 1700000000)
	b := Sign(payload, secret, 1700000000)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Sign([]byte(`{"event":"test.pong"}`), secret, 1700000000))
	assert.NotEqual(t, a, Sign(payload, secret, 1700000001))

	other, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, Sign(payload, other, 1700000000))
}

func TestSignPrefixStripped(t *testing.T) {
	payload := []byte(`{}`)
	body := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	assert.Equal(t, Sign(payload, "whsec_"+body, 42), Sign(payload, body, 42))
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"appointment.cancelled","data":{"id":"apt_1"}}`)
	secret, err := GenerateSecret()
	require.NoError(t, err)
	ts := time.Now().Unix()

	sig := Sign(payload, secret, ts)
	assert.True(t, Verify(payload, sig, secret, ts, 0))

	assert.False(t, Verify([]byte(`{"event":"tampered"}`), sig, secret, ts, 0))
	assert.False(t, Verify(payload, sig, "whsec_ffffffffffffffffffffffffffffffffffffffffffffffff", ts, 0))
	assert.False(t, Verify(payload, sig, secret, ts+1, 0))
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"event":"pet.created"}`)
	secret, err := GenerateSecret()
	require.NoError(t, err)

	stale := time.Now().Add(-10 * time.Minute).Unix()
	sig := Sign(payload, secret, stale)

	// Correctly signed but outside the freshness window.
	assert.False(t, Verify(payload, sig, secret, stale, 5*time.Minute))

	// Future timestamps are rejected symmetrically.
	future := time.Now().Add(10 * time.Minute).Unix()
	sig = Sign(payload, secret, future)
	assert.False(t, Verify(payload, sig, secret, future, 5*time.Minute))

	// A wider tolerance accepts the same signature.
	assert.True(t, Verify(payload, sig, secret, future, time.Hour))
}

func TestExtractHash(t *testing.T) {
	sig := Sign([]byte("x"), "whsec_secret", 1)
	hash, ok := ExtractHash(sig)
	require.True(t, ok)
	assert.Len(t, hash, 64)

	for _, malformed := range []string{
		"",
		"sha256=",
		"sha1=" + hash,
		"sha256=" + hash[:63],
		"sha256=" + hash + "ff",
		"sha256=" + hash[:62] + "ZZ",
	} {
		_, ok := ExtractHash(malformed)
		assert.False(t, ok, "expected %q to be rejected", malformed)
	}
}

func TestIsValidSecretFormat(t *testing.T) {
	valid, err := GenerateSecret()
	require.NoError(t, err)
	assert.True(t, IsValidSecretFormat(valid))

	cases := []string{
		"",
		"whsec_",
		"whsec_short",
		valid[:SecretLength-1],
		valid + "a",
		"whsec_" + "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789", // uppercase hex
		"whxxx_" + valid[len("whsec_"):],
	}
	for _, c := range cases {
		assert.False(t, IsValidSecretFormat(c), "expected %q to be rejected", c)
	}
}
