// Package signature implements HMAC-SHA256 signing and verification for
// outbound webhook payloads, plus generation of the per-endpoint shared
// secrets the signatures are keyed with.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// SecretPrefix marks Pawtrack webhook secrets so they are recognizable
	// in configuration and logs.
	SecretPrefix = "whsec_"

	// secretHexLen is the number of hex characters in the secret body.
	secretHexLen = 48

	// SecretLength is the total length of a well-formed secret.
	SecretLength = len(SecretPrefix) + secretHexLen

	// SignaturePrefix is the scheme marker on every signature header value.
	SignaturePrefix = "sha256="

	// hashHexLen is the hex length of a SHA-256 digest.
	hashHexLen = sha256.Size * 2

	// DefaultTolerance is the freshness window applied by Verify when the
	// caller passes no explicit tolerance.
	DefaultTolerance = 5 * time.Minute
)

// GenerateSecret returns a new endpoint signing secret of the form
// "whsec_" + 48 lowercase hex characters, sourced from crypto/rand.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretHexLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

// Sign computes the HMAC-SHA256 signature over "{timestamp}.{payload}" and
// returns it as "sha256=<64 lowercase hex>". The secret prefix is stripped
// before keying so signatures match whether or not callers store the prefix.
func Sign(payload []byte, secret string, timestamp int64) string {
	key := strings.TrimPrefix(secret, SecretPrefix)
	mac := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature for the payload/secret/timestamp
// triple and compares it in constant time, additionally rejecting timestamps
// older or newer than the tolerance window. Both checks must pass.
func Verify(payload []byte, sig, secret string, timestamp int64, tolerance time.Duration) bool {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	skew := time.Now().Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > tolerance {
		return false
	}

	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// ExtractHash parses a "sha256=<hex>" signature and returns the hex digest.
// It returns false for a wrong prefix, wrong length, or non-hex body.
func ExtractHash(sig string) (string, bool) {
	if !strings.HasPrefix(sig, SignaturePrefix) {
		return "", false
	}
	body := sig[len(SignaturePrefix):]
	if len(body) != hashHexLen || !isLowerHex(body) {
		return "", false
	}
	return body, true
}

// IsValidSecretFormat reports whether secret has the exact structure produced
// by GenerateSecret. Malformed secrets are rejected before any cryptographic
// use.
func IsValidSecretFormat(secret string) bool {
	if len(secret) != SecretLength || !strings.HasPrefix(secret, SecretPrefix) {
		return false
	}
	return isLowerHex(secret[len(SecretPrefix):])
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
