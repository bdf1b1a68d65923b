package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewSecretToken returns n random bytes hex-encoded. Used for webhook tokens
// and other bearer secrets that live outside the JWT layer.
func NewSecretToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DigestToken computes an HMAC-SHA256 of a bearer secret under the server
// signing key and returns the hex-encoded digest. Only digests are stored, so
// a leaked database does not leak usable webhook tokens.
func DigestToken(token, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyTokenDigest reports in constant time whether a presented secret
// matches the stored digest.
func VerifyTokenDigest(token, secret, digest string) bool {
	return hmac.Equal([]byte(DigestToken(token, secret)), []byte(digest))
}
