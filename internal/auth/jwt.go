package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Audience is stamped into the aud claim of every token this server issues
// and enforced during validation, so a token minted by another service that
// happens to share a signing secret is still rejected.
const Audience = "ecto-server"

// AccessClaims holds the JWT claims for an access token. IdentityType records
// whether the subject is a central ("global") or local account. TokenVersion
// mirrors the member row's token_version at issue time; bumping the stored
// version invalidates every token carrying the old one.
type AccessClaims struct {
	IdentityType string `json:"identity_type"`
	TokenVersion *int   `json:"tv,omitempty"`
	jwt.RegisteredClaims
}

// NewAccessToken creates a signed JWT access token for the given user.
func NewAccessToken(userID uuid.UUID, identityType string, tokenVersion *int, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret must not be empty")
	}

	now := time.Now()
	claims := AccessClaims{
		IdentityType: identityType,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// ValidateAccessToken parses and validates a JWT access token string,
// enforcing the HMAC signing method and the audience claim.
func ValidateAccessToken(tokenStr, secret string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithAudience(Audience))
	if err != nil {
		return nil, err
	}

	return claims, nil
}
