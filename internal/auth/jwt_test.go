package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

func TestNewAccessTokenAndValidate(t *testing.T) {
	userID := uuid.New()
	secret := "test-secret-key-for-jwt"
	version := 3

	tokenStr, err := NewAccessToken(userID, wire.IdentityLocal, &version, secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	claims, err := ValidateAccessToken(tokenStr, secret)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}

	if claims.Subject != userID.String() {
		t.Errorf("Subject = %q, want %q", claims.Subject, userID.String())
	}
	if claims.IdentityType != wire.IdentityLocal {
		t.Errorf("IdentityType = %q, want %q", claims.IdentityType, wire.IdentityLocal)
	}
	if claims.TokenVersion == nil || *claims.TokenVersion != version {
		t.Errorf("TokenVersion = %v, want %d", claims.TokenVersion, version)
	}
}

func TestNewAccessTokenNoVersion(t *testing.T) {
	tokenStr, err := NewAccessToken(uuid.New(), wire.IdentityGlobal, nil, "secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	claims, err := ValidateAccessToken(tokenStr, "secret")
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.TokenVersion != nil {
		t.Errorf("TokenVersion = %v, want nil", claims.TokenVersion)
	}
}

func TestNewAccessTokenEmptySecret(t *testing.T) {
	_, err := NewAccessToken(uuid.New(), wire.IdentityLocal, nil, "", 15*time.Minute)
	if err == nil {
		t.Fatal("NewAccessToken() with empty secret should return error")
	}
}

func TestValidateAccessTokenExpired(t *testing.T) {
	tokenStr, err := NewAccessToken(uuid.New(), wire.IdentityLocal, nil, "test-secret", -1*time.Second)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	_, err = ValidateAccessToken(tokenStr, "test-secret")
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("ValidateAccessToken() error = %v, want token expired", err)
	}
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	tokenStr, err := NewAccessToken(uuid.New(), wire.IdentityLocal, nil, "correct-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	_, err = ValidateAccessToken(tokenStr, "wrong-secret")
	if err == nil {
		t.Fatal("ValidateAccessToken() with wrong secret should return error")
	}
}

func TestValidateAccessTokenWrongAudience(t *testing.T) {
	// A token signed with our secret but minted for another service must be
	// rejected.
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   uuid.New().String(),
		Audience:  jwt.ClaimStrings{"some-other-service"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	_, err = ValidateAccessToken(tokenStr, "shared-secret")
	if err == nil {
		t.Fatal("ValidateAccessToken() with wrong audience should return error")
	}
}

func TestValidateAccessTokenMalformed(t *testing.T) {
	_, err := ValidateAccessToken("not.a.valid.jwt", "secret")
	if err == nil {
		t.Fatal("ValidateAccessToken() with malformed token should return error")
	}
}
