package auth

import "errors"

// Sentinel errors for the auth package.
var (
	ErrUsernameLength        = errors.New("username must be between 2 and 32 characters")
	ErrUsernameInvalidChars  = errors.New("username may only contain lowercase letters, digits, and underscores")
	ErrPasswordTooShort      = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong       = errors.New("password must be at most 128 characters")
	ErrInvalidCredentials    = errors.New("invalid username or password")
	ErrLocalAccountsDisabled = errors.New("local accounts are disabled on this server")
	ErrInvalidToken          = errors.New("invalid or expired token")
	// ErrTokenRevoked is returned when a token's embedded version no longer
	// matches the member row, which happens after moderation bumps it.
	ErrTokenRevoked = errors.New("token has been revoked")
)
