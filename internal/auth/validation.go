package auth

import "regexp"

var usernameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateUsername checks a username is 2-32 characters of lowercase letters,
// digits, and underscores. Callers lowercase input before validating, keeping
// usernames case-insensitive at the door. len() is used intentionally because
// the charset is ASCII, where byte count equals rune count.
func ValidateUsername(username string) error {
	if len(username) < 2 || len(username) > 32 {
		return ErrUsernameLength
	}
	if !usernameRegex.MatchString(username) {
		return ErrUsernameInvalidChars
	}
	return nil
}

// ValidatePassword checks that a password is between 8 and 128 characters.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if len(password) > 128 {
		return ErrPasswordTooLong
	}
	return nil
}
