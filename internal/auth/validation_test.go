package auth

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{name: "simple", username: "ghost", wantErr: nil},
		{name: "digits and underscore", username: "ghost_42", wantErr: nil},
		{name: "two characters", username: "ab", wantErr: nil},
		{name: "thirty-two characters", username: strings.Repeat("a", 32), wantErr: nil},
		{name: "one character", username: "a", wantErr: ErrUsernameLength},
		{name: "thirty-three characters", username: strings.Repeat("a", 33), wantErr: ErrUsernameLength},
		{name: "empty", username: "", wantErr: ErrUsernameLength},
		{name: "uppercase rejected", username: "Ghost", wantErr: ErrUsernameInvalidChars},
		{name: "period rejected", username: "gh.ost", wantErr: ErrUsernameInvalidChars},
		{name: "space rejected", username: "gh ost", wantErr: ErrUsernameInvalidChars},
		{name: "symbol rejected", username: "ghost!", wantErr: ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := ValidateUsername(tt.username); err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "eight characters", password: "12345678", wantErr: nil},
		{name: "long", password: strings.Repeat("x", 128), wantErr: nil},
		{name: "seven characters", password: "1234567", wantErr: ErrPasswordTooShort},
		{name: "empty", password: "", wantErr: ErrPasswordTooShort},
		{name: "too long", password: strings.Repeat("x", 129), wantErr: ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := ValidatePassword(tt.password); err != tt.wantErr {
				t.Errorf("ValidatePassword(%q) = %v, want %v", tt.password, err, tt.wantErr)
			}
		})
	}
}
