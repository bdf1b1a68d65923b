package server

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   *string
		wantErr bool
	}{
		{"nil", nil, false},
		{"empty after trim", ptr("   "), true},
		{"one char", ptr("A"), false},
		{"100 chars", ptr(strings.Repeat("a", 100)), false},
		{"101 chars", ptr(strings.Repeat("a", 101)), true},
		{"whitespace padded valid", ptr("  hello  "), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && err != ErrNameLength {
				t.Errorf("ValidateName(%v) error = %v, want ErrNameLength", tt.input, err)
			}
		})
	}
}

func TestValidateNameTrims(t *testing.T) {
	t.Parallel()

	name := "  My Server  "
	if err := ValidateName(&name); err != nil {
		t.Fatalf("ValidateName() error = %v", err)
	}
	if name != "My Server" {
		t.Errorf("name = %q, want trimmed %q", name, "My Server")
	}
}

func TestValidateDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   *string
		wantErr bool
	}{
		{"nil", nil, false},
		{"empty", ptr(""), false},
		{"1024 chars", ptr(strings.Repeat("a", 1024)), false},
		{"1025 chars", ptr(strings.Repeat("a", 1025)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateDescription(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDescription(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && err != ErrDescriptionLength {
				t.Errorf("ValidateDescription(%v) error = %v, want ErrDescriptionLength", tt.input, err)
			}
		})
	}
}

func TestServerToModel(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	s := Server{
		ID:          uuid.New(),
		Name:        "Hearth",
		Description: "a quiet place",
		IconURL:     "/files/icons/a.webp",
		AdminUserID: &owner,
		SetupDone:   true,
		CreatedAt:   time.Now().UTC(),
	}

	m := s.ToModel()
	if m.ID != s.ID || m.Name != s.Name || m.Description != s.Description {
		t.Errorf("ToModel() = %+v, want fields of %+v", m, s)
	}
	if m.AdminUserID == nil || *m.AdminUserID != owner {
		t.Errorf("ToModel().AdminUserID = %v, want %v", m.AdminUserID, owner)
	}

	s.AdminUserID = nil
	if got := s.ToModel(); got.AdminUserID != nil {
		t.Errorf("ToModel().AdminUserID = %v, want nil", got.AdminUserID)
	}
}

func ptr(s string) *string { return &s }
