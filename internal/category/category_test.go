package category

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   *string
		wantErr bool
		want    string
	}{
		{"nil means no change", nil, false, ""},
		{"valid", ptr("General"), false, "General"},
		{"trims", ptr("  Voice Rooms  "), false, "Voice Rooms"},
		{"100 chars", ptr(strings.Repeat("a", 100)), false, strings.Repeat("a", 100)},
		{"101 chars", ptr(strings.Repeat("a", 101)), true, ""},
		{"empty", ptr(""), true, ""},
		{"whitespace only", ptr("   "), true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNameLength) {
				t.Errorf("ValidateName() error = %v, want ErrNameLength", err)
			}
			if err == nil && tt.input != nil && *tt.input != tt.want {
				t.Errorf("name = %q, want %q", *tt.input, tt.want)
			}
		})
	}
}

func TestValidatePosition(t *testing.T) {
	t.Parallel()

	if err := ValidatePosition(nil); err != nil {
		t.Errorf("ValidatePosition(nil) = %v, want nil", err)
	}
	zero := 0
	if err := ValidatePosition(&zero); err != nil {
		t.Errorf("ValidatePosition(0) = %v, want nil", err)
	}
	neg := -3
	if err := ValidatePosition(&neg); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("ValidatePosition(-3) = %v, want ErrInvalidPosition", err)
	}
}

func TestCategoryToModel(t *testing.T) {
	t.Parallel()

	c := Category{ID: uuid.New(), Name: "Text Channels", Position: 2}
	m := c.ToModel()
	if m.ID != c.ID || m.Name != c.Name || m.Position != 2 {
		t.Errorf("ToModel() = %+v, want fields of %+v", m, c)
	}
}

func ptr(s string) *string { return &s }
