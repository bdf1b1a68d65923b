package api

import (
	"testing"
	"time"

	"github.com/ecto-chat/ecto-server/internal/permission"
)

func TestParseTargetType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		query   string
		want    permission.TargetType
		wantErr bool
	}{
		{name: "role from body", body: "role", want: permission.TargetRole},
		{name: "member from body", body: "member", want: permission.TargetMember},
		{name: "query fallback", body: "", query: "role", want: permission.TargetRole},
		{name: "body wins over query", body: "member", query: "role", want: permission.TargetMember},
		{name: "empty everywhere", body: "", query: "", wantErr: true},
		{name: "unknown value", body: "channel", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseTargetType(tt.body, tt.query)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseTargetType(%q, %q) error = nil, want error", tt.body, tt.query)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTargetType(%q, %q) error = %v", tt.body, tt.query, err)
			}
			if got != tt.want {
				t.Errorf("parseTargetType(%q, %q) = %q, want %q", tt.body, tt.query, got, tt.want)
			}
		})
	}
}

func TestDeleteMessagesCutoff(t *testing.T) {
	t.Parallel()

	t.Run("empty means no deletion", func(t *testing.T) {
		t.Parallel()
		got, err := deleteMessagesCutoff("")
		if err != nil {
			t.Fatalf("deleteMessagesCutoff(\"\") error = %v", err)
		}
		if got != nil {
			t.Errorf("deleteMessagesCutoff(\"\") = %v, want nil", got)
		}
	})

	windows := []struct {
		window string
		d      time.Duration
	}{
		{"1h", time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
	}
	for _, w := range windows {
		t.Run(w.window, func(t *testing.T) {
			t.Parallel()
			before := time.Now().UTC().Add(-w.d)
			got, err := deleteMessagesCutoff(w.window)
			after := time.Now().UTC().Add(-w.d)
			if err != nil {
				t.Fatalf("deleteMessagesCutoff(%q) error = %v", w.window, err)
			}
			if got == nil {
				t.Fatalf("deleteMessagesCutoff(%q) = nil, want cutoff", w.window)
			}
			if got.Before(before) || got.After(after) {
				t.Errorf("deleteMessagesCutoff(%q) = %v, want within [%v, %v]", w.window, got, before, after)
			}
		})
	}

	t.Run("unknown window", func(t *testing.T) {
		t.Parallel()
		if _, err := deleteMessagesCutoff("30m"); err == nil {
			t.Error("deleteMessagesCutoff(\"30m\") error = nil, want error")
		}
	})
}
