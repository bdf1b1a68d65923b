package store

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestRebind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{
			name:    "sqlite passes through",
			dialect: DialectSQLite,
			query:   "SELECT id FROM servers WHERE id = ?",
			want:    "SELECT id FROM servers WHERE id = ?",
		},
		{
			name:    "postgres single placeholder",
			dialect: DialectPostgres,
			query:   "SELECT id FROM servers WHERE id = ?",
			want:    "SELECT id FROM servers WHERE id = $1",
		},
		{
			name:    "postgres numbers in order",
			dialect: DialectPostgres,
			query:   "INSERT INTO reactions (message_id, user_id, emoji) VALUES (?, ?, ?)",
			want:    "INSERT INTO reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)",
		},
		{
			name:    "postgres double digit placeholders",
			dialect: DialectPostgres,
			query:   "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			want:    "VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		},
		{
			name:    "postgres no placeholders",
			dialect: DialectPostgres,
			query:   "SELECT count(*) FROM members",
			want:    "SELECT count(*) FROM members",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := rebind(tt.dialect, tt.query); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGooseLogger_Fatalf_LogsAtErrorLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	gl := gooseLogger{log: logger}

	gl.Fatalf("migration %d failed: %s", 42, "syntax error")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry["level"] != "error" {
		t.Errorf("level = %q, want %q", entry["level"], "error")
	}
	if msg, ok := entry["message"].(string); !ok || msg != "migration 42 failed: syntax error" {
		t.Errorf("message = %q, want %q", entry["message"], "migration 42 failed: syntax error")
	}
}

func TestGooseLogger_Printf_LogsAtInfoLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	gl := gooseLogger{log: logger}

	gl.Printf("applied migration %d", 7)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry["level"] != "info" {
		t.Errorf("level = %q, want %q", entry["level"], "info")
	}
	if msg, ok := entry["message"].(string); !ok || msg != "applied migration 7" {
		t.Errorf("message = %q, want %q", entry["message"], "applied migration 7")
	}
}
