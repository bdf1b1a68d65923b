package auditlog

import (
	"testing"

	"github.com/google/uuid"
)

func TestClampLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input int
		want  int
	}{
		{0, DefaultLimit},
		{-1, DefaultLimit},
		{1, 1},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}

	for _, tt := range tests {
		if got := ClampLimit(tt.input); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestEntryToModel(t *testing.T) {
	t.Parallel()

	targetID := uuid.Must(uuid.NewV7())
	e := Entry{
		ID:         uuid.Must(uuid.NewV7()),
		ActorID:    uuid.Must(uuid.NewV7()),
		Action:     ActionMemberKick,
		TargetType: "member",
		TargetID:   &targetID,
		Details:    map[string]any{"reason": "spam"},
	}
	got := e.ToModel()

	if got.Action != ActionMemberKick {
		t.Errorf("Action = %q, want %q", got.Action, ActionMemberKick)
	}
	if got.TargetID == nil || *got.TargetID != targetID {
		t.Errorf("TargetID = %v, want %s", got.TargetID, targetID)
	}
	if got.Details["reason"] != "spam" {
		t.Errorf("Details = %v, want reason=spam", got.Details)
	}
}
