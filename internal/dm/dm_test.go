package dm

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanonicalPair(t *testing.T) {
	t.Parallel()

	a := uuid.MustParse("00000000-0000-7000-8000-000000000001")
	b := uuid.MustParse("00000000-0000-7000-8000-000000000002")

	gotA, gotB := CanonicalPair(a, b)
	if gotA != a || gotB != b {
		t.Errorf("CanonicalPair(a, b) = (%s, %s), want (%s, %s)", gotA, gotB, a, b)
	}

	gotA, gotB = CanonicalPair(b, a)
	if gotA != a || gotB != b {
		t.Errorf("CanonicalPair(b, a) = (%s, %s), want (%s, %s)", gotA, gotB, a, b)
	}
}

func TestConversationPeer(t *testing.T) {
	t.Parallel()

	a := uuid.Must(uuid.NewV7())
	b := uuid.Must(uuid.NewV7())
	userA, userB := CanonicalPair(a, b)
	conv := Conversation{UserA: userA, UserB: userB}

	if got := conv.Peer(a); got != b {
		t.Errorf("Peer(a) = %s, want %s", got, b)
	}
	if got := conv.Peer(b); got != a {
		t.Errorf("Peer(b) = %s, want %s", got, a)
	}
	if !conv.HasParticipant(a) || !conv.HasParticipant(b) {
		t.Error("HasParticipant() = false for a participant")
	}
	if conv.HasParticipant(uuid.Must(uuid.NewV7())) {
		t.Error("HasParticipant() = true for a stranger")
	}
}

func TestMessageToModelNonNilSlices(t *testing.T) {
	t.Parallel()

	msg := Message{ID: uuid.Must(uuid.NewV7())}
	got := msg.ToModel()
	if got.Attachments == nil || got.Reactions == nil {
		t.Error("ToModel() returned nil slices, want empty")
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input int
		want  int
	}{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{10, 10},
		{MaxLimit + 50, MaxLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.input); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestScanConversation(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("00000000-0000-7000-8000-000000000010")
	userA := uuid.MustParse("00000000-0000-7000-8000-000000000011")
	userB := uuid.MustParse("00000000-0000-7000-8000-000000000012")
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastAt := created.Add(time.Hour)

	fill := func(last any) func(dest ...any) error {
		return func(dest ...any) error {
			*dest[0].(*uuid.UUID) = id
			*dest[1].(*uuid.UUID) = userA
			*dest[2].(*uuid.UUID) = userB
			if t, ok := last.(time.Time); ok {
				*dest[3].(*sql.NullTime) = sql.NullTime{Time: t, Valid: true}
			}
			*dest[4].(*time.Time) = created
			return nil
		}
	}

	t.Run("no messages yet", func(t *testing.T) {
		t.Parallel()
		conv, err := scanConversation(fill(nil))
		if err != nil {
			t.Fatalf("scanConversation() error = %v", err)
		}
		if conv.ID != id || conv.UserA != userA || conv.UserB != userB {
			t.Errorf("scanConversation() = %+v, want ids %s/%s/%s", conv, id, userA, userB)
		}
		if conv.LastMessageAt != nil {
			t.Errorf("LastMessageAt = %v, want nil", conv.LastMessageAt)
		}
		if !conv.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", conv.CreatedAt, created)
		}
	})

	t.Run("with last message", func(t *testing.T) {
		t.Parallel()
		conv, err := scanConversation(fill(lastAt))
		if err != nil {
			t.Fatalf("scanConversation() error = %v", err)
		}
		if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(lastAt) {
			t.Errorf("LastMessageAt = %v, want %v", conv.LastMessageAt, lastAt)
		}
	})

	t.Run("scan error passes through", func(t *testing.T) {
		t.Parallel()
		want := errors.New("row gone")
		if _, err := scanConversation(func(...any) error { return want }); !errors.Is(err, want) {
			t.Errorf("scanConversation() error = %v, want %v", err, want)
		}
	})
}
