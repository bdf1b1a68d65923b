package message

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		maxLength int
		want      string
		wantErr   error
	}{
		{"valid simple", "hello world", 2000, "hello world", nil},
		{"trims whitespace", "  hello  ", 2000, "hello", nil},
		{"empty allowed", "", 2000, "", nil},
		{"whitespace only trims to empty", "   ", 2000, "", nil},
		{"exact max length", strings.Repeat("a", 100), 100, strings.Repeat("a", 100), nil},
		{"multibyte at limit", strings.Repeat("日", 50), 50, strings.Repeat("日", 50), nil},
		{"exceeds max length", strings.Repeat("a", 101), 100, "", ErrContentTooLong},
		{"multibyte exceeds max", strings.Repeat("日", 51), 50, "", ErrContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ValidateContent(tt.input, tt.maxLength)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateContent(%q, %d) error = %v, wantErr %v", tt.input, tt.maxLength, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ValidateContent(%q, %d) = %q, want %q", tt.input, tt.maxLength, got, tt.want)
			}
		})
	}
}

func TestValidateEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"unicode emoji", "👍", "👍", nil},
		{"custom token", ":partyparrot:", ":partyparrot:", nil},
		{"trims whitespace", " 🎉 ", "🎉", nil},
		{"empty", "", "", ErrInvalidEmoji},
		{"whitespace only", "   ", "", ErrInvalidEmoji},
		{"too long", strings.Repeat("x", MaxEmojiLength+1), "", ErrInvalidEmoji},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ValidateEmoji(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEmoji(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ValidateEmoji(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input int
		want  int
	}{
		{"zero defaults", 0, DefaultLimit},
		{"negative defaults", -1, DefaultLimit},
		{"within range", 25, 25},
		{"at minimum boundary", 1, 1},
		{"at maximum boundary", MaxLimit, MaxLimit},
		{"exceeds maximum", MaxLimit + 1, MaxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ClampLimit(tt.input); got != tt.want {
				t.Errorf("ClampLimit(%d) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMentions(t *testing.T) {
	t.Parallel()

	userA := uuid.MustParse("019501aa-0000-7000-8000-000000000001")
	userB := uuid.MustParse("019501aa-0000-7000-8000-000000000002")
	roleA := uuid.MustParse("019501aa-0000-7000-8000-00000000000a")
	chanA := uuid.MustParse("019501aa-0000-7000-8000-0000000000c1")

	tests := []struct {
		name         string
		content      string
		wantEveryone bool
		wantUsers    []uuid.UUID
		wantRoles    []uuid.UUID
		wantChannels []uuid.UUID
	}{
		{
			name:    "plain text",
			content: "no mentions here",
		},
		{
			name:      "single user",
			content:   "hey <@" + userA.String() + "> look at this",
			wantUsers: []uuid.UUID{userA},
		},
		{
			name:      "two users in order",
			content:   "<@" + userB.String() + "> and <@" + userA.String() + ">",
			wantUsers: []uuid.UUID{userB, userA},
		},
		{
			name:      "duplicate user collapses",
			content:   "<@" + userA.String() + "> <@" + userA.String() + ">",
			wantUsers: []uuid.UUID{userA},
		},
		{
			name:      "role token does not match user pattern",
			content:   "ping <@&" + roleA.String() + ">",
			wantRoles: []uuid.UUID{roleA},
		},
		{
			name:         "channel reference",
			content:      "see <#" + chanA.String() + ">",
			wantChannels: []uuid.UUID{chanA},
		},
		{
			name:         "everyone",
			content:      "@everyone meeting in five",
			wantEveryone: true,
		},
		{
			name:         "mixed",
			content:      "@everyone <@" + userA.String() + "> <@&" + roleA.String() + "> in <#" + chanA.String() + ">",
			wantEveryone: true,
			wantUsers:    []uuid.UUID{userA},
			wantRoles:    []uuid.UUID{roleA},
			wantChannels: []uuid.UUID{chanA},
		},
		{
			name:    "malformed id ignored",
			content: "<@ffffffff-ffff-ffff-ffff-fffffffff-ff>",
		},
		{
			name:    "bare at-word is not a mention",
			content: "email me @alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseMentions(tt.content)
			if got.Everyone != tt.wantEveryone {
				t.Errorf("ParseMentions(%q).Everyone = %v, want %v", tt.content, got.Everyone, tt.wantEveryone)
			}
			assertIDs(t, "UserIDs", got.UserIDs, tt.wantUsers)
			assertIDs(t, "RoleIDs", got.RoleIDs, tt.wantRoles)
			assertIDs(t, "ChannelIDs", got.ChannelIDs, tt.wantChannels)
		})
	}
}

func assertIDs(t *testing.T, field string, got, want []uuid.UUID) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s = %v, want %v", field, got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d] = %s, want %s", field, i, got[i], want[i])
		}
	}
}

func TestMessageToModel(t *testing.T) {
	t.Parallel()

	replyTo := uuid.New()
	edited := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	msg := Message{
		ID:              uuid.New(),
		ChannelID:       uuid.New(),
		AuthorID:        uuid.New(),
		Content:         "hello",
		ReplyTo:         &replyTo,
		Pinned:          true,
		MentionEveryone: true,
		MentionUsers:    []uuid.UUID{uuid.New()},
		EditedAt:        &edited,
		CreatedAt:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),

		AuthorUsername:    "alice",
		AuthorDisplayName: "Alice",

		Attachments: []Attachment{{ID: uuid.New(), Filename: "cat.png", URL: "/files/attachments/x/cat.png", ContentType: "image/png", SizeBytes: 1234}},
		Reactions:   []ReactionGroup{{Emoji: "👍", Count: 3, Me: true}},
	}

	m := msg.ToModel()
	if m.ID != msg.ID || m.ChannelID != msg.ChannelID || m.Content != "hello" {
		t.Errorf("ToModel() basic fields = %+v", m)
	}
	if m.ReplyTo == nil || *m.ReplyTo != replyTo {
		t.Errorf("ToModel().ReplyTo = %v, want %s", m.ReplyTo, replyTo)
	}
	if !m.Pinned || !m.MentionEveryone {
		t.Errorf("ToModel() flags = pinned %v, mention_everyone %v", m.Pinned, m.MentionEveryone)
	}
	if m.Author == nil || m.Author.Username != "alice" || m.Author.ID != msg.AuthorID {
		t.Errorf("ToModel().Author = %+v", m.Author)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].Filename != "cat.png" {
		t.Errorf("ToModel().Attachments = %+v", m.Attachments)
	}
	if len(m.Reactions) != 1 || m.Reactions[0].Count != 3 || !m.Reactions[0].Me {
		t.Errorf("ToModel().Reactions = %+v", m.Reactions)
	}
	if m.EditedAt == nil || !m.EditedAt.Equal(edited) {
		t.Errorf("ToModel().EditedAt = %v", m.EditedAt)
	}
}

func TestMessageToModelEmptySlices(t *testing.T) {
	t.Parallel()

	msg := Message{ID: uuid.New(), ChannelID: uuid.New(), AuthorID: uuid.New()}

	m := msg.ToModel()
	if m.MentionRoles == nil || m.MentionUsers == nil {
		t.Error("ToModel() mention slices should be non-nil")
	}
	if m.Attachments == nil || m.Reactions == nil {
		t.Error("ToModel() aggregate slices should be non-nil")
	}
	if m.Author != nil {
		t.Errorf("ToModel().Author = %+v, want nil without a resolved profile", m.Author)
	}
}
