package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/message"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/serverconfig"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// fakeMessageRepo implements the subset of message.Repository the send and
// pin handlers exercise, recording every Create call.
type fakeMessageRepo struct {
	created      []message.CreateParams
	lastAuthored *time.Time
}

func (f *fakeMessageRepo) Create(_ context.Context, params message.CreateParams) (*message.Message, error) {
	f.created = append(f.created, params)
	msg := &message.Message{
		ID:        uuid.Must(uuid.NewV7()),
		ChannelID: params.ChannelID,
		AuthorID:  params.AuthorID,
		Content:   params.Content,
		Type:      params.Type,
		ReplyTo:   params.ReplyTo,
		CreatedAt: time.Now().UTC(),
	}
	return msg, nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id, _ uuid.UUID) (*message.Message, error) {
	return &message.Message{
		ID:        id,
		ChannelID: uuid.Must(uuid.NewV7()),
		AuthorID:  uuid.Must(uuid.NewV7()),
		Content:   "pinned content",
		Type:      wire.MessageTypeDefault,
		Pinned:    true,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeMessageRepo) SetPinned(context.Context, uuid.UUID, bool) error { return nil }

func (f *fakeMessageRepo) LastAuthoredAt(context.Context, uuid.UUID, uuid.UUID) (*time.Time, error) {
	return f.lastAuthored, nil
}

// Unused interface methods required by message.Repository.
func (f *fakeMessageRepo) List(context.Context, uuid.UUID, message.ListOptions) ([]message.Message, error) {
	panic("not implemented")
}
func (f *fakeMessageRepo) Update(context.Context, uuid.UUID, string, uuid.UUID) (*message.Message, error) {
	panic("not implemented")
}
func (f *fakeMessageRepo) SoftDelete(context.Context, store.Querier, uuid.UUID) error {
	panic("not implemented")
}
func (f *fakeMessageRepo) SoftDeleteByAuthorSince(context.Context, store.Querier, uuid.UUID, time.Time) (map[uuid.UUID][]uuid.UUID, error) {
	panic("not implemented")
}
func (f *fakeMessageRepo) AddReaction(context.Context, uuid.UUID, uuid.UUID, string) (int, error) {
	panic("not implemented")
}
func (f *fakeMessageRepo) RemoveReaction(context.Context, uuid.UUID, uuid.UUID, string) (int, error) {
	panic("not implemented")
}
func (f *fakeMessageRepo) Search(context.Context, message.SearchParams) ([]message.Message, error) {
	panic("not implemented")
}

// fakeChannelRepo serves one channel.
type fakeChannelRepo struct {
	ch *channel.Channel
}

func (f *fakeChannelRepo) GetByID(_ context.Context, id uuid.UUID) (*channel.Channel, error) {
	if f.ch == nil || f.ch.ID != id {
		return nil, channel.ErrNotFound
	}
	return f.ch, nil
}

func (f *fakeChannelRepo) List(context.Context) ([]channel.Channel, error) {
	panic("not implemented")
}
func (f *fakeChannelRepo) Create(context.Context, channel.CreateParams) (*channel.Channel, error) {
	panic("not implemented")
}
func (f *fakeChannelRepo) Update(context.Context, uuid.UUID, channel.UpdateParams) (*channel.Channel, error) {
	panic("not implemented")
}
func (f *fakeChannelRepo) Delete(context.Context, uuid.UUID) error { panic("not implemented") }
func (f *fakeChannelRepo) Reorder(context.Context, []channel.PositionUpdate) error {
	panic("not implemented")
}

// fakeConfigRepo serves a fixed server config.
type fakeConfigRepo struct {
	cfg *serverconfig.Config
}

func (f *fakeConfigRepo) Get(context.Context) (*serverconfig.Config, error) { return f.cfg, nil }

func (f *fakeConfigRepo) Update(context.Context, serverconfig.UpdateParams) (*serverconfig.Config, error) {
	panic("not implemented")
}
func (f *fakeConfigRepo) Create(context.Context, store.Querier, *serverconfig.Config) error {
	panic("not implemented")
}

// fixedPermStore implements permission.Store from fixtures: one channel, one
// member whose default role carries the given bits.
type fixedPermStore struct {
	member   uuid.UUID
	channel  uuid.UUID
	roleID   uuid.UUID
	roleBits permission.Permission
}

func (s *fixedPermStore) Owner(context.Context) (*uuid.UUID, error) { return nil, nil }

func (s *fixedPermStore) IsMember(_ context.Context, userID uuid.UUID) (bool, error) {
	return userID == s.member, nil
}

func (s *fixedPermStore) RolesForMember(context.Context, uuid.UUID) ([]permission.RoleEntry, error) {
	return []permission.RoleEntry{{ID: s.roleID, Permissions: s.roleBits, IsDefault: true}}, nil
}

func (s *fixedPermStore) AllRoles(ctx context.Context) ([]permission.RoleEntry, error) {
	return s.RolesForMember(ctx, uuid.Nil)
}

func (s *fixedPermStore) MemberRoleIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *fixedPermStore) ChannelCategories(_ context.Context, channelIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error) {
	out := make(map[uuid.UUID]*uuid.UUID)
	for _, id := range channelIDs {
		if id == s.channel {
			out[id] = nil
		}
	}
	return out, nil
}

func (s *fixedPermStore) ChannelOverrides(context.Context, []uuid.UUID) (map[uuid.UUID][]permission.Override, error) {
	return nil, nil
}

func (s *fixedPermStore) CategoryOverrides(context.Context, []uuid.UUID) (map[uuid.UUID][]permission.Override, error) {
	return nil, nil
}

func (s *fixedPermStore) SharedChain(context.Context, permission.SharedItemType, uuid.UUID) ([]permission.SharedRef, error) {
	return nil, nil
}

func (s *fixedPermStore) SharedOverrides(context.Context, []permission.SharedRef) (map[permission.SharedRef][]permission.Override, error) {
	return nil, nil
}

// newMessageApp wires a MessageHandler over fakes and returns an app with the
// send and pin routes registered behind a locals-injecting stub.
func newMessageApp(t *testing.T, msgs *fakeMessageRepo, channels *fakeChannelRepo, cfg *fakeConfigRepo, perms *permission.Service, userID uuid.UUID) *fiber.App {
	t.Helper()

	registry := gateway.NewRegistry()
	t.Cleanup(registry.Close)
	dispatcher := gateway.NewDispatcher(registry, zerolog.Nop())
	notify := gateway.NewNotifyHub(nil, nil, nil, zerolog.Nop())

	h := NewMessageHandler(msgs, channels, nil, nil, cfg, nil, perms, dispatcher, notify, nil, zerolog.Nop())

	app := fiber.New()
	app.Use(func(c fiber.Ctx) error {
		c.Locals("userID", userID)
		return c.Next()
	})
	app.Post("/channels/:channelID/messages", h.Send)
	app.Put("/channels/:channelID/messages/:messageID/pin", h.Pin)
	return app
}

func decodeErrorCode(t *testing.T, body io.Reader) wire.Code {
	t.Helper()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var envelope struct {
		Code wire.Code `json:"ecto_code"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	return envelope.Code
}

func TestPinSystemMessageReferencesPinnedMessage(t *testing.T) {
	t.Parallel()

	modID := uuid.Must(uuid.NewV7())
	channelID := uuid.Must(uuid.NewV7())
	messageID := uuid.Must(uuid.NewV7())

	msgs := &fakeMessageRepo{}
	channels := &fakeChannelRepo{ch: &channel.Channel{ID: channelID, Name: "general", Type: "text"}}
	cfg := &fakeConfigRepo{cfg: &serverconfig.Config{ShowSystemMessages: true}}
	app := newMessageApp(t, msgs, channels, cfg, nil, modID)

	req := httptest.NewRequest(http.MethodPut,
		"/channels/"+channelID.String()+"/messages/"+messageID.String()+"/pin",
		strings.NewReader(`{"pinned":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if len(msgs.created) != 1 {
		t.Fatalf("system messages created = %d, want 1", len(msgs.created))
	}

	system := msgs.created[0]
	if system.Type != wire.MessageTypePinAdded {
		t.Errorf("system message type = %d, want %d", system.Type, wire.MessageTypePinAdded)
	}
	if system.ChannelID != channelID {
		t.Errorf("system message channel = %v, want %v", system.ChannelID, channelID)
	}
	if system.ReplyTo == nil {
		t.Fatalf("system message reply_to = nil, want %v", messageID)
	}
	if *system.ReplyTo != messageID {
		t.Errorf("system message reply_to = %v, want %v", *system.ReplyTo, messageID)
	}
}

func TestPinSuppressedSystemMessage(t *testing.T) {
	t.Parallel()

	modID := uuid.Must(uuid.NewV7())
	channelID := uuid.Must(uuid.NewV7())
	messageID := uuid.Must(uuid.NewV7())

	msgs := &fakeMessageRepo{}
	channels := &fakeChannelRepo{ch: &channel.Channel{ID: channelID, Name: "general", Type: "text"}}
	cfg := &fakeConfigRepo{cfg: &serverconfig.Config{ShowSystemMessages: false}}
	app := newMessageApp(t, msgs, channels, cfg, nil, modID)

	req := httptest.NewRequest(http.MethodPut,
		"/channels/"+channelID.String()+"/messages/"+messageID.String()+"/pin",
		strings.NewReader(`{"pinned":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if len(msgs.created) != 0 {
		t.Errorf("system messages created = %d, want 0", len(msgs.created))
	}
}

func TestSendSlowmode(t *testing.T) {
	t.Parallel()

	userID := uuid.Must(uuid.NewV7())
	channelID := uuid.Must(uuid.NewV7())
	slowCh := &channel.Channel{ID: channelID, Name: "general", Type: "text", SlowmodeSeconds: 10}

	newPerms := func(bits permission.Permission) *permission.Service {
		st := &fixedPermStore{
			member:   userID,
			channel:  channelID,
			roleID:   uuid.Must(uuid.NewV7()),
			roleBits: bits,
		}
		return permission.NewService(st, permission.NewCache(time.Minute), zerolog.Nop())
	}
	send := func(t *testing.T, app *fiber.App) *http.Response {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost,
			"/channels/"+channelID.String()+"/messages",
			strings.NewReader(`{"content":"hello"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp
	}

	t.Run("member inside window is limited", func(t *testing.T) {
		t.Parallel()

		last := time.Now().UTC().Add(-2 * time.Second)
		msgs := &fakeMessageRepo{lastAuthored: &last}
		app := newMessageApp(t, msgs, &fakeChannelRepo{ch: slowCh}, nil,
			newPerms(permission.ReadMessages|permission.SendMessages), userID)

		resp := send(t, app)
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
		}
		if got := decodeErrorCode(t, resp.Body); got != wire.Slowmode {
			t.Errorf("ecto_code = %d, want %d", got, wire.Slowmode)
		}
		if resp.Header.Get("Retry-After") == "" {
			t.Error("Retry-After header missing")
		}
		if len(msgs.created) != 0 {
			t.Errorf("messages created = %d, want 0", len(msgs.created))
		}
	})

	t.Run("member outside window posts", func(t *testing.T) {
		t.Parallel()

		last := time.Now().UTC().Add(-11 * time.Second)
		msgs := &fakeMessageRepo{lastAuthored: &last}
		app := newMessageApp(t, msgs, &fakeChannelRepo{ch: slowCh}, nil,
			newPerms(permission.ReadMessages|permission.SendMessages), userID)

		resp := send(t, app)
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		if len(msgs.created) != 1 {
			t.Errorf("messages created = %d, want 1", len(msgs.created))
		}
	})

	t.Run("moderator is exempt", func(t *testing.T) {
		t.Parallel()

		last := time.Now().UTC().Add(-2 * time.Second)
		msgs := &fakeMessageRepo{lastAuthored: &last}
		app := newMessageApp(t, msgs, &fakeChannelRepo{ch: slowCh}, nil,
			newPerms(permission.ReadMessages|permission.SendMessages|permission.ManageMessages), userID)

		resp := send(t, app)
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		if len(msgs.created) != 1 {
			t.Errorf("messages created = %d, want 1", len(msgs.created))
		}
	})
}
