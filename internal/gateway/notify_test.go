package gateway

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

func TestNotifyDebouncePerChannel(t *testing.T) {
	t.Parallel()

	c := &notifyClient{
		id:       uuid.Must(uuid.NewV7()),
		userID:   uuid.Must(uuid.NewV7()),
		conn:     &connection{send: make(chan []byte, 8), log: zerolog.Nop()},
		lastSent: make(map[uuid.UUID]time.Time),
	}

	channelA := uuid.Must(uuid.NewV7())
	channelB := uuid.Must(uuid.NewV7())
	base := time.Now().UTC()

	c.send(wire.NotifyPayload{ChannelID: channelA, Ts: base, Type: wire.NotifyMessage})
	c.send(wire.NotifyPayload{ChannelID: channelA, Ts: base.Add(time.Second), Type: wire.NotifyMessage})
	c.send(wire.NotifyPayload{ChannelID: channelB, Ts: base.Add(time.Second), Type: wire.NotifyMessage})
	c.send(wire.NotifyPayload{ChannelID: channelA, Ts: base.Add(notifyDebounce + time.Second), Type: wire.NotifyMessage})

	if got := len(c.conn.send); got != 3 {
		t.Fatalf("frames sent = %d, want 3 (second channelA frame debounced)", got)
	}
}

func TestNotifyBroadcastSkipsActor(t *testing.T) {
	t.Parallel()

	h := NewNotifyHub(nil, nil, nil, zerolog.Nop())
	actor := uuid.Must(uuid.NewV7())
	other := uuid.Must(uuid.NewV7())

	actorClient := &notifyClient{
		id:       uuid.Must(uuid.NewV7()),
		userID:   actor,
		conn:     &connection{send: make(chan []byte, 8), log: zerolog.Nop()},
		lastSent: make(map[uuid.UUID]time.Time),
	}
	otherClient := &notifyClient{
		id:       uuid.Must(uuid.NewV7()),
		userID:   other,
		conn:     &connection{send: make(chan []byte, 8), log: zerolog.Nop()},
		lastSent: make(map[uuid.UUID]time.Time),
	}
	h.clients[actorClient.id] = actorClient
	h.clients[otherClient.id] = otherClient

	h.Broadcast(actor, uuid.Must(uuid.NewV7()), wire.NotifyMessage)

	if got := len(actorClient.conn.send); got != 0 {
		t.Errorf("actor frames = %d, want 0", got)
	}
	if got := len(otherClient.conn.send); got != 1 {
		t.Errorf("other frames = %d, want 1", got)
	}
}

func TestNotifyToUser(t *testing.T) {
	t.Parallel()

	h := NewNotifyHub(nil, nil, nil, zerolog.Nop())
	target := uuid.Must(uuid.NewV7())

	targetClient := &notifyClient{
		id:       uuid.Must(uuid.NewV7()),
		userID:   target,
		conn:     &connection{send: make(chan []byte, 8), log: zerolog.Nop()},
		lastSent: make(map[uuid.UUID]time.Time),
	}
	bystander := &notifyClient{
		id:       uuid.Must(uuid.NewV7()),
		userID:   uuid.Must(uuid.NewV7()),
		conn:     &connection{send: make(chan []byte, 8), log: zerolog.Nop()},
		lastSent: make(map[uuid.UUID]time.Time),
	}
	h.clients[targetClient.id] = targetClient
	h.clients[bystander.id] = bystander

	h.ToUser(target, uuid.Must(uuid.NewV7()), wire.NotifyMention)

	if got := len(targetClient.conn.send); got != 1 {
		t.Errorf("target frames = %d, want 1", got)
	}
	if got := len(bystander.conn.send); got != 0 {
		t.Errorf("bystander frames = %d, want 0", got)
	}
}
