// Package presence tracks realtime user status in memory. Entries exist only
// while the process runs; reconnecting clients rebuild them through the
// gateway handshake. A disconnecting user is not broadcast offline
// immediately: a grace timer absorbs quick reconnects.
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// OfflineGrace is how long a user with zero remaining sessions stays in their
// last status before the offline broadcast fires.
const OfflineGrace = 15 * time.Second

type entry struct {
	status     string
	customText string
}

// Manager holds the in-memory presence table. onChange is invoked outside the
// lock whenever a status transition should be broadcast.
type Manager struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]entry
	pending  map[uuid.UUID]*time.Timer
	onChange func(wire.Presence)
	grace    time.Duration
	log      zerolog.Logger
}

// NewManager creates a presence manager. onChange receives every presence
// transition that peers should see, including grace-expiry offline updates.
func NewManager(onChange func(wire.Presence), logger zerolog.Logger) *Manager {
	return &Manager{
		entries:  make(map[uuid.UUID]entry),
		pending:  make(map[uuid.UUID]*time.Timer),
		onChange: onChange,
		grace:    OfflineGrace,
		log:      logger.With().Str("component", "presence").Logger(),
	}
}

// Connect records that a user gained a session. Any pending offline timer is
// cancelled. If the user was offline they come back online and the transition
// is broadcast.
func (m *Manager) Connect(userID uuid.UUID) {
	m.mu.Lock()
	if t, ok := m.pending[userID]; ok {
		t.Stop()
		delete(m.pending, userID)
	}
	e, known := m.entries[userID]
	if known && e.status != wire.StatusOffline {
		m.mu.Unlock()
		return
	}
	e = entry{status: wire.StatusOnline}
	m.entries[userID] = e
	m.mu.Unlock()

	m.notify(userID, e)
}

// Update sets a user's status and custom text and broadcasts the change.
// Unknown statuses are ignored.
func (m *Manager) Update(userID uuid.UUID, status, customText string) {
	switch status {
	case wire.StatusOnline, wire.StatusIdle, wire.StatusDND, wire.StatusInvisible:
	default:
		return
	}

	m.mu.Lock()
	e := entry{status: status, customText: customText}
	m.entries[userID] = e
	m.mu.Unlock()

	m.notify(userID, e)
}

// Disconnect records that a user's last session closed. The offline broadcast
// is deferred by the grace window and cancelled if the user reconnects.
func (m *Manager) Disconnect(userID uuid.UUID) {
	m.mu.Lock()
	if t, ok := m.pending[userID]; ok {
		t.Stop()
	}
	m.pending[userID] = time.AfterFunc(m.grace, func() { m.expire(userID) })
	m.mu.Unlock()
}

// Remove drops a user immediately with no grace window. Used when a member is
// kicked or banned.
func (m *Manager) Remove(userID uuid.UUID) {
	m.mu.Lock()
	if t, ok := m.pending[userID]; ok {
		t.Stop()
		delete(m.pending, userID)
	}
	_, known := m.entries[userID]
	delete(m.entries, userID)
	m.mu.Unlock()

	if known {
		m.notify(userID, entry{status: wire.StatusOffline})
	}
}

// Get returns the user's presence as peers see it.
func (m *Manager) Get(userID uuid.UUID) wire.Presence {
	m.mu.Lock()
	e, ok := m.entries[userID]
	m.mu.Unlock()
	if !ok {
		return wire.Presence{UserID: userID, Status: wire.StatusOffline}
	}
	return visible(userID, e)
}

// Snapshot lists all users currently visible as something other than offline.
// Feeds the ready payload.
func (m *Manager) Snapshot() []wire.Presence {
	m.mu.Lock()
	out := make([]wire.Presence, 0, len(m.entries))
	for id, e := range m.entries {
		if e.status == wire.StatusOffline || e.status == wire.StatusInvisible {
			continue
		}
		out = append(out, visible(id, e))
	}
	m.mu.Unlock()
	return out
}

func (m *Manager) expire(userID uuid.UUID) {
	m.mu.Lock()
	if _, ok := m.pending[userID]; !ok {
		// Reconnected while the timer was firing.
		m.mu.Unlock()
		return
	}
	delete(m.pending, userID)
	m.entries[userID] = entry{status: wire.StatusOffline}
	m.mu.Unlock()

	m.log.Debug().Str("user_id", userID.String()).Msg("Presence grace expired")
	m.notify(userID, entry{status: wire.StatusOffline})
}

func (m *Manager) notify(userID uuid.UUID, e entry) {
	if m.onChange != nil {
		m.onChange(visible(userID, e))
	}
}

// visible maps a stored entry to what peers see: invisible users present as
// offline with no custom text.
func visible(userID uuid.UUID, e entry) wire.Presence {
	if e.status == wire.StatusInvisible {
		return wire.Presence{UserID: userID, Status: wire.StatusOffline}
	}
	return wire.Presence{UserID: userID, Status: e.status, CustomText: e.customText}
}
