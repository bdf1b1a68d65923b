// Package voice coordinates voice-channel membership and the SFU control
// plane: routers per channel, transport pairs per participant, and the
// producer/consumer fan-out between them.
package voice

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// State is one user's voice-channel membership. SessionID pins the state to
// the gateway session that created it, so closing that socket tears it down.
type State struct {
	UserID    uuid.UUID
	ChannelID uuid.UUID
	SelfMute  bool
	SelfDeaf  bool
	JoinedAt  time.Time
	SessionID uuid.UUID
}

// ToModel converts the state to its wire shape.
func (s State) ToModel() wire.VoiceState {
	sessionID := s.SessionID
	return wire.VoiceState{
		UserID:    s.UserID,
		ChannelID: s.ChannelID,
		SelfMute:  s.SelfMute,
		SelfDeaf:  s.SelfDeaf,
		JoinedAt:  s.JoinedAt,
		SessionID: &sessionID,
	}
}

// removedModel is the final broadcast shape emitted when a user leaves.
func (s State) removedModel() wire.VoiceState {
	m := s.ToModel()
	m.Removed = true
	return m
}

// StateManager tracks which user is in which voice channel. A user occupies
// at most one channel at a time.
type StateManager struct {
	mu     sync.RWMutex
	states map[uuid.UUID]State
}

// NewStateManager creates an empty state manager.
func NewStateManager() *StateManager {
	return &StateManager{states: make(map[uuid.UUID]State)}
}

// Set stores a user's voice state, replacing any previous one.
func (m *StateManager) Set(s State) {
	m.mu.Lock()
	m.states[s.UserID] = s
	m.mu.Unlock()
}

// Get returns a user's voice state.
func (m *StateManager) Get(userID uuid.UUID) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[userID]
	return s, ok
}

// Remove drops a user's voice state and returns what was removed.
func (m *StateManager) Remove(userID uuid.UUID) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userID]
	if ok {
		delete(m.states, userID)
	}
	return s, ok
}

// SetMute applies partial mute-flag updates. Nil flags keep their value.
func (m *StateManager) SetMute(userID uuid.UUID, selfMute, selfDeaf *bool) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userID]
	if !ok {
		return State{}, false
	}
	if selfMute != nil {
		s.SelfMute = *selfMute
	}
	if selfDeaf != nil {
		s.SelfDeaf = *selfDeaf
	}
	m.states[userID] = s
	return s, true
}

// InChannel returns the states of every user in a channel.
func (m *StateManager) InChannel(channelID uuid.UUID) []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var states []State
	for _, s := range m.states {
		if s.ChannelID == channelID {
			states = append(states, s)
		}
	}
	return states
}

// CountInChannel returns how many users occupy a channel.
func (m *StateManager) CountInChannel(channelID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.states {
		if s.ChannelID == channelID {
			n++
		}
	}
	return n
}

// Snapshot returns every voice state for the ready payload.
func (m *StateManager) Snapshot() []wire.VoiceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make([]wire.VoiceState, 0, len(m.states))
	for _, s := range m.states {
		states = append(states, s.ToModel())
	}
	return states
}
