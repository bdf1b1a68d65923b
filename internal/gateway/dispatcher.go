package gateway

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher fans events out to sessions. Every delivery runs through the
// target session's Push, so each recipient sees its own strictly-increasing
// sequence; there is no ordering promise across recipients. Detached
// sessions keep buffering for resume.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: logger.With().Str("component", "dispatcher").Logger()}
}

// ToChannel delivers to every authenticated session subscribed to the
// channel.
func (d *Dispatcher) ToChannel(channelID uuid.UUID, event string, payload any) {
	for _, s := range d.registry.All() {
		if s.Authenticated() && s.Subscribed(channelID) {
			d.push(s, event, payload)
		}
	}
}

// ToUser delivers to every session of one user.
func (d *Dispatcher) ToUser(userID uuid.UUID, event string, payload any) {
	for _, s := range d.registry.ForUser(userID) {
		if s.Authenticated() {
			d.push(s, event, payload)
		}
	}
}

// ToServer delivers to every authenticated session.
func (d *Dispatcher) ToServer(event string, payload any) {
	d.ToAll(event, payload)
}

// ToAll delivers to every authenticated session.
func (d *Dispatcher) ToAll(event string, payload any) {
	for _, s := range d.registry.All() {
		if s.Authenticated() {
			d.push(s, event, payload)
		}
	}
}

// ToSession delivers to a single session.
func (d *Dispatcher) ToSession(sessionID uuid.UUID, event string, payload any) {
	if s, ok := d.registry.Get(sessionID); ok && s.Authenticated() {
		d.push(s, event, payload)
	}
}

func (d *Dispatcher) push(s *Session, event string, payload any) {
	if err := s.Push(event, payload); err != nil {
		d.log.Warn().Err(err).Str("event", event).Stringer("session_id", s.ID).Msg("dispatch failed")
	}
}
