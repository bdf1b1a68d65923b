package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// janitorInterval is how often the registry sweeps expired detached sessions.
const janitorInterval = time.Minute

// Registry holds every live and recently-detached session, indexed by
// session id and by user. Detached sessions stay resumable until their
// buffer TTL runs out.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byUser   map[uuid.UUID]map[uuid.UUID]*Session
	done     chan struct{}
	now      func() time.Time
}

// NewRegistry creates a registry and starts its sweep loop.
func NewRegistry() *Registry {
	r := &Registry{
		sessions: make(map[uuid.UUID]*Session),
		byUser:   make(map[uuid.UUID]map[uuid.UUID]*Session),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go r.sweepLoop()
	return r
}

// Add registers an authenticated session.
func (r *Registry) Add(s *Session) {
	userID := s.UserID()
	r.mu.Lock()
	r.sessions[s.ID] = s
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[uuid.UUID]*Session)
	}
	r.byUser[userID][s.ID] = s
	r.mu.Unlock()
}

// Remove drops a session entirely. It can no longer be resumed.
func (r *Registry) Remove(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sessionID)
}

func (r *Registry) removeLocked(sessionID uuid.UUID) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	userID := s.UserID()
	if set := r.byUser[userID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// Get returns a session by id.
func (r *Registry) Get(sessionID uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// ForUser returns every session of a user, attached or detached.
func (r *Registry) ForUser(userID uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	sessions := make([]*Session, 0, len(set))
	for _, s := range set {
		sessions = append(sessions, s)
	}
	return sessions
}

// HasAttached reports whether the user still has a session with a live
// socket. Drives the offline grace timer.
func (r *Registry) HasAttached(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byUser[userID] {
		if !s.Detached() {
			return true
		}
	}
	return false
}

// All returns every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// sweepLoop periodically drops detached sessions whose buffers expired.
func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.expired(now) {
			r.removeLocked(id)
		}
	}
}

// Close stops the sweep loop.
func (r *Registry) Close() {
	close(r.done)
}
