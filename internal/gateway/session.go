package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// BufferCap is the hard cap on buffered events per session; the oldest
	// entry is dropped past it.
	BufferCap = 500

	// BufferTTL bounds how long a buffered event stays replayable. Detached
	// sessions older than this are swept and can no longer be resumed.
	BufferTTL = 5 * time.Minute
)

// bufferEntry is one sequenced dispatch retained for resume replay.
type bufferEntry struct {
	seq   int64
	frame []byte
	ts    time.Time
}

// outbound is a session's write path to its socket. A detached session has
// none; dispatches still accrue in the buffer.
type outbound interface {
	// enqueue queues a frame for writing and reports whether the frame was
	// accepted. A full queue rejects it; the caller closes the connection.
	enqueue(frame []byte) bool

	// close sends a close frame with the given code then severs the socket.
	close(code int, reason string)
}

// Session is one gateway session: the authenticated identity, the channel
// subscriptions, the per-session sequence counter, and the bounded replay
// buffer. A session outlives its socket: on disconnect it detaches and can
// be re-adopted by a resume until the buffer TTL runs out.
type Session struct {
	ID uuid.UUID

	mu            sync.Mutex
	userID        uuid.UUID
	authenticated bool
	subscriptions map[uuid.UUID]struct{}
	seq           int64
	buffer        []bufferEntry
	lastHeartbeat time.Time
	detachedAt    time.Time
	out           outbound

	now func() time.Time
}

// NewSession creates an unauthenticated session bound to the given socket.
func NewSession(out outbound) *Session {
	return &Session{
		ID:            uuid.Must(uuid.NewV7()),
		subscriptions: make(map[uuid.UUID]struct{}),
		out:           out,
		now:           time.Now,
	}
}

// Authenticate records the identity after a successful identify.
func (s *Session) Authenticate(userID uuid.UUID) {
	s.mu.Lock()
	s.userID = userID
	s.authenticated = true
	s.lastHeartbeat = s.now()
	s.mu.Unlock()
}

// UserID returns the authenticated user.
func (s *Session) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Authenticated reports whether identify completed.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Subscribe adds a channel to the session's subscription set.
func (s *Session) Subscribe(channelID uuid.UUID) {
	s.mu.Lock()
	s.subscriptions[channelID] = struct{}{}
	s.mu.Unlock()
}

// Unsubscribe removes a channel from the subscription set.
func (s *Session) Unsubscribe(channelID uuid.UUID) {
	s.mu.Lock()
	delete(s.subscriptions, channelID)
	s.mu.Unlock()
}

// Subscribed reports whether the session follows a channel.
func (s *Session) Subscribed(channelID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[channelID]
	return ok
}

// Heartbeat records a client heartbeat.
func (s *Session) Heartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = s.now()
	s.mu.Unlock()
}

// LastHeartbeat returns when the client last heartbeat.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// Push sequences an event, appends it to the replay buffer, and sends it
// when the socket is open. Events to one session are strictly ordered by the
// sequence this assigns.
func (s *Session) Push(event string, payload any) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq

	frame, err := marshalDispatch(seq, event, payload)
	if err != nil {
		s.seq--
		s.mu.Unlock()
		return err
	}

	now := s.now()
	s.evictLocked(now)
	s.buffer = append(s.buffer, bufferEntry{seq: seq, frame: frame, ts: now})
	out := s.out
	s.mu.Unlock()

	if out != nil && !out.enqueue(frame) {
		out.close(CloseUnknownError, "send buffer overflow")
	}
	return nil
}

// evictLocked drops expired entries and trims to the cap, oldest first.
func (s *Session) evictLocked(now time.Time) {
	cutoff := now.Add(-BufferTTL)
	drop := 0
	for drop < len(s.buffer) && s.buffer[drop].ts.Before(cutoff) {
		drop++
	}
	if len(s.buffer)-drop >= BufferCap {
		drop = len(s.buffer) - BufferCap + 1
	}
	if drop > 0 {
		s.buffer = append(s.buffer[:0], s.buffer[drop:]...)
	}
}

// Replay resends every buffered event with seq > lastSeq, in order, and
// returns how many were sent. Entries already trimmed are lost; the client
// refetches state over the API.
func (s *Session) Replay(lastSeq int64) int {
	s.mu.Lock()
	s.evictLocked(s.now())
	frames := make([][]byte, 0, len(s.buffer))
	for _, e := range s.buffer {
		if e.seq > lastSeq {
			frames = append(frames, e.frame)
		}
	}
	out := s.out
	s.mu.Unlock()

	if out != nil {
		for _, frame := range frames {
			if !out.enqueue(frame) {
				out.close(CloseUnknownError, "send buffer overflow")
				break
			}
		}
	}
	return len(frames)
}

// Seq returns the current sequence counter.
func (s *Session) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// detach drops the socket. Dispatches keep buffering until the TTL sweep.
func (s *Session) detach() {
	s.mu.Lock()
	s.out = nil
	s.detachedAt = s.now()
	s.mu.Unlock()
}

// adopt attaches a new socket to a detached session. Sequence counter,
// subscriptions, and buffer carry over.
func (s *Session) adopt(out outbound) {
	s.mu.Lock()
	s.out = out
	s.detachedAt = time.Time{}
	s.lastHeartbeat = s.now()
	s.mu.Unlock()
}

// Detached reports whether the session has no socket.
func (s *Session) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out == nil
}

// expired reports whether a detached session has outlived the buffer TTL.
func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out == nil && !s.detachedAt.IsZero() && now.Sub(s.detachedAt) > BufferTTL
}

// closeSocket severs the session's socket, if any.
func (s *Session) closeSocket(code int, reason string) {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out != nil {
		out.close(code, reason)
	}
}
