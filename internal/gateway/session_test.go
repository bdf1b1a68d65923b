package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeOutbound records enqueued frames.
type fakeOutbound struct {
	frames   [][]byte
	full     bool
	closed   bool
	lastCode int
}

func (f *fakeOutbound) enqueue(frame []byte) bool {
	if f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeOutbound) close(code int, reason string) {
	f.closed = true
	f.lastCode = code
}

func decodeFrame(t *testing.T, raw []byte) Frame {
	t.Helper()
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

func TestPushSequencesAndSends(t *testing.T) {
	t.Parallel()

	out := &fakeOutbound{}
	s := NewSession(out)
	s.Authenticate(uuid.Must(uuid.NewV7()))

	for i := 0; i < 3; i++ {
		if err := s.Push("message.create", map[string]int{"n": i}); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	if len(out.frames) != 3 {
		t.Fatalf("sent frames = %d, want 3", len(out.frames))
	}
	for i, raw := range out.frames {
		frame := decodeFrame(t, raw)
		if frame.Seq == nil || *frame.Seq != int64(i+1) {
			t.Errorf("frame %d seq = %v, want %d", i, frame.Seq, i+1)
		}
		if frame.Event != "message.create" {
			t.Errorf("frame %d event = %q", i, frame.Event)
		}
	}
}

func TestReplayAfterLastSeq(t *testing.T) {
	t.Parallel()

	out := &fakeOutbound{}
	s := NewSession(out)
	s.Authenticate(uuid.Must(uuid.NewV7()))

	for i := 0; i < 5; i++ {
		if err := s.Push("message.create", i); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	out.frames = nil

	if got := s.Replay(2); got != 3 {
		t.Fatalf("Replay(2) = %d, want 3", got)
	}
	if len(out.frames) != 3 {
		t.Fatalf("replayed frames = %d, want 3", len(out.frames))
	}
	first := decodeFrame(t, out.frames[0])
	if first.Seq == nil || *first.Seq != 3 {
		t.Errorf("first replayed seq = %v, want 3", first.Seq)
	}
}

func TestBufferCapEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	s.Authenticate(uuid.Must(uuid.NewV7()))

	for i := 0; i < BufferCap+10; i++ {
		if err := s.Push("message.create", i); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	s.mu.Lock()
	size := len(s.buffer)
	oldest := s.buffer[0].seq
	s.mu.Unlock()

	if size != BufferCap {
		t.Errorf("buffer size = %d, want %d", size, BufferCap)
	}
	if oldest != 11 {
		t.Errorf("oldest buffered seq = %d, want 11", oldest)
	}
}

func TestBufferTTLEviction(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	s.Authenticate(uuid.Must(uuid.NewV7()))

	now := time.Now()
	s.now = func() time.Time { return now }
	if err := s.Push("message.create", "old"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	now = now.Add(BufferTTL + time.Second)
	if err := s.Push("message.create", "fresh"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if got := s.Replay(0); got != 1 {
		t.Errorf("Replay(0) after TTL = %d frames, want 1", got)
	}
}

func TestDetachKeepsBuffering(t *testing.T) {
	t.Parallel()

	out := &fakeOutbound{}
	s := NewSession(out)
	s.Authenticate(uuid.Must(uuid.NewV7()))

	if err := s.Push("message.create", 1); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	s.detach()
	if !s.Detached() {
		t.Fatal("Detached() = false after detach")
	}
	if err := s.Push("message.create", 2); err != nil {
		t.Fatalf("Push() while detached error = %v", err)
	}
	if len(out.frames) != 1 {
		t.Fatalf("frames on old socket = %d, want 1", len(out.frames))
	}

	replacement := &fakeOutbound{}
	s.adopt(replacement)
	if got := s.Replay(1); got != 1 {
		t.Fatalf("Replay(1) after adopt = %d, want 1", got)
	}
	frame := decodeFrame(t, replacement.frames[0])
	if frame.Seq == nil || *frame.Seq != 2 {
		t.Errorf("replayed seq = %v, want 2", frame.Seq)
	}
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()

	s := NewSession(&fakeOutbound{})
	s.Authenticate(uuid.Must(uuid.NewV7()))

	if s.expired(time.Now().Add(time.Hour)) {
		t.Error("attached session reported expired")
	}
	s.detach()
	if s.expired(time.Now()) {
		t.Error("freshly detached session reported expired")
	}
	if !s.expired(time.Now().Add(BufferTTL + time.Second)) {
		t.Error("stale detached session not reported expired")
	}
}

func TestPushFullQueueClosesConnection(t *testing.T) {
	t.Parallel()

	out := &fakeOutbound{full: true}
	s := NewSession(out)
	s.Authenticate(uuid.Must(uuid.NewV7()))

	if err := s.Push("message.create", 1); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !out.closed {
		t.Error("connection not closed on full send queue")
	}
}
