package sfu

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// LoopbackEngine is an in-process engine that models the full object
// lifecycle without touching the network. It backs tests and deployments
// that run without a media plane.
type LoopbackEngine struct{}

// NewLoopbackEngine creates a loopback engine.
func NewLoopbackEngine() *LoopbackEngine {
	return &LoopbackEngine{}
}

func (e *LoopbackEngine) NewWorker(settings Settings) (Worker, error) {
	return &loopbackWorker{
		settings: settings,
		died:     make(chan struct{}),
	}, nil
}

type loopbackWorker struct {
	settings Settings
	mu       sync.Mutex
	closed   bool
	died     chan struct{}
}

func (w *loopbackWorker) CreateRouter() (Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWorkerClosed
	}
	return &loopbackRouter{producers: make(map[string]*loopbackProducer)}, nil
}

func (w *loopbackWorker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *loopbackWorker) Died() <-chan struct{} {
	return w.died
}

// Kill simulates an abnormal worker exit. Test hook.
func (w *loopbackWorker) Kill() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.died)
	}
}

var loopbackCapabilities = json.RawMessage(`{"codecs":[{"kind":"audio","mimeType":"audio/opus","clockRate":48000,"channels":2},{"kind":"video","mimeType":"video/VP8","clockRate":90000}]}`)

type loopbackRouter struct {
	mu        sync.Mutex
	closed    bool
	producers map[string]*loopbackProducer
}

func (r *loopbackRouter) CreateTransport() (Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRouterClosed
	}
	return &loopbackTransport{
		id:     uuid.Must(uuid.NewV7()).String(),
		router: r,
	}, nil
}

func (r *loopbackRouter) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[producerID]
	return ok
}

func (r *loopbackRouter) Capabilities() json.RawMessage {
	return loopbackCapabilities
}

func (r *loopbackRouter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.producers = make(map[string]*loopbackProducer)
}

type loopbackTransport struct {
	id        string
	router    *loopbackRouter
	mu        sync.Mutex
	closed    bool
	connected bool
}

func (t *loopbackTransport) ID() string { return t.id }

func (t *loopbackTransport) IceParameters() json.RawMessage {
	return json.RawMessage(`{"usernameFragment":"loopback","password":"loopback"}`)
}

func (t *loopbackTransport) IceCandidates() json.RawMessage {
	return json.RawMessage(`[{"ip":"127.0.0.1","port":0,"protocol":"udp"}]`)
}

func (t *loopbackTransport) DtlsParameters() json.RawMessage {
	return json.RawMessage(`{"role":"auto","fingerprints":[]}`)
}

func (t *loopbackTransport) Connect(dtlsParameters json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.connected = true
	return nil
}

func (t *loopbackTransport) Produce(kind string, rtpParameters json.RawMessage) (Producer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	p := &loopbackProducer{
		id:     uuid.Must(uuid.NewV7()).String(),
		kind:   kind,
		router: t.router,
	}
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *loopbackTransport) Consume(producerID string, rtpCapabilities json.RawMessage) (Consumer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	t.router.mu.Lock()
	p, ok := t.router.producers[producerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &loopbackConsumer{
		id:         uuid.Must(uuid.NewV7()).String(),
		producerID: producerID,
		kind:       p.kind,
		paused:     true,
	}, nil
}

func (t *loopbackTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

type loopbackProducer struct {
	id     string
	kind   string
	router *loopbackRouter
	mu     sync.Mutex
	paused bool
}

func (p *loopbackProducer) ID() string   { return p.id }
func (p *loopbackProducer) Kind() string { return p.kind }

func (p *loopbackProducer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *loopbackProducer) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *loopbackProducer) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *loopbackProducer) Close() {
	p.router.mu.Lock()
	delete(p.router.producers, p.id)
	p.router.mu.Unlock()
}

type loopbackConsumer struct {
	id         string
	producerID string
	kind       string
	mu         sync.Mutex
	paused     bool
	closed     bool
}

func (c *loopbackConsumer) ID() string         { return c.id }
func (c *loopbackConsumer) ProducerID() string { return c.producerID }
func (c *loopbackConsumer) Kind() string       { return c.kind }

func (c *loopbackConsumer) RtpParameters() json.RawMessage {
	return json.RawMessage(`{"codecs":[],"encodings":[]}`)
}

func (c *loopbackConsumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotFound
	}
	c.paused = false
	return nil
}

func (c *loopbackConsumer) SetLayers(spatial, temporal *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotFound
	}
	return nil
}

func (c *loopbackConsumer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
