// Package sfu defines the contract between the voice control plane and the
// media engine that forwards RTP. The control plane only ever manipulates
// routers, transports, producers and consumers through these interfaces; the
// media plane itself (ports, DTLS, packet forwarding) lives behind them.
package sfu

import (
	"encoding/json"
	"errors"
)

// Sentinel errors for the sfu package.
var (
	ErrWorkerClosed    = errors.New("sfu worker is closed")
	ErrRouterClosed    = errors.New("sfu router is closed")
	ErrTransportClosed = errors.New("sfu transport is closed")
	ErrNotFound        = errors.New("sfu object not found")
)

// Settings carries the engine tuning taken from process config.
type Settings struct {
	MinPort     int
	MaxPort     int
	AnnouncedIP string
}

// Engine spawns media workers. One engine backs the whole process.
type Engine interface {
	NewWorker(settings Settings) (Worker, error)
}

// Worker is one media process. Died is closed when the worker exits
// abnormally; every router created on it is lost.
type Worker interface {
	CreateRouter() (Router, error)
	Close()
	Died() <-chan struct{}
}

// Router forwards streams between the transports created on it. One router
// serves one voice channel.
type Router interface {
	CreateTransport() (Transport, error)

	// CanConsume reports whether a consumer with the given capabilities could
	// receive the producer's stream.
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool

	Capabilities() json.RawMessage
	Close()
}

// Transport is one WebRTC transport. Each participant holds a send and a
// receive transport on the channel's router.
type Transport interface {
	ID() string
	IceParameters() json.RawMessage
	IceCandidates() json.RawMessage
	DtlsParameters() json.RawMessage

	Connect(dtlsParameters json.RawMessage) error
	Produce(kind string, rtpParameters json.RawMessage) (Producer, error)
	Consume(producerID string, rtpCapabilities json.RawMessage) (Consumer, error)
	Close()
}

// Producer is an inbound stream from one participant.
type Producer interface {
	ID() string
	Kind() string
	Paused() bool
	Pause()
	Resume()
	Close()
}

// Consumer is an outbound copy of a producer's stream. Consumers start
// paused; the receiving client resumes once its pipeline is ready.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() string
	RtpParameters() json.RawMessage
	Resume() error
	SetLayers(spatial, temporal *int) error
	Close()
}
