package voice

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/voice/sfu"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Error is a control-plane failure carrying its taxonomy code. The session
// layer turns it into a voice.error push.
type Error struct {
	Code    wire.Code
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	errNotInVoice  = &Error{Code: wire.NotInVoice, Message: "not in a voice channel"}
	errChannelFull = &Error{Code: wire.VoiceChannelFull, Message: "voice channel is full"}
	errNotFound    = &Error{Code: wire.VoiceObjectNotFound, Message: "voice object not found"}
)

// Sender pushes events to connected sessions. The gateway dispatcher
// implements it.
type Sender interface {
	ToSession(sessionID uuid.UUID, event string, payload any)
	ToServer(event string, payload any)
}

// owner locates the participant an SFU object belongs to.
type owner struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

type producerRecord struct {
	producer sfu.Producer
	source   string
}

// participant is the per-user control-plane state: the transport pair plus
// every producer and consumer created on it.
type participant struct {
	channelID uuid.UUID
	sessionID uuid.UUID
	send      sfu.Transport
	recv      sfu.Transport
	producers map[string]producerRecord
	consumers map[string]sfu.Consumer
	rtpCaps   json.RawMessage
}

// Controller is the SFU control plane. One instance serves the process. All
// methods are safe for concurrent use; per-session ordering is the caller's
// job (the gateway runs voice commands through a per-session queue).
type Controller struct {
	pool            *WorkerPool
	states          *StateManager
	send            Sender
	maxParticipants int
	log             zerolog.Logger

	mu           sync.Mutex
	routers      map[uuid.UUID]sfu.Router
	participants map[uuid.UUID]*participant
	transports   map[string]owner
	producers    map[string]owner
	consumers    map[string]owner
}

// NewController creates the control plane.
func NewController(pool *WorkerPool, states *StateManager, send Sender, maxParticipants int, logger zerolog.Logger) *Controller {
	return &Controller{
		pool:            pool,
		states:          states,
		send:            send,
		maxParticipants: maxParticipants,
		log:             logger,
		routers:         make(map[uuid.UUID]sfu.Router),
		participants:    make(map[uuid.UUID]*participant),
		transports:      make(map[string]owner),
		producers:       make(map[string]owner),
		consumers:       make(map[string]owner),
	}
}

// Join places a user in a voice channel. Permission and channel-type checks
// happen before this call; Join owns capacity, relocation, and SFU setup.
// rtpCapabilities is the client's receive capability set, checked before
// every consumer fan-out. Joining the channel the user is already in
// re-sends the existing transports without duplicating state.
func (c *Controller) Join(sessionID, userID, channelID uuid.UUID, rtpCapabilities json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.participants[userID]; ok {
		if p.channelID == channelID {
			if len(rtpCapabilities) > 0 {
				p.rtpCaps = rtpCapabilities
			}
			c.sendJoinBootstrap(sessionID, p)
			return nil
		}
		c.teardownLocked(userID, true)
	}

	if c.states.CountInChannel(channelID) >= c.maxParticipants {
		return errChannelFull
	}

	router, err := c.routerLocked(channelID)
	if err != nil {
		return &Error{Code: wire.VoiceError, Message: "voice backend unavailable"}
	}

	send, err := router.CreateTransport()
	if err != nil {
		return c.routerGoneLocked(channelID, err)
	}
	recv, err := router.CreateTransport()
	if err != nil {
		send.Close()
		return c.routerGoneLocked(channelID, err)
	}

	p := &participant{
		channelID: channelID,
		sessionID: sessionID,
		send:      send,
		recv:      recv,
		producers: make(map[string]producerRecord),
		consumers: make(map[string]sfu.Consumer),
		rtpCaps:   rtpCapabilities,
	}
	c.participants[userID] = p
	c.transports[send.ID()] = owner{channelID, userID}
	c.transports[recv.ID()] = owner{channelID, userID}

	state := State{
		UserID:    userID,
		ChannelID: channelID,
		JoinedAt:  time.Now().UTC(),
		SessionID: sessionID,
	}
	c.states.Set(state)
	c.send.ToServer(wire.EventVoiceStateUpdate, state.ToModel())

	c.sendJoinBootstrap(sessionID, p)
	c.consumeExistingLocked(userID, p)
	return nil
}

// sendJoinBootstrap pushes the router capabilities and the transport pair.
func (c *Controller) sendJoinBootstrap(sessionID uuid.UUID, p *participant) {
	router := c.routers[p.channelID]
	if router != nil {
		c.send.ToSession(sessionID, wire.EventVoiceRouterCapabilities,
			wire.VoiceRouterCapabilitiesPayload{RtpCapabilities: router.Capabilities()})
	}
	c.send.ToSession(sessionID, wire.EventVoiceTransportCreated, wire.VoiceTransportCreatedPayload{
		Send: transportInfo(p.send),
		Recv: transportInfo(p.recv),
	})
}

// consumeExistingLocked creates paused consumers for every producer already
// live in the channel and announces them to the joiner.
func (c *Controller) consumeExistingLocked(userID uuid.UUID, p *participant) {
	router := c.routers[p.channelID]
	if router == nil {
		return
	}
	for otherID, other := range c.participants {
		if otherID == userID || other.channelID != p.channelID {
			continue
		}
		for producerID, rec := range other.producers {
			c.consumeLocked(userID, p, router, otherID, producerID, rec.source)
		}
	}
}

// consumeLocked creates one paused consumer on p's recv transport and pushes
// voice.new_consumer. Recipients whose capabilities cannot receive the
// stream are skipped silently.
func (c *Controller) consumeLocked(userID uuid.UUID, p *participant, router sfu.Router, producerUserID uuid.UUID, producerID, source string) {
	if !router.CanConsume(producerID, p.rtpCaps) {
		return
	}
	consumer, err := p.recv.Consume(producerID, p.rtpCaps)
	if err != nil {
		c.log.Debug().Err(err).Str("producer_id", producerID).Msg("consume failed")
		return
	}
	p.consumers[consumer.ID()] = consumer
	c.consumers[consumer.ID()] = owner{p.channelID, userID}
	c.send.ToSession(p.sessionID, wire.EventVoiceNewConsumer, wire.VoiceNewConsumerPayload{
		ConsumerID:    consumer.ID(),
		ProducerID:    producerID,
		UserID:        producerUserID,
		Kind:          consumer.Kind(),
		RtpParameters: consumer.RtpParameters(),
		Source:        source,
	})
}

// Leave removes a user from voice and broadcasts the removal.
func (c *Controller) Leave(userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.participants[userID]; !ok {
		return errNotInVoice
	}
	c.teardownLocked(userID, true)
	return nil
}

// RemoveSession tears down voice state tied to one gateway session. Called
// on socket close; a voice state owned by a different session of the same
// user survives.
func (c *Controller) RemoveSession(sessionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, p := range c.participants {
		if p.sessionID == sessionID {
			c.teardownLocked(userID, true)
			return
		}
	}
}

// RemoveUser tears down a user's voice state regardless of session. Used by
// kick and ban.
func (c *Controller) RemoveUser(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.participants[userID]; ok {
		c.teardownLocked(userID, true)
	}
}

// teardownLocked closes a participant's SFU objects, prunes every index,
// removes peers' consumers of their producers, and optionally broadcasts the
// removal. Destroys the router when the channel empties.
func (c *Controller) teardownLocked(userID uuid.UUID, broadcast bool) {
	p, ok := c.participants[userID]
	if !ok {
		return
	}
	delete(c.participants, userID)
	delete(c.transports, p.send.ID())
	delete(c.transports, p.recv.ID())

	for producerID := range p.producers {
		c.closeProducerLocked(userID, p, producerID, false)
	}
	for consumerID, consumer := range p.consumers {
		consumer.Close()
		delete(c.consumers, consumerID)
	}
	p.send.Close()
	p.recv.Close()

	state, had := c.states.Remove(userID)
	if broadcast && had {
		c.send.ToServer(wire.EventVoiceStateUpdate, state.removedModel())
	}

	if c.states.CountInChannel(p.channelID) == 0 {
		if router, ok := c.routers[p.channelID]; ok {
			router.Close()
			delete(c.routers, p.channelID)
		}
	}
}

// ConnectTransport completes the DTLS handshake on one of the caller's
// transports.
func (c *Controller) ConnectTransport(userID uuid.UUID, transportID string, dtlsParameters json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, t := c.ownTransportLocked(userID, transportID)
	if t == nil {
		return errNotFound
	}
	if err := t.Connect(dtlsParameters); err != nil {
		return &Error{Code: wire.VoiceError, Message: "transport connect failed"}
	}
	return nil
}

// Produce starts a stream on the caller's send transport and fans paused
// consumers out to every other participant in the channel.
func (c *Controller) Produce(userID uuid.UUID, transportID, kind string, rtpParameters json.RawMessage, source string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[userID]
	if !ok {
		return "", errNotInVoice
	}
	if p.send.ID() != transportID {
		return "", errNotFound
	}

	producer, err := p.send.Produce(kind, rtpParameters)
	if err != nil {
		return "", &Error{Code: wire.VoiceError, Message: "produce failed"}
	}
	p.producers[producer.ID()] = producerRecord{producer: producer, source: source}
	c.producers[producer.ID()] = owner{p.channelID, userID}

	router := c.routers[p.channelID]
	if router != nil {
		for otherID, other := range c.participants {
			if otherID == userID || other.channelID != p.channelID {
				continue
			}
			c.consumeLocked(otherID, other, router, userID, producer.ID(), source)
		}
	}
	return producer.ID(), nil
}

// ProduceStop closes one of the caller's producers and tells the channel.
func (c *Controller) ProduceStop(userID uuid.UUID, producerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[userID]
	if !ok {
		return errNotInVoice
	}
	if _, ok := p.producers[producerID]; !ok {
		return errNotFound
	}
	c.closeProducerLocked(userID, p, producerID, true)
	return nil
}

// closeProducerLocked closes a producer, removes every peer consumer of it,
// and optionally fans out voice.producer_closed to the channel.
func (c *Controller) closeProducerLocked(userID uuid.UUID, p *participant, producerID string, announce bool) {
	rec, ok := p.producers[producerID]
	if !ok {
		return
	}
	rec.producer.Close()
	delete(p.producers, producerID)
	delete(c.producers, producerID)

	for _, other := range c.participants {
		if other.channelID != p.channelID {
			continue
		}
		for consumerID, consumer := range other.consumers {
			if consumer.ProducerID() != producerID {
				continue
			}
			consumer.Close()
			delete(other.consumers, consumerID)
			delete(c.consumers, consumerID)
		}
	}

	if announce {
		payload := wire.VoiceProducerClosedPayload{ProducerID: producerID, UserID: userID}
		for _, other := range c.participants {
			if other.channelID == p.channelID {
				c.send.ToSession(other.sessionID, wire.EventVoiceProducerClosed, payload)
			}
		}
	}
}

// PauseProducer pauses one of the caller's producers.
func (c *Controller) PauseProducer(userID uuid.UUID, producerID string) error {
	return c.withProducer(userID, producerID, func(p sfu.Producer) { p.Pause() })
}

// ResumeProducer resumes one of the caller's producers.
func (c *Controller) ResumeProducer(userID uuid.UUID, producerID string) error {
	return c.withProducer(userID, producerID, func(p sfu.Producer) { p.Resume() })
}

func (c *Controller) withProducer(userID uuid.UUID, producerID string, fn func(sfu.Producer)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[userID]
	if !ok {
		return errNotInVoice
	}
	rec, ok := p.producers[producerID]
	if !ok {
		return errNotFound
	}
	fn(rec.producer)
	return nil
}

// ResumeConsumer unpauses one of the caller's consumers. Consumers start
// paused until the receiving client asks for the stream.
func (c *Controller) ResumeConsumer(userID uuid.UUID, consumerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	consumer := c.ownConsumerLocked(userID, consumerID)
	if consumer == nil {
		return errNotFound
	}
	if err := consumer.Resume(); err != nil {
		return errNotFound
	}
	return nil
}

// SetQuality adjusts the preferred layers on one of the caller's consumers.
func (c *Controller) SetQuality(userID uuid.UUID, consumerID string, spatial, temporal *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	consumer := c.ownConsumerLocked(userID, consumerID)
	if consumer == nil {
		return errNotFound
	}
	if err := consumer.SetLayers(spatial, temporal); err != nil {
		return errNotFound
	}
	return nil
}

// Mute applies self-mute and self-deaf flags. Muting pauses the user's
// audio producers; unmuting resumes them. The new state fans out to the
// server.
func (c *Controller) Mute(userID uuid.UUID, selfMute, selfDeaf *bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states.SetMute(userID, selfMute, selfDeaf)
	if !ok {
		return errNotInVoice
	}

	if selfMute != nil {
		if p, ok := c.participants[userID]; ok {
			for _, rec := range p.producers {
				if rec.producer.Kind() != "audio" {
					continue
				}
				if *selfMute {
					rec.producer.Pause()
				} else {
					rec.producer.Resume()
				}
			}
		}
	}

	c.send.ToServer(wire.EventVoiceStateUpdate, state.ToModel())
	return nil
}

// Close tears down every participant without broadcasting. Shutdown path.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for userID := range c.participants {
		c.teardownLocked(userID, false)
	}
}

// routerLocked returns the channel's router, creating it on the next pool
// worker when the channel goes live.
func (c *Controller) routerLocked(channelID uuid.UUID) (sfu.Router, error) {
	if router, ok := c.routers[channelID]; ok {
		return router, nil
	}
	worker, err := c.pool.Next()
	if err != nil {
		return nil, err
	}
	router, err := worker.CreateRouter()
	if err != nil {
		return nil, err
	}
	c.routers[channelID] = router
	return router, nil
}

// routerGoneLocked drops a router that stopped serving requests, usually
// because its worker died. The next join rebuilds it.
func (c *Controller) routerGoneLocked(channelID uuid.UUID, err error) error {
	c.log.Warn().Err(err).Str("channel_id", channelID.String()).Msg("voice router gone")
	if router, ok := c.routers[channelID]; ok {
		router.Close()
		delete(c.routers, channelID)
	}
	return &Error{Code: wire.VoiceError, Message: "voice backend unavailable"}
}

func (c *Controller) ownTransportLocked(userID uuid.UUID, transportID string) (*participant, sfu.Transport) {
	p, ok := c.participants[userID]
	if !ok {
		return nil, nil
	}
	switch transportID {
	case p.send.ID():
		return p, p.send
	case p.recv.ID():
		return p, p.recv
	}
	return nil, nil
}

func (c *Controller) ownConsumerLocked(userID uuid.UUID, consumerID string) sfu.Consumer {
	p, ok := c.participants[userID]
	if !ok {
		return nil
	}
	return p.consumers[consumerID]
}

func transportInfo(t sfu.Transport) wire.TransportInfo {
	return wire.TransportInfo{
		ID:             t.ID(),
		IceParameters:  t.IceParameters(),
		IceCandidates:  t.IceCandidates(),
		DtlsParameters: t.DtlsParameters(),
	}
}
