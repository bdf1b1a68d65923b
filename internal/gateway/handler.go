package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auth"
	"github.com/ecto-chat/ecto-server/internal/category"
	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/config"
	"github.com/ecto-chat/ecto-server/internal/dm"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/presence"
	"github.com/ecto-chat/ecto-server/internal/ratelimit"
	"github.com/ecto-chat/ecto-server/internal/readstate"
	"github.com/ecto-chat/ecto-server/internal/role"
	"github.com/ecto-chat/ecto-server/internal/server"
	"github.com/ecto-chat/ecto-server/internal/serverconfig"
	"github.com/ecto-chat/ecto-server/internal/voice"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

const (
	// identifyWait is how long a client has to identify after hello.
	identifyWait = 10 * time.Second

	// heartbeatCutoff closes a session that stops heartbeating.
	heartbeatCutoff = 90 * time.Second

	// typingInterval rate-limits typing events per (user, channel).
	typingInterval = 3 * time.Second

	// voiceQueueDepth bounds the per-session voice command queue.
	voiceQueueDepth = 32
)

// Deps wires the handler to the rest of the process.
type Deps struct {
	Config      *config.Config
	Auth        *auth.Service
	Members     member.Repository
	Channels    channel.Repository
	Categories  category.Repository
	Roles       role.Repository
	Server      server.Repository
	ServerCfg   serverconfig.Repository
	ReadStates  readstate.Repository
	Dms         dm.Repository
	Perms       *permission.Service
	Presence    *presence.Manager
	Voice       *voice.Controller
	VoiceStates *voice.StateManager
	Registry    *Registry
	Dispatcher  *Dispatcher
	Logger      zerolog.Logger
}

// Handler runs the session protocol over upgraded WebSocket connections:
// hello, identify, heartbeats, resume, subscriptions, typing, presence, and
// the per-session voice command queue.
type Handler struct {
	deps   Deps
	typing *ratelimit.Limiter
	log    zerolog.Logger
}

// NewHandler creates the protocol handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		typing: ratelimit.New(1, typingInterval),
		log:    deps.Logger.With().Str("component", "gateway").Logger(),
	}
}

// client is the per-connection protocol state. sess is re-pointed when a
// resume adopts a detached session.
type client struct {
	h        *Handler
	conn     *connection
	sess     *Session
	voiceq   *voiceQueue
	watchdog *time.Timer
}

// ServeWS runs the protocol on an upgraded socket. It blocks until the
// connection closes.
func (h *Handler) ServeWS(ws wsConn) {
	conn := newConnection(ws, h.log)
	go conn.writePump()

	c := &client{h: h, conn: conn, sess: NewSession(conn)}

	hello, err := marshalFrame(wire.EventHello, wire.HelloPayload{
		HeartbeatInterval: int(h.deps.Config.HeartbeatInterval / time.Millisecond),
		SessionID:         c.sess.ID,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal hello")
		conn.close(CloseUnknownError, "internal error")
		return
	}
	conn.enqueue(hello)

	c.readLoop(ws)
}

func (c *client) readLoop(ws wsConn) {
	defer c.disconnect()

	ws.SetReadLimit(maxMessageSize)

	identifyTimer := time.AfterFunc(identifyWait, func() {
		if !c.sess.Authenticated() {
			c.conn.close(CloseNotAuthenticated, "identify timeout")
		}
	})
	defer identifyTimer.Stop()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.conn.close(CloseInvalidPayload, "malformed frame")
			return
		}

		if !c.sess.Authenticated() {
			if frame.Event != wire.EventIdentify {
				c.conn.close(CloseNotAuthenticated, "identify first")
				return
			}
			identifyTimer.Stop()
			if !c.h.handleIdentify(c, frame.Data) {
				return
			}
			continue
		}

		if !c.dispatch(frame) {
			return
		}
	}
}

// dispatch routes one post-identify frame. It reports whether the read loop
// should continue.
func (c *client) dispatch(frame Frame) bool {
	h := c.h
	switch frame.Event {
	case wire.EventIdentify:
		c.conn.close(CloseAlreadyAuthenticated, "already identified")
		return false
	case wire.EventHeartbeat:
		c.sess.Heartbeat()
		if c.watchdog != nil {
			c.watchdog.Reset(heartbeatCutoff)
		}
		if ack, err := marshalFrame(wire.EventHeartbeatAck, struct{}{}); err == nil {
			c.conn.enqueue(ack)
		}
	case wire.EventResume:
		return h.handleResume(c, frame.Data)
	case wire.EventSubscribe:
		return h.handleSubscribe(c, frame.Data, true)
	case wire.EventUnsubscribe:
		return h.handleSubscribe(c, frame.Data, false)
	case wire.EventTypingStart, wire.EventTypingStop:
		return h.handleTyping(c, frame.Event, frame.Data)
	case wire.EventDmTyping:
		return h.handleDmTyping(c, frame.Data)
	case wire.EventPresenceUpdate:
		return h.handlePresenceUpdate(c, frame.Data)
	default:
		if wire.IsVoiceEvent(frame.Event) {
			c.voiceq.submit(func() { h.handleVoice(c, frame.Event, frame.Data) })
			return true
		}
		c.conn.close(CloseInvalidPayload, "unknown event")
		return false
	}
	return true
}

// handleIdentify authenticates the session, registers it, and pushes the
// ready snapshot. It reports whether the connection survives.
func (h *Handler) handleIdentify(c *client, data json.RawMessage) bool {
	var p wire.IdentifyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.conn.close(CloseInvalidPayload, "invalid identify payload")
		return false
	}
	if p.ProtocolVersion != nil && *p.ProtocolVersion != wire.ProtocolVersion {
		c.conn.close(CloseProtocolVersionMismatch, "unsupported protocol version")
		return false
	}
	if p.Token == "" {
		c.conn.close(CloseAuthenticationFailed, "token required")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ident, err := h.deps.Auth.VerifyToken(ctx, p.Token)
	if err != nil {
		c.conn.close(CloseAuthenticationFailed, "invalid token")
		return false
	}
	isMember, err := h.deps.Members.Exists(ctx, ident.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("identify membership lookup failed")
		c.conn.close(CloseUnknownError, "internal error")
		return false
	}
	if !isMember {
		c.conn.close(CloseAuthenticationFailed, "not a member")
		return false
	}

	c.sess.Authenticate(ident.UserID)
	h.deps.Registry.Add(c.sess)
	h.deps.Presence.Connect(ident.UserID)

	c.voiceq = newVoiceQueue()
	go c.voiceq.run()

	c.watchdog = time.AfterFunc(heartbeatCutoff, func() {
		c.conn.close(CloseSessionTimeout, "heartbeat expired")
	})

	ready, err := h.assembleReady(ctx, ident.UserID)
	if err != nil {
		h.log.Error().Err(err).Stringer("user_id", ident.UserID).Msg("ready snapshot failed")
		c.conn.close(CloseUnknownError, "internal error")
		return false
	}
	if err := c.sess.Push(wire.EventReady, ready); err != nil {
		h.log.Error().Err(err).Msg("push ready")
		c.conn.close(CloseUnknownError, "internal error")
		return false
	}
	if p.ActiveChannelID != nil {
		c.sess.Subscribe(*p.ActiveChannelID)
	}

	h.log.Info().Stringer("user_id", ident.UserID).Stringer("session_id", c.sess.ID).Msg("session identified")
	return true
}

// handleResume replays missed events. Resuming the live session replays its
// own buffer; a detached session of the same user is re-adopted with its
// sequence, subscriptions, and buffer; anything else replays nothing.
func (h *Handler) handleResume(c *client, data json.RawMessage) bool {
	var p wire.ResumePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.conn.close(CloseInvalidPayload, "invalid resume payload")
		return false
	}

	if p.SessionID == c.sess.ID {
		n := c.sess.Replay(p.LastSeq)
		_ = c.sess.Push(wire.EventResumed, wire.ResumedPayload{Replayed: n})
		return true
	}

	old, ok := h.deps.Registry.Get(p.SessionID)
	if !ok || !old.Detached() || old.UserID() != c.sess.UserID() {
		_ = c.sess.Push(wire.EventResumed, wire.ResumedPayload{Replayed: 0})
		return true
	}

	h.deps.Registry.Remove(c.sess.ID)
	old.adopt(c.conn)
	c.sess = old
	n := old.Replay(p.LastSeq)
	_ = old.Push(wire.EventResumed, wire.ResumedPayload{Replayed: n})
	h.log.Info().Stringer("session_id", old.ID).Int("replayed", n).Msg("session resumed")
	return true
}

func (h *Handler) handleSubscribe(c *client, data json.RawMessage, subscribe bool) bool {
	var p wire.SubscribePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.conn.close(CloseInvalidPayload, "invalid subscribe payload")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := h.deps.Perms.HasChannelPermission(ctx, c.sess.UserID(), p.ChannelID, permission.ReadMessages)
	if err != nil {
		h.log.Error().Err(err).Stringer("channel_id", p.ChannelID).Msg("subscribe permission check failed")
	}
	if err != nil || !ok {
		// Tell the client the subscription did not take; silence here is
		// indistinguishable from a lost frame.
		_ = c.sess.Push(wire.EventSubscribeRejected, p)
		return true
	}

	if subscribe {
		c.sess.Subscribe(p.ChannelID)
		_ = c.sess.Push(wire.EventSubscribed, p)
	} else {
		c.sess.Unsubscribe(p.ChannelID)
		_ = c.sess.Push(wire.EventUnsubscribed, p)
	}
	return true
}

func (h *Handler) handleTyping(c *client, event string, data json.RawMessage) bool {
	var p wire.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.conn.close(CloseInvalidPayload, "invalid typing payload")
		return false
	}

	userID := c.sess.UserID()
	if !h.typing.Allow(userID.String() + "|" + p.ChannelID.String()) {
		return true
	}
	h.deps.Dispatcher.ToChannel(p.ChannelID, event, wire.TypingPayload{
		ChannelID: p.ChannelID,
		UserID:    userID,
	})
	return true
}

func (h *Handler) handleDmTyping(c *client, data json.RawMessage) bool {
	var p wire.DmTypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.conn.close(CloseInvalidPayload, "invalid typing payload")
		return false
	}

	userID := c.sess.UserID()
	if !h.typing.Allow(userID.String() + "|" + p.ConversationID.String()) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := h.deps.Dms.GetConversation(ctx, p.ConversationID)
	if err != nil || !conv.HasParticipant(userID) {
		return true
	}
	h.deps.Dispatcher.ToUser(conv.Peer(userID), wire.EventDmTyping, wire.DmTypingPayload{
		ConversationID: p.ConversationID,
		UserID:         userID,
	})
	return true
}

func (h *Handler) handlePresenceUpdate(c *client, data json.RawMessage) bool {
	var p wire.PresenceUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.conn.close(CloseInvalidPayload, "invalid presence payload")
		return false
	}
	h.deps.Presence.Update(c.sess.UserID(), p.Status, p.CustomText)
	return true
}

// handleVoice runs one voice command. Called from the session's voice
// queue, so commands on one session never overlap.
func (h *Handler) handleVoice(c *client, event string, data json.RawMessage) {
	userID := c.sess.UserID()
	sessionID := c.sess.ID

	fail := func(err error) {
		if err == nil {
			return
		}
		verr, ok := err.(*voice.Error)
		if !ok {
			verr = &voice.Error{Code: wire.VoiceError, Message: "voice command failed"}
		}
		h.deps.Dispatcher.ToSession(sessionID, wire.EventVoiceError, wire.VoiceErrorPayload{
			Code:    verr.Code,
			Message: verr.Message,
		})
	}

	switch event {
	case wire.EventVoiceJoin:
		var p wire.VoiceJoinPayload
		if err := json.Unmarshal(data, &p); err != nil {
			fail(&voice.Error{Code: wire.VoiceError, Message: "invalid join payload"})
			return
		}
		fail(h.voiceJoin(c, p.ChannelID, p.RtpCapabilities))

	case wire.EventVoiceLeave:
		fail(h.deps.Voice.Leave(userID))

	case wire.EventVoiceConnectTransport:
		var p wire.VoiceConnectTransportPayload
		if err := json.Unmarshal(data, &p); err != nil {
			fail(&voice.Error{Code: wire.VoiceError, Message: "invalid transport payload"})
			return
		}
		fail(h.deps.Voice.ConnectTransport(userID, p.TransportID, p.DtlsParameters))

	case wire.EventVoiceProduce:
		var p wire.VoiceProducePayload
		if err := json.Unmarshal(data, &p); err != nil {
			fail(&voice.Error{Code: wire.VoiceError, Message: "invalid produce payload"})
			return
		}
		producerID, err := h.deps.Voice.Produce(userID, p.TransportID, p.Kind, p.RtpParameters, p.Source)
		if err != nil {
			fail(err)
			return
		}
		h.deps.Dispatcher.ToSession(sessionID, wire.EventVoiceProduced, wire.VoiceProducedPayload{ProducerID: producerID})

	case wire.EventVoiceProduceStop:
		var p wire.VoiceProducerRefPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fail(h.deps.Voice.ProduceStop(userID, p.ProducerID))

	case wire.EventVoiceProducerPause:
		var p wire.VoiceProducerRefPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fail(h.deps.Voice.PauseProducer(userID, p.ProducerID))

	case wire.EventVoiceProducerResume:
		var p wire.VoiceProducerRefPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fail(h.deps.Voice.ResumeProducer(userID, p.ProducerID))

	case wire.EventVoiceConsumerResume:
		var p wire.VoiceConsumerResumePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fail(h.deps.Voice.ResumeConsumer(userID, p.ConsumerID))

	case wire.EventVoiceMute:
		var p wire.VoiceMutePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fail(h.deps.Voice.Mute(userID, p.SelfMute, p.SelfDeaf))

	case wire.EventVoiceSetQuality:
		var p wire.VoiceSetQualityPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		fail(h.deps.Voice.SetQuality(userID, p.ConsumerID, p.SpatialLayer, p.TemporalLayer))

	default:
		fail(&voice.Error{Code: wire.VoiceError, Message: "unknown voice command"})
	}
}

// voiceJoin gates a join on channel type and CONNECT_VOICE before handing
// off to the control plane.
func (h *Handler) voiceJoin(c *client, channelID uuid.UUID, rtpCapabilities json.RawMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := h.deps.Channels.GetByID(ctx, channelID)
	if err != nil {
		return &voice.Error{Code: wire.VoiceObjectNotFound, Message: "channel not found"}
	}
	if ch.Type != wire.ChannelTypeVoice {
		return &voice.Error{Code: wire.VoiceError, Message: "not a voice channel"}
	}
	ok, err := h.deps.Perms.HasChannelPermission(ctx, c.sess.UserID(), channelID, permission.ConnectVoice)
	if err != nil || !ok {
		return &voice.Error{Code: wire.Forbidden, Message: "insufficient permissions"}
	}
	return h.deps.Voice.Join(c.sess.ID, c.sess.UserID(), channelID, rtpCapabilities)
}

// disconnect tears down per-connection state. The session detaches but
// stays resumable; voice state tied to this session is removed immediately,
// and the offline grace starts when the user's last socket is gone.
func (c *client) disconnect() {
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	if c.voiceq != nil {
		c.voiceq.stop()
	}

	if c.sess.Authenticated() {
		c.h.deps.Voice.RemoveSession(c.sess.ID)
		c.sess.detach()
		userID := c.sess.UserID()
		if !c.h.deps.Registry.HasAttached(userID) {
			c.h.deps.Presence.Disconnect(userID)
		}
	}
	c.conn.close(CloseUnknownError, "")
}

// CloseUser force-closes every session of a user and removes their voice
// and presence state. Kick and ban run this post-commit.
func (h *Handler) CloseUser(userID uuid.UUID, reason string) {
	for _, s := range h.deps.Registry.ForUser(userID) {
		s.closeSocket(CloseNotAuthenticated, reason)
		h.deps.Registry.Remove(s.ID)
	}
	h.deps.Voice.RemoveUser(userID)
	h.deps.Presence.Remove(userID)
}

// Shutdown closes every connection and stops the handler's timers.
func (h *Handler) Shutdown() {
	for _, s := range h.deps.Registry.All() {
		s.closeSocket(CloseUnknownError, "server shutting down")
		h.deps.Registry.Remove(s.ID)
	}
	h.typing.Close()
}

// voiceQueue serialises voice commands per session: one consumer goroutine
// drains a bounded task queue, so commands from one session run one at a
// time while different sessions proceed in parallel.
type voiceQueue struct {
	tasks    chan func()
	stopOnce sync.Once
}

func newVoiceQueue() *voiceQueue {
	return &voiceQueue{tasks: make(chan func(), voiceQueueDepth)}
}

func (q *voiceQueue) run() {
	for task := range q.tasks {
		task()
	}
}

// submit queues a command; a backed-up queue drops it rather than stalling
// the read loop.
func (q *voiceQueue) submit(task func()) {
	if q == nil {
		return
	}
	select {
	case q.tasks <- task:
	default:
	}
}

func (q *voiceQueue) stop() {
	q.stopOnce.Do(func() { close(q.tasks) })
}
