package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Gateway payloads. SDP/RTP blobs are opaque to the server and pass through as
// raw JSON between the client and the media engine.

// ProtocolVersion is the only version of the gateway protocol this server
// speaks. Identify payloads carrying a different value are closed with 4002.
const ProtocolVersion = 1

type HelloPayload struct {
	HeartbeatInterval int       `json:"heartbeat_interval"`
	SessionID         uuid.UUID `json:"session_id"`
}

type IdentifyPayload struct {
	Token           string     `json:"token"`
	ProtocolVersion *int       `json:"protocol_version,omitempty"`
	ActiveChannelID *uuid.UUID `json:"active_channel_id,omitempty"`
}

type ResumePayload struct {
	SessionID uuid.UUID `json:"session_id"`
	LastSeq   int64     `json:"last_seq"`
}

type ResumedPayload struct {
	Replayed int `json:"replayed"`
}

type SubscribePayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

type TypingPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id,omitempty"`
}

type DmTypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id,omitempty"`
}

type PresenceUpdatePayload struct {
	Status     string `json:"status"`
	CustomText string `json:"custom_text,omitempty"`
}

// MentionCreatePayload notifies one user about a new mention.
type MentionCreatePayload struct {
	ChannelID    uuid.UUID `json:"channel_id"`
	MessageID    uuid.UUID `json:"message_id"`
	AuthorID     uuid.UUID `json:"author_id"`
	MentionCount int       `json:"mention_count"`
}

// ReactionUpdatePayload is broadcast on add and remove; Count is the row count
// for (message, emoji) after the mutation.
type ReactionUpdatePayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
	UserID    uuid.UUID `json:"user_id"`
	Action    string    `json:"action"`
	Count     int       `json:"count"`
}

// BulkDeletePayload carries the ids soft-deleted by a ban cleanup.
type BulkDeletePayload struct {
	ChannelID  uuid.UUID   `json:"channel_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
}

type MessageDeletePayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
}

type MemberLeavePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason,omitempty"`
}

type NotifyPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Ts        time.Time `json:"ts"`
	Type      string    `json:"type"`
}

// Voice control payloads.

type VoiceJoinPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	// RtpCapabilities is the joining client's receive capability set; the
	// SFU filters consumer fan-out against it.
	RtpCapabilities json.RawMessage `json:"rtp_capabilities,omitempty"`
}

type VoiceConnectTransportPayload struct {
	TransportID    string          `json:"transport_id"`
	DtlsParameters json.RawMessage `json:"dtls_parameters"`
}

type VoiceProducePayload struct {
	TransportID   string          `json:"transport_id"`
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtp_parameters"`
	Source        string          `json:"source,omitempty"`
}

type VoiceProducedPayload struct {
	ProducerID string `json:"producer_id"`
}

type VoiceProducerRefPayload struct {
	ProducerID string `json:"producer_id"`
}

type VoiceProducerClosedPayload struct {
	ProducerID string    `json:"producer_id"`
	UserID     uuid.UUID `json:"user_id"`
}

type VoiceConsumerResumePayload struct {
	ConsumerID string `json:"consumer_id"`
}

type VoiceMutePayload struct {
	SelfMute *bool `json:"self_mute,omitempty"`
	SelfDeaf *bool `json:"self_deaf,omitempty"`
}

type VoiceSetQualityPayload struct {
	ConsumerID    string `json:"consumer_id"`
	SpatialLayer  *int   `json:"spatial_layer,omitempty"`
	TemporalLayer *int   `json:"temporal_layer,omitempty"`
}

type VoiceRouterCapabilitiesPayload struct {
	RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
}

// TransportInfo is the client-facing description of one WebRTC transport.
type TransportInfo struct {
	ID             string          `json:"id"`
	IceParameters  json.RawMessage `json:"ice_parameters"`
	IceCandidates  json.RawMessage `json:"ice_candidates"`
	DtlsParameters json.RawMessage `json:"dtls_parameters"`
}

type VoiceTransportCreatedPayload struct {
	Send TransportInfo `json:"send"`
	Recv TransportInfo `json:"recv"`
}

type VoiceNewConsumerPayload struct {
	ConsumerID    string          `json:"consumer_id"`
	ProducerID    string          `json:"producer_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtpParameters"`
	Source        string          `json:"source,omitempty"`
}

type VoiceErrorPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}
