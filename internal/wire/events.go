package wire

// Event names as they appear in the "event" field of gateway frames. Client to
// server requests and server to client dispatches share one namespace.
const (
	EventHello        = "system.hello"
	EventIdentify     = "system.identify"
	EventReady        = "system.ready"
	EventHeartbeat    = "system.heartbeat"
	EventHeartbeatAck = "system.heartbeat_ack"
	EventResume       = "system.resume"
	EventResumed      = "system.resumed"

	EventSubscribe         = "subscribe"
	EventSubscribed        = "subscribed"
	EventSubscribeRejected = "subscribe_rejected"
	EventUnsubscribe       = "unsubscribe"
	EventUnsubscribed      = "unsubscribed"

	EventTypingStart = "typing.start"
	EventTypingStop  = "typing.stop"

	EventPresenceUpdate = "presence.update"

	EventMessageCreate         = "message.create"
	EventMessageUpdate         = "message.update"
	EventMessageDelete         = "message.delete"
	EventMessageBulkDelete     = "message.bulk_delete"
	EventMessageReactionUpdate = "message.reaction_update"
	EventMentionCreate         = "mention.create"

	EventMemberJoin   = "member.join"
	EventMemberLeave  = "member.leave"
	EventMemberUpdate = "member.update"

	EventChannelCreate  = "channel.create"
	EventChannelUpdate  = "channel.update"
	EventChannelDelete  = "channel.delete"
	EventChannelReorder = "channel.reorder"

	EventCategoryCreate  = "category.create"
	EventCategoryUpdate  = "category.update"
	EventCategoryDelete  = "category.delete"
	EventCategoryReorder = "category.reorder"

	EventRoleCreate  = "role.create"
	EventRoleUpdate  = "role.update"
	EventRoleDelete  = "role.delete"
	EventRoleReorder = "role.reorder"

	EventServerUpdate = "server.update"
	EventConfigUpdate = "server.config_update"

	EventPageUpdate = "page.update"

	EventDmMessage        = "server_dm.message"
	EventDmMessageUpdate  = "server_dm.update"
	EventDmMessageDelete  = "server_dm.delete"
	EventDmReactionUpdate = "server_dm.reaction_update"
	EventDmTyping         = "server_dm.typing"

	EventVoiceJoin               = "voice.join"
	EventVoiceLeave              = "voice.leave"
	EventVoiceConnectTransport   = "voice.connect_transport"
	EventVoiceProduce            = "voice.produce"
	EventVoiceProduced           = "voice.produced"
	EventVoiceProduceStop        = "voice.produce_stop"
	EventVoiceProducerPause      = "voice.producer_pause"
	EventVoiceProducerResume     = "voice.producer_resume"
	EventVoiceProducerClosed     = "voice.producer_closed"
	EventVoiceConsumerResume     = "voice.consumer_resume"
	EventVoiceNewConsumer        = "voice.new_consumer"
	EventVoiceMute               = "voice.mute"
	EventVoiceSetQuality         = "voice.set_quality"
	EventVoiceStateUpdate        = "voice.state_update"
	EventVoiceRouterCapabilities = "voice.router_capabilities"
	EventVoiceTransportCreated   = "voice.transport_created"
	EventVoiceError              = "voice.error"

	EventNotify = "notify"
)

// Notify socket types carried in the notify frame's "type" field.
const (
	NotifyMessage = "message"
	NotifyMention = "mention"
	NotifyDm      = "dm"
)

// IsVoiceEvent reports whether the event name belongs to the voice.* family.
// Voice requests are serialized per session instead of handled inline.
func IsVoiceEvent(event string) bool {
	return len(event) > 6 && event[:6] == "voice."
}
