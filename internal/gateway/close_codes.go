package gateway

// WebSocket close codes used by the session protocol. Standard codes (1000,
// 1001) are defined by RFC 6455; the 4000 range is reserved for application
// use.
const (
	CloseUnknownError            = 4000
	CloseInvalidPayload          = 4001
	CloseProtocolVersionMismatch = 4002
	CloseNotAuthenticated        = 4003
	CloseAuthenticationFailed    = 4004
	CloseSessionTimeout          = 4005
	CloseAlreadyAuthenticated    = 4006
)
