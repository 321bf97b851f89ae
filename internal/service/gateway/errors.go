package gateway

import "errors"

var (
	ErrDuplicateSession = errors.New("duplicate session id")
	ErrSessionClosed    = errors.New("session closed")
	ErrSlowConsumer     = errors.New("slow consumer")
	ErrChannelForbidden = errors.New("channel access denied")
	ErrChannelLimit     = errors.New("channel limit reached")
	ErrInvalidChannel   = errors.New("channel is required")
	ErrInvalidMessage   = errors.New("invalid message format")
	ErrUnknownType      = errors.New("unknown message type")
	ErrProcessing       = errors.New("message processing failed")
)

// wire error codes carried in error envelopes
const (
	CodeInvalidMessage      = "INVALID_MESSAGE"
	CodeUnknownMessageType  = "UNKNOWN_MESSAGE_TYPE"
	CodeInvalidChannel      = "INVALID_CHANNEL"
	CodeChannelAccessDenied = "CHANNEL_ACCESS_DENIED"
	CodeChannelLimit        = "CHANNEL_LIMIT"
	CodeProcessingError     = "PROCESSING_ERROR"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return CodeInvalidMessage
	case errors.Is(err, ErrUnknownType):
		return CodeUnknownMessageType
	case errors.Is(err, ErrInvalidChannel):
		return CodeInvalidChannel
	case errors.Is(err, ErrChannelForbidden):
		return CodeChannelAccessDenied
	case errors.Is(err, ErrChannelLimit):
		return CodeChannelLimit
	default:
		return CodeProcessingError
	}
}
