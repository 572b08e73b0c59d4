package protocol

import "errors"

var (
	// ErrUnknownMessageType is returned for types outside the closed set.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrMalformedMessage is returned when a frame fails to parse as JSON.
	ErrMalformedMessage = errors.New("malformed message")
)

// Error codes surfaced to clients in error frames.
const (
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	CodeMaxSubscriptionsExceeded = "MAX_SUBSCRIPTIONS_EXCEEDED"
	CodeUnknownMessageType       = "UNKNOWN_MESSAGE_TYPE"
	CodeMessageProcessingError   = "MESSAGE_PROCESSING_ERROR"
)

// ErrorPayload is the payload of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame with the given code and message.
func NewErrorFrame(code, message string) Frame {
	return NewFrame(MessageError, "", ErrorPayload{Code: code, Message: message})
}
