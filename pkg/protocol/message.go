package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType enumerates the closed set of control-plane message types.
type MessageType string

const (
	MessageConnect            MessageType = "connect"
	MessageDisconnect         MessageType = "disconnect"
	MessageSubscribe          MessageType = "subscribe"
	MessageUnsubscribe        MessageType = "unsubscribe"
	MessageNotificationUpdate MessageType = "notification_update"
	MessageError              MessageType = "error"

	// MessageAnalyticsEvent is outbound only, carrying analytics fan-out
	// frames. Clients never send it, so it is not a valid inbound type.
	MessageAnalyticsEvent MessageType = "analytics_event"
)

// ParseMessageType validates a raw type string against the closed inbound set.
func ParseMessageType(raw string) (MessageType, error) {
	switch t := MessageType(raw); t {
	case MessageConnect, MessageDisconnect, MessageSubscribe,
		MessageUnsubscribe, MessageNotificationUpdate, MessageError:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, raw)
}

// Message is a single control-plane frame.
// Channel is set on subscribe/unsubscribe, Payload carries type-specific data.
type Message struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode parses a raw inbound frame, validating the message type.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if _, err := ParseMessageType(string(msg.Type)); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Frame is an outbound control-plane frame with an arbitrary payload.
type Frame struct {
	Type      MessageType `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewFrame builds an outbound frame stamped with the current time.
func NewFrame(msgType MessageType, channel string, payload any) Frame {
	return Frame{
		Type:      msgType,
		Channel:   channel,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Encode marshals the frame for transport.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
