package entity

import "time"

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Envelope is the unit written to a client. Values are never mutated after
// construction; WithMetadata returns a copy.
type Envelope struct {
	Type      string            `json:"type"`
	Channel   string            `json:"channel,omitempty"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Data      any               `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	EventID   string            `json:"eventId,omitempty"`
	Metadata  *EnvelopeMetadata `json:"_metadata,omitempty"`
}

type EnvelopeMetadata struct {
	BroadcastID string   `json:"broadcastId"`
	Channel     string   `json:"channel,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	Persistent  bool     `json:"persistent,omitempty"`
}

func NewEnvelope(msgType string, data any) Envelope {
	return Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func (e Envelope) WithMetadata(metadata EnvelopeMetadata) Envelope {
	e.Metadata = &metadata
	return e
}

// InboundMessage is a parsed client frame. Data is the raw "data" member,
// decoded by whichever domain handler owns the message type.
type InboundMessage struct {
	Type      string
	RequestID string
	Channel   string
	Options   SubscribeOptions
	Data      []byte
}

type SubscribeOptions struct {
	InitialData bool `json:"initialData"`
}

