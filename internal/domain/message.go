package domain

import "time"

// Sender identifies who authored a message. The wire values match the
// messaging platform's payload: the counterparty is "scammer", the honeypot
// agent is "user".
type Sender string

const (
	SenderScammer Sender = "scammer"
	SenderAgent   Sender = "user"
)

// Message is a single immutable conversation turn.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the identity used for duplicate detection when callers replay
// conversation history. Two messages with the same sender, text and timestamp
// are the same message.
func (m Message) Key() string {
	return string(m.Sender) + "\x00" + m.Text + "\x00" + m.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Metadata carries informational channel attributes. Not used by the
// detection pipeline.
type Metadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// InboundEvent is one validated message event from the messaging platform.
type InboundEvent struct {
	SessionID string
	Message   Message
	History   []Message
	Metadata  Metadata
}

// EventResponse is the synchronous reply to an inbound event. Reply is empty
// when the session is not engaged for this turn. Detection state is never
// leaked here.
type EventResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply,omitempty"`
}
