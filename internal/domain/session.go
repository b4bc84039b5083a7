package domain

import "time"

// Status is a session's lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusMonitoring Status = "monitoring"
	StatusEngaged    Status = "engaged"
	StatusConcluding Status = "concluding"
	StatusClosed     Status = "closed"
)

// Session is the mutable root aggregate for one conversation, keyed by the
// caller-supplied session ID. It is owned exclusively by the engagement
// engine; stores persist it without interpreting its contents.
type Session struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	// Messages is the chronological, append-only transcript, including the
	// agent's own replies.
	Messages []Message `json:"messages"`

	// ScamDetected latches true the first time an evaluation crosses the
	// activation threshold.
	ScamDetected bool `json:"scamDetected"`

	// PeakConfidence is the highest intent confidence seen so far.
	PeakConfidence float64 `json:"peakConfidence"`

	// QualifyingTurns counts counterparty messages that crossed the threshold.
	QualifyingTurns int `json:"qualifyingTurns"`

	Intel IntelBundle `json:"intel"`

	// Signals accumulates the names of scoring signatures matched across the
	// session, for the report's behavioral notes.
	Signals []string `json:"signals,omitempty"`

	// Notes accumulates free-text observations (probe findings etc.)
	// appended to the final report.
	Notes []string `json:"notes,omitempty"`

	// ReportSent guards exactly-once reporting. Set only after the
	// evaluation endpoint confirmed acceptance.
	ReportSent     bool `json:"reportSent"`
	ReportAttempts int  `json:"reportAttempts"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasMessage reports whether an identical message (sender+text+timestamp)
// was already absorbed into the transcript.
func (s *Session) HasMessage(m Message) bool {
	key := m.Key()
	for _, have := range s.Messages {
		if have.Key() == key {
			return true
		}
	}
	return false
}

// Append adds m to the transcript if it is not a duplicate. Returns true if
// the message was new.
func (s *Session) Append(m Message) bool {
	if s.HasMessage(m) {
		return false
	}
	s.Messages = append(s.Messages, m)
	return true
}

// Tail returns up to n of the most recent messages.
func (s *Session) Tail(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// AddSignal records a matched signature name once.
func (s *Session) AddSignal(name string) {
	for _, have := range s.Signals {
		if have == name {
			return
		}
	}
	s.Signals = append(s.Signals, name)
}
