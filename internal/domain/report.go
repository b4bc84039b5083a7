package domain

// FinalReport is the terminal intelligence report for one session, built once
// at finalize time and delivered at most once.
type FinalReport struct {
	SessionID              string      `json:"sessionId"`
	ScamDetected           bool        `json:"scamDetected"`
	TotalMessagesExchanged int         `json:"totalMessagesExchanged"`
	ExtractedIntelligence  IntelBundle `json:"extractedIntelligence"`
	AgentNotes             string      `json:"agentNotes"`
}

// ReportJob asks the dispatcher to attempt finalize for a session. Published
// by the engine after the per-key lock is released.
type ReportJob struct {
	SessionID string
}

// ReportBus decouples finalize triggering from report delivery so dispatch
// retries never run under a session lock.
type ReportBus interface {
	Publish(job ReportJob)
	Subscribe() <-chan ReportJob
	Close()
}
