package engage

import "honeypot/internal/domain"

// counterpartyTurns counts messages authored by the scammer.
func counterpartyTurns(sess *domain.Session) int {
	n := 0
	for _, m := range sess.Messages {
		if m.Sender == domain.SenderScammer {
			n++
		}
	}
	return n
}

// shouldFinalize decides when a session stops engaging and hands off for
// reporting. A detected session concludes once enough qualifying turns have
// accumulated and either an artifact is in hand or the conversation has run
// long enough that more turns are unlikely to surface one.
func (e *Engine) shouldFinalize(sess *domain.Session) bool {
	if !sess.ScamDetected {
		return false
	}
	if sess.Status != domain.StatusEngaged {
		return false
	}
	if sess.QualifyingTurns < e.minQualifyingTurns {
		return false
	}
	return !sess.Intel.Empty() || counterpartyTurns(sess) >= e.maxTurns
}
