// Package intel merges extraction results into a session's intelligence
// bundle. Accumulation is purely additive: a recorded artifact is never
// removed, and categories only grow over a session's lifetime.
package intel

import (
	"honeypot/internal/domain"
	"honeypot/internal/patterns"
)

// Aggregator applies the library's extraction grammars and folds results
// into session bundles. Stateless; safe for concurrent use.
type Aggregator struct {
	lib *patterns.Library
}

func NewAggregator(lib *patterns.Library) *Aggregator {
	return &Aggregator{lib: lib}
}

// Absorb extracts artifacts from text and merges them into bundle. The
// returned bundle contains only the newly discovered values, for logging and
// the engine's telemetry.
func (a *Aggregator) Absorb(bundle *domain.IntelBundle, text string) domain.IntelBundle {
	found := a.lib.Extract(text)

	var delta domain.IntelBundle
	for _, cat := range []domain.IntelCategory{
		domain.IntelUPIIDs,
		domain.IntelBankAccounts,
		domain.IntelLinks,
		domain.IntelPhones,
		domain.IntelKeywords,
	} {
		for _, v := range found.Values(cat) {
			if bundle.Add(cat, v) {
				delta.Add(cat, v)
			}
		}
	}
	return delta
}
