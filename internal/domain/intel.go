package domain

// IntelCategory names one bucket of extracted intelligence.
type IntelCategory string

const (
	IntelUPIIDs       IntelCategory = "upiIds"
	IntelBankAccounts IntelCategory = "bankAccounts"
	IntelLinks        IntelCategory = "phishingLinks"
	IntelPhones       IntelCategory = "phoneNumbers"
	IntelKeywords     IntelCategory = "suspiciousKeywords"
)

// IntelBundle accumulates normalized artifacts per category over a session.
// Values are deduplicated by exact match and are never removed: categories
// only grow.
type IntelBundle struct {
	UPIIDs             []string `json:"upiIds"`
	BankAccounts       []string `json:"bankAccounts"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

func (b *IntelBundle) category(cat IntelCategory) *[]string {
	switch cat {
	case IntelUPIIDs:
		return &b.UPIIDs
	case IntelBankAccounts:
		return &b.BankAccounts
	case IntelLinks:
		return &b.PhishingLinks
	case IntelPhones:
		return &b.PhoneNumbers
	case IntelKeywords:
		return &b.SuspiciousKeywords
	}
	return nil
}

// Add records a normalized value under cat. Returns true if the value was new.
func (b *IntelBundle) Add(cat IntelCategory, value string) bool {
	if value == "" {
		return false
	}
	slot := b.category(cat)
	if slot == nil {
		return false
	}
	for _, v := range *slot {
		if v == value {
			return false
		}
	}
	*slot = append(*slot, value)
	return true
}

// Values returns the recorded values for cat.
func (b *IntelBundle) Values(cat IntelCategory) []string {
	slot := b.category(cat)
	if slot == nil {
		return nil
	}
	return *slot
}

// Size returns the total number of artifacts across all categories.
func (b *IntelBundle) Size() int {
	return len(b.UPIIDs) + len(b.BankAccounts) + len(b.PhishingLinks) +
		len(b.PhoneNumbers) + len(b.SuspiciousKeywords)
}

// Empty reports whether no artifact has been recorded yet.
func (b *IntelBundle) Empty() bool { return b.Size() == 0 }

// Clone returns a deep copy, used for report snapshots. Slices in the copy
// are always non-nil so empty categories serialize as [] rather than null.
func (b *IntelBundle) Clone() IntelBundle {
	cp := IntelBundle{
		UPIIDs:             make([]string, 0, len(b.UPIIDs)),
		BankAccounts:       make([]string, 0, len(b.BankAccounts)),
		PhishingLinks:      make([]string, 0, len(b.PhishingLinks)),
		PhoneNumbers:       make([]string, 0, len(b.PhoneNumbers)),
		SuspiciousKeywords: make([]string, 0, len(b.SuspiciousKeywords)),
	}
	cp.UPIIDs = append(cp.UPIIDs, b.UPIIDs...)
	cp.BankAccounts = append(cp.BankAccounts, b.BankAccounts...)
	cp.PhishingLinks = append(cp.PhishingLinks, b.PhishingLinks...)
	cp.PhoneNumbers = append(cp.PhoneNumbers, b.PhoneNumbers...)
	cp.SuspiciousKeywords = append(cp.SuspiciousKeywords, b.SuspiciousKeywords...)
	return cp
}
