package patterns

import (
	"regexp"
	"strings"

	"honeypot/internal/domain"
)

// Extraction grammars. These deliberately over-match slightly and rely on
// normalization plus cross-category exclusion (phone numbers are not bank
// accounts) to stay precise.
var (
	upiRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9._-]*@[A-Za-z][A-Za-z0-9.-]+`)
	urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)
	// Country-code-optional Indian mobile numbers.
	phoneRe = regexp.MustCompile(`(?:\+91[ -]?|91|0)?[6-9]\d{9}\b`)
	// Digit runs with optional space/dash grouping; length is validated
	// after separators are stripped.
	accountRe = regexp.MustCompile(`\b\d[\d -]{7,24}\d\b`)

	digitsOnly = regexp.MustCompile(`\D`)
)

const (
	accountMinDigits = 9
	accountMaxDigits = 18
)

// Extract runs every extraction grammar over text and returns the normalized
// artifacts found. Normalization is stable: the same raw input always yields
// the same artifact, so session-level dedup is exact-match.
func (l *Library) Extract(text string) domain.IntelBundle {
	var out domain.IntelBundle

	for _, raw := range upiRe.FindAllString(text, -1) {
		out.Add(domain.IntelUPIIDs, NormalizeHandle(raw))
	}

	for _, raw := range urlRe.FindAllString(text, -1) {
		out.Add(domain.IntelLinks, NormalizeURL(raw))
	}

	phones := map[string]bool{}
	for _, raw := range phoneRe.FindAllString(text, -1) {
		p := NormalizeDigits(raw)
		phones[p] = true
		out.Add(domain.IntelPhones, p)
	}

	for _, raw := range accountRe.FindAllString(text, -1) {
		acc := NormalizeDigits(raw)
		if len(acc) < accountMinDigits || len(acc) > accountMaxDigits {
			continue
		}
		// A sequence already identified as a phone number is not an account.
		if phones[acc] {
			continue
		}
		out.Add(domain.IntelBankAccounts, acc)
	}

	lower := strings.ToLower(text)
	for _, kw := range l.keywords {
		if strings.Contains(lower, kw) {
			out.Add(domain.IntelKeywords, kw)
		}
	}

	return out
}

// NormalizeHandle lowercases a payment handle and strips sentence
// punctuation that the grammar may have swallowed.
func NormalizeHandle(raw string) string {
	return strings.ToLower(strings.Trim(raw, ".,;:"))
}

// NormalizeURL strips trailing sentence punctuation from a matched URL.
func NormalizeURL(raw string) string {
	return strings.TrimRight(raw, ".,;:)!?")
}

// NormalizeDigits reduces a matched numeric sequence to bare digits,
// dropping separators and the leading country code prefix's plus sign.
func NormalizeDigits(raw string) string {
	return digitsOnly.ReplaceAllString(raw, "")
}
