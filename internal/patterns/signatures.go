// Package patterns is the static signature library: weighted scoring
// signatures for scam-intent detection and extraction grammars for
// intelligence artifacts. Everything here is pure and read-only after
// initialization, safe to share across sessions without locking.
package patterns

import "regexp"

// Category tags a scoring signature with the kind of pressure it detects.
type Category string

const (
	CategoryUrgency      Category = "urgency"
	CategoryThreat       Category = "threat"
	CategoryVerification Category = "verification-request"
	CategoryFinancial    Category = "financial-pressure"
	CategoryPaymentLure  Category = "payment-lure"
)

// Signature is one weighted lexical matcher. Weight is in [0,1].
type Signature struct {
	Name     string
	Category Category
	Weight   float64
	re       *regexp.Regexp
}

// Match reports whether the signature fires on text.
func (s *Signature) Match(text string) bool { return s.re.MatchString(text) }

func mustSignature(name string, cat Category, weight float64, pattern string) Signature {
	return Signature{
		Name:     name,
		Category: cat,
		Weight:   weight,
		re:       regexp.MustCompile("(?i)" + pattern),
	}
}

// Library holds the active signature set plus the extraction grammars. The
// zero value is unusable; construct with NewLibrary.
type Library struct {
	signatures []Signature
	keywords   []string
}

// NewLibrary returns a library with the built-in signatures.
func NewLibrary() *Library {
	return &Library{
		signatures: builtinSignatures(),
		keywords:   suspiciousKeywords,
	}
}

// AddSignatures appends extra signatures, e.g. from a YAML pack.
func (l *Library) AddSignatures(sigs []Signature) {
	l.signatures = append(l.signatures, sigs...)
}

// Signatures returns the active signature set.
func (l *Library) Signatures() []Signature { return l.signatures }

// Match runs every scoring signature over text and returns those that fire.
func (l *Library) Match(text string) []Signature {
	var matched []Signature
	for i := range l.signatures {
		if l.signatures[i].Match(text) {
			matched = append(matched, l.signatures[i])
		}
	}
	return matched
}

// RuleScore combines matched signature weights with a probabilistic OR:
// 1 - Π(1 - w). Dense matches approach but never exceed 1.0.
func RuleScore(matched []Signature) float64 {
	miss := 1.0
	for i := range matched {
		w := matched[i].Weight
		if w < 0 {
			w = 0
		}
		if w > 1 {
			w = 1
		}
		miss *= 1 - w
	}
	return 1 - miss
}

// builtinSignatures is the default scoring set. Weights reflect how strongly
// each phrasing predicts fraud solicitation on its own.
func builtinSignatures() []Signature {
	return []Signature{
		mustSignature("urgency-deadline", CategoryUrgency, 0.30,
			`\b(urgent(ly)?|immediately|within 24 hours|last chance|right now|act now|action required)\b`),
		mustSignature("urgency-expiry", CategoryUrgency, 0.25,
			`\b(expir(e|ed|ing|y)|deadline|today only)\b`),
		mustSignature("threat-block", CategoryThreat, 0.35,
			`\b(block(ed)?|suspend(ed)?|deactivat(e|ed)|frozen|freeze|terminated?)\b`),
		mustSignature("threat-legal", CategoryThreat, 0.35,
			`\b(legal action|police|arrest(ed)?|penalty|fine will)\b`),
		mustSignature("verification-request", CategoryVerification, 0.35,
			`\b(verify|verification|kyc|re-?activate|confirm your|update your (account|details))\b`),
		mustSignature("credential-request", CategoryVerification, 0.45,
			`\b(otp|one[ -]?time password|upi pin|cvv|password|net ?banking login)\b`),
		mustSignature("payment-channel", CategoryFinancial, 0.25,
			`\b(upi|bank|pay(ment)?|transfer|paytm|gpay|phonepe|wallet|credit card|debit card)\b`),
		mustSignature("payment-demand", CategoryFinancial, 0.40,
			`\b(send (money|rs|inr|amount)|pay (now|immediately)|processing fee|small fee)\b`),
		mustSignature("upi-collect-lure", CategoryPaymentLure, 0.50,
			`\b(enter upi pin|receive money|scan (the )?q[rt]|refund.*upi|upi.*refund|upi id.*verify)\b`),
		mustSignature("prize-lure", CategoryPaymentLure, 0.40,
			`\b(lottery|you (have )?won|lucky draw|cash ?back|reward points? (expire|credited))\b`),
		mustSignature("contains-link", CategoryVerification, 0.20,
			`https?://`),
	}
}

// suspiciousKeywords are flagged verbatim into the intelligence bundle when
// present. Matching is case-insensitive; values are stored lowercased.
var suspiciousKeywords = []string{
	"blocked", "urgent", "immediately", "suspend", "verify",
	"kyc", "pin", "otp", "login", "password",
}
