// Package sentinel is the hybrid scam-intent scorer. It fuses a rule-based
// channel (weighted signature matches) with a semantic channel (the oracle's
// classification score) into one confidence value against the activation
// threshold. Oracle failure degrades to the rule channel plus a graded
// heuristic; an evaluation never fails the request.
package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"honeypot/internal/domain"
	"honeypot/internal/patterns"
)

const (
	// DefaultThreshold is the activation confidence from the evaluation
	// protocol: evaluations at or above it qualify the message.
	DefaultThreshold = 0.65

	defaultRuleWeight   = 0.2
	defaultOracleWeight = 0.8
	defaultTimeout      = 5 * time.Second
)

// Evaluation is the per-message scoring result. Ephemeral: it informs one
// engage/stay-silent decision and is not persisted.
type Evaluation struct {
	// Confidence is the fused score in [0,1].
	Confidence float64
	// Qualifies is the decision against the activation threshold.
	Qualifies bool
	// RuleScore and OracleScore are the two channel contributions.
	RuleScore   float64
	OracleScore float64
	// OracleUsed is false when the oracle was unavailable and OracleScore
	// came from the heuristic fallback.
	OracleUsed bool
	// Signals names the scoring signatures that matched.
	Signals []string
	// Reason is a short human-readable explanation.
	Reason string
}

// Sentinel scores messages. Safe for concurrent use.
type Sentinel struct {
	lib          *patterns.Library
	oracle       domain.Provider
	threshold    float64
	ruleWeight   float64
	oracleWeight float64
	timeout      time.Duration
	logger       *slog.Logger
}

type Config struct {
	Library      *patterns.Library
	Oracle       domain.Provider // nil disables the semantic channel
	Threshold    float64
	RuleWeight   float64
	OracleWeight float64
	Timeout      time.Duration
	Logger       *slog.Logger
}

func New(cfg Config) *Sentinel {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.RuleWeight <= 0 && cfg.OracleWeight <= 0 {
		cfg.RuleWeight = defaultRuleWeight
		cfg.OracleWeight = defaultOracleWeight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sentinel{
		lib:          cfg.Library,
		oracle:       cfg.Oracle,
		threshold:    cfg.Threshold,
		ruleWeight:   cfg.RuleWeight,
		oracleWeight: cfg.OracleWeight,
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
	}
}

// Threshold returns the configured activation threshold.
func (s *Sentinel) Threshold() float64 { return s.threshold }

// Evaluate scores one message. Either channel independently clearing the
// threshold flags the message; otherwise the weighted fusion must clear it.
func (s *Sentinel) Evaluate(ctx context.Context, text string) Evaluation {
	matched := s.lib.Match(text)
	ruleScore := patterns.RuleScore(matched)

	names := make([]string, len(matched))
	for i := range matched {
		names[i] = matched[i].Name
	}

	oracleScore, reason, oracleUsed := s.semanticScore(ctx, text, names)
	if !oracleUsed {
		oracleScore, reason = fallbackScore(matched)
	}

	ev := Evaluation{
		RuleScore:   ruleScore,
		OracleScore: oracleScore,
		OracleUsed:  oracleUsed,
		Signals:     names,
		Reason:      reason,
	}

	// Either channel alone clearing the threshold is decisive; the rule
	// channel boosts, it is never averaged down by a quiet oracle.
	switch {
	case ruleScore >= s.threshold:
		ev.Confidence = max(ruleScore, oracleScore)
		ev.Qualifies = true
	case oracleScore >= s.threshold:
		ev.Confidence = oracleScore
		ev.Qualifies = true
	default:
		ev.Confidence = s.ruleWeight*ruleScore + s.oracleWeight*oracleScore
		ev.Qualifies = ev.Confidence >= s.threshold
	}
	if ev.Confidence > 1 {
		ev.Confidence = 1
	}

	s.logger.Debug("intent evaluated",
		"qualifies", ev.Qualifies,
		"confidence", ev.Confidence,
		"rule", ruleScore,
		"oracle", oracleScore,
		"oracle_used", oracleUsed,
	)
	return ev
}

const classifierSystemPrompt = `You are a scam detection engine. Analyze the user's message for scam intent.
Output MUST be valid JSON with keys "confidence" (0.0 to 1.0) and "reason" (string).

Scam categories to detect:
- Phishing / credential theft
- Investment and lottery scams
- Urgent payment requests
- KYC / verification fraud
- Impersonation of banks or government

If the message appears legitimate, confidence should be low (below 0.3).`

type classifierVerdict struct {
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// semanticScore asks the oracle to classify the message. Returns ok=false on
// any failure (timeout, transport, malformed verdict); the caller falls back.
func (s *Sentinel) semanticScore(ctx context.Context, text string, signals []string) (score float64, reason string, ok bool) {
	if s.oracle == nil {
		return 0, "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Analyze this message for scam intent: %q\n\nPre-detected signals: %v\n\nReturn ONLY valid JSON: {\"confidence\": 0.0-1.0, \"reason\": \"brief explanation\"}",
		text, signals,
	)

	resp, err := s.oracle.Chat(callCtx, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   200,
		Temperature: 0.1,
	})
	if err != nil {
		s.logger.Warn("oracle classification failed, using rule fallback", "err", err)
		return 0, "", false
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		s.logger.Warn("oracle verdict unparseable, using rule fallback", "err", err)
		return 0, "", false
	}
	return verdict.Confidence, verdict.Reason, true
}

// parseVerdict extracts the JSON verdict from the oracle's reply, tolerating
// markdown code fences around it.
func parseVerdict(raw string) (classifierVerdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var v classifierVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return v, fmt.Errorf("parse verdict: %w", err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return v, fmt.Errorf("verdict confidence %v outside [0,1]", v.Confidence)
	}
	return v, nil
}

// fallbackScore grades the rule signals when the oracle is unavailable.
// Tiers: an explicit payment/credential pressure is high risk on its own;
// multiple independent signals are strong; urgency alone is just enough to
// keep the counterparty engaged rather than ignored.
func fallbackScore(matched []patterns.Signature) (float64, string) {
	var payment, urgency bool
	for i := range matched {
		switch matched[i].Category {
		case patterns.CategoryFinancial, patterns.CategoryPaymentLure:
			payment = true
		case patterns.CategoryUrgency, patterns.CategoryThreat:
			urgency = true
		}
	}

	switch {
	case payment:
		return 0.85, "explicit payment or credential request detected"
	case len(matched) >= 2:
		return 0.75, "multiple scam indicators present"
	case urgency:
		return 0.65, "high urgency detected, engaging to clarify"
	case len(matched) == 1:
		return 0.50, "single suspicious indicator, context unclear"
	default:
		return 0.10, "no obvious scam patterns detected"
	}
}
