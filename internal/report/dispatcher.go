// Package report delivers the final intelligence report for each concluded
// session to the external evaluation endpoint, at most once per session.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"honeypot/internal/config"
	"honeypot/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Dispatcher posts final reports over HTTP. A report counts as delivered
// only on a 2xx response; anything else leaves the session eligible for
// another attempt.
type Dispatcher struct {
	url        string
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

func NewDispatcher(cfg config.CallbackConfig, logger *slog.Logger) *Dispatcher {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Dispatcher{
		url:        cfg.URL,
		client:     &http.Client{Timeout: timeout},
		maxRetries: retries,
		logger:     logger,
	}
}

// Send delivers rep to the evaluation endpoint with exponential backoff on
// transient failures. A 4xx response is permanent and returned immediately.
func (d *Dispatcher) Send(ctx context.Context, rep *domain.FinalReport) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * time.Second
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			d.logger.Warn("retrying report delivery",
				"session", rep.SessionID, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			d.logger.Warn("report delivery failed", "session", rep.SessionID, "error", err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			d.logger.Warn("evaluation endpoint error, will retry",
				"session", rep.SessionID, "status", resp.StatusCode)
		default:
			// Client errors do not heal with retries.
			return fmt.Errorf("evaluation endpoint rejected report: HTTP %d: %s",
				resp.StatusCode, string(body))
		}
	}
	return fmt.Errorf("report delivery failed after %d retries: %w", d.maxRetries, lastErr)
}

// Build assembles the final report from a session's accumulated state.
func Build(sess *domain.Session) *domain.FinalReport {
	return &domain.FinalReport{
		SessionID:              sess.ID,
		ScamDetected:           sess.ScamDetected,
		TotalMessagesExchanged: len(sess.Messages),
		ExtractedIntelligence:  sess.Intel.Clone(),
		AgentNotes:             buildNotes(sess),
	}
}

func buildNotes(sess *domain.Session) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Peak intent confidence %.2f over %d messages.",
		sess.PeakConfidence, len(sess.Messages)))
	if len(sess.Signals) > 0 {
		parts = append(parts, "Observed tactics: "+strings.Join(sess.Signals, ", ")+".")
	}
	if n := sess.Intel.Size(); n > 0 {
		parts = append(parts, fmt.Sprintf("Extracted %d intelligence artifacts.", n))
	}
	parts = append(parts, sess.Notes...)
	return strings.Join(parts, " ")
}
