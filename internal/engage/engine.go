// Package engage is the core session engine: absorb message → score intent →
// advance the session lifecycle → reply in persona → conclude and hand off
// for reporting. One engine serves all sessions; each session's state is
// mutated under its own lock.
package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"honeypot/internal/config"
	"honeypot/internal/domain"
	"honeypot/internal/intel"
	"honeypot/internal/metrics"
	"honeypot/internal/sentinel"
	"honeypot/internal/store"
)

const (
	statusSuccess = "success"

	defaultHistoryTail  = 20
	defaultReplyTokens  = 150
	defaultReplyTemp    = 0.7
	defaultReplyTimeout = 8 * time.Second
	probeTimeout        = 20 * time.Second
)

// LinkProber investigates a suspicious URL out of band and returns a short
// textual finding for the session notes.
type LinkProber interface {
	Probe(ctx context.Context, url string) (string, error)
}

// Engine drives the detect-engage-conclude lifecycle.
type Engine struct {
	store    domain.SessionStore
	sentinel *sentinel.Sentinel
	intel    *intel.Aggregator
	oracle   domain.Provider // persona replies; nil falls back to canned lines
	bus      domain.ReportBus
	prober   LinkProber // optional
	logger   *slog.Logger

	minQualifyingTurns int
	maxTurns           int
	historyTail        int
	replyMaxTokens     int
	replyTemperature   float64
	replyTimeout       time.Duration
	replyMonitoring    bool

	locks *store.KeyLocks // shared with the report runner
}

// EngineConfig holds all dependencies and tuning parameters for the engine.
type EngineConfig struct {
	Store    domain.SessionStore
	Sentinel *sentinel.Sentinel
	Intel    *intel.Aggregator
	Oracle   domain.Provider
	Bus      domain.ReportBus
	Prober   LinkProber
	// Locks must be the same registry the session store and report runner
	// use, so every writer of a session key serializes on one mutex.
	Locks      *store.KeyLocks
	Engagement config.EngagementConfig
	Logger     *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	eng := cfg.Engagement
	if eng.MinQualifyingTurns <= 0 {
		eng.MinQualifyingTurns = 3
	}
	if eng.MaxTurns <= 0 {
		eng.MaxTurns = 12
	}
	if eng.HistoryTail <= 0 {
		eng.HistoryTail = defaultHistoryTail
	}
	if eng.ReplyMaxTokens <= 0 {
		eng.ReplyMaxTokens = defaultReplyTokens
	}
	if eng.ReplyTemperature <= 0 {
		eng.ReplyTemperature = defaultReplyTemp
	}
	timeout := defaultReplyTimeout
	if eng.OracleTimeoutSeconds > 0 {
		timeout = time.Duration(eng.OracleTimeoutSeconds) * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locks := cfg.Locks
	if locks == nil {
		locks = store.NewKeyLocks()
	}
	return &Engine{
		store:              cfg.Store,
		sentinel:           cfg.Sentinel,
		intel:              cfg.Intel,
		oracle:             cfg.Oracle,
		bus:                cfg.Bus,
		prober:             cfg.Prober,
		logger:             logger,
		minQualifyingTurns: eng.MinQualifyingTurns,
		maxTurns:           eng.MaxTurns,
		historyTail:        eng.HistoryTail,
		replyMaxTokens:     eng.ReplyMaxTokens,
		replyTemperature:   eng.ReplyTemperature,
		replyTimeout:       timeout,
		replyMonitoring:    eng.ReplyWhileMonitoring,
		locks:              locks,
	}
}

// HandleEvent processes one inbound event to completion: replayed history is
// reconciled first, then the current message is scored, absorbed, and
// answered. Calling it twice with the same event is a no-op the second time.
func (e *Engine) HandleEvent(ctx context.Context, evt domain.InboundEvent) (domain.EventResponse, error) {
	if evt.SessionID == "" {
		return domain.EventResponse{}, errors.New("missing session id")
	}
	metrics.EventsTotal.Inc()

	mu := e.locks.For(evt.SessionID)
	mu.Lock()

	resp, finalized, err := e.handleLocked(ctx, evt)
	mu.Unlock()

	// Publish outside the lock so dispatch retries never block the session.
	if finalized {
		e.bus.Publish(domain.ReportJob{SessionID: evt.SessionID})
	}
	return resp, err
}

func (e *Engine) handleLocked(ctx context.Context, evt domain.InboundEvent) (domain.EventResponse, bool, error) {
	now := time.Now()

	sess, err := e.store.Get(ctx, evt.SessionID)
	if err != nil {
		return domain.EventResponse{}, false, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = &domain.Session{
			ID:        evt.SessionID,
			Status:    domain.StatusNew,
			CreatedAt: now,
		}
		metrics.ActiveSessions.Inc()
		e.logger.Info("session opened", "session", evt.SessionID, "channel", evt.Metadata.Channel)
	}

	// Reconcile replayed history. Already-seen messages are skipped; new
	// counterparty messages still surrender their artifacts.
	for _, h := range evt.History {
		if sess.Append(h) && h.Sender == domain.SenderScammer {
			e.intel.Absorb(&sess.Intel, h.Text)
		}
	}

	isNew := sess.Append(evt.Message)

	if sess.Status == domain.StatusClosed || sess.Status == domain.StatusConcluding {
		sess.UpdatedAt = now
		if err := e.store.Put(ctx, sess); err != nil {
			return domain.EventResponse{}, false, fmt.Errorf("save session: %w", err)
		}
		return domain.EventResponse{Status: statusSuccess}, false, nil
	}

	if !isNew || evt.Message.Sender != domain.SenderScammer {
		// Duplicate delivery or our own echoed reply: nothing to score.
		sess.UpdatedAt = now
		if err := e.store.Put(ctx, sess); err != nil {
			return domain.EventResponse{}, false, fmt.Errorf("save session: %w", err)
		}
		return domain.EventResponse{Status: statusSuccess}, false, nil
	}

	ev := e.sentinel.Evaluate(ctx, evt.Message.Text)
	metrics.EvaluationsTotal.Inc()
	metrics.IntentConfidence.Observe(ev.Confidence)
	if !ev.OracleUsed {
		metrics.OracleFallbacks.Inc()
	}
	if ev.Confidence > sess.PeakConfidence {
		sess.PeakConfidence = ev.Confidence
	}
	for _, name := range ev.Signals {
		sess.AddSignal(name)
	}
	if ev.Qualifies {
		sess.QualifyingTurns++
		if !sess.ScamDetected {
			sess.ScamDetected = true
			metrics.ScamsDetected.Inc()
			e.logger.Info("scam intent detected",
				"session", sess.ID,
				"confidence", ev.Confidence,
				"signals", ev.Signals,
				"reason", ev.Reason,
			)
		}
	}

	delta := e.intel.Absorb(&sess.Intel, evt.Message.Text)
	if !delta.Empty() {
		e.logger.Info("intelligence extracted",
			"session", sess.ID,
			"new", delta.Size(),
			"total", sess.Intel.Size(),
		)
	}
	if e.prober != nil && len(delta.PhishingLinks) > 0 {
		go e.probeLinks(sess.ID, delta.PhishingLinks)
	}

	if sess.Status == domain.StatusNew {
		sess.Status = domain.StatusMonitoring
	}
	if sess.ScamDetected && sess.Status == domain.StatusMonitoring {
		sess.Status = domain.StatusEngaged
		e.logger.Info("session engaged", "session", sess.ID, "turns", len(sess.Messages))
	}

	var reply string
	if sess.Status == domain.StatusEngaged || (sess.Status == domain.StatusMonitoring && e.replyMonitoring) {
		reply = e.reply(ctx, sess, evt.Message.Text)
		if reply != "" {
			sess.Append(domain.Message{Sender: domain.SenderAgent, Text: reply, Timestamp: time.Now().UTC()})
		}
	}

	finalized := false
	if e.shouldFinalize(sess) {
		sess.Status = domain.StatusConcluding
		finalized = true
		e.logger.Info("session concluding",
			"session", sess.ID,
			"qualifying_turns", sess.QualifyingTurns,
			"artifacts", sess.Intel.Size(),
			"messages", len(sess.Messages),
		)
	}

	sess.UpdatedAt = now
	if err := e.store.Put(ctx, sess); err != nil {
		return domain.EventResponse{}, false, fmt.Errorf("save session: %w", err)
	}
	return domain.EventResponse{Status: statusSuccess, Reply: reply}, finalized, nil
}

// reply generates the persona's next line. Oracle failure is absorbed with a
// canned confused line so the conversation never stalls.
func (e *Engine) reply(ctx context.Context, sess *domain.Session, current string) string {
	turn := counterpartyTurns(sess)
	if e.oracle == nil {
		metrics.CannedRepliesUsed.Inc()
		return cannedReply(turn)
	}

	// The current message is already in the transcript; the prompt wants it
	// separated from the history.
	prior := sess.Messages[:len(sess.Messages)-1]
	if len(prior) > e.historyTail {
		prior = prior[len(prior)-e.historyTail:]
	}

	cctx, cancel := context.WithTimeout(ctx, e.replyTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.oracle.Chat(cctx, buildChatRequest(prior, current, e.replyMaxTokens, e.replyTemperature))
	metrics.OracleLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		e.logger.Warn("reply oracle unavailable, using canned line",
			"session", sess.ID, "error", err)
		metrics.CannedRepliesUsed.Inc()
		return cannedReply(turn)
	}
	reply := cleanReply(resp.Content)
	if reply == "" {
		metrics.CannedRepliesUsed.Inc()
		return cannedReply(turn)
	}
	return reply
}

// probeLinks runs off the request path: findings are folded back into the
// session under its lock when the probe returns.
func (e *Engine) probeLinks(sessionID string, links []string) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	var notes []string
	for _, link := range links {
		finding, err := e.prober.Probe(ctx, link)
		if err != nil {
			e.logger.Warn("link probe failed", "session", sessionID, "url", link, "error", err)
			continue
		}
		if finding != "" {
			notes = append(notes, finding)
		}
	}
	if len(notes) == 0 {
		return
	}

	mu := e.locks.For(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil || sess == nil {
		return
	}
	sess.Notes = append(sess.Notes, notes...)
	sess.UpdatedAt = time.Now()
	if err := e.store.Put(ctx, sess); err != nil {
		e.logger.Error("persist probe findings", "session", sessionID, "error", err)
	}
}
