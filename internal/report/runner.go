package report

import (
	"context"
	"log/slog"
	"time"

	"honeypot/internal/domain"
	"honeypot/internal/metrics"
	"honeypot/internal/store"
)

const defaultTick = 30 * time.Second

// Runner consumes report jobs from the bus and, on a timer, re-scans the
// store for sessions stuck in the concluding state (jobs lost to a crash or
// a full bus). Either path funnels into the same idempotent dispatch, so a
// session is reported at most once no matter how many triggers fire.
type Runner struct {
	store      domain.SessionStore
	bus        domain.ReportBus
	dispatcher *Dispatcher
	locks      *store.KeyLocks // shared with the engagement engine
	tick       time.Duration
	logger     *slog.Logger
}

func NewRunner(st domain.SessionStore, bus domain.ReportBus, dispatcher *Dispatcher, locks *store.KeyLocks, tick time.Duration, logger *slog.Logger) *Runner {
	if tick <= 0 {
		tick = defaultTick
	}
	if locks == nil {
		locks = store.NewKeyLocks()
	}
	return &Runner{
		store:      st,
		bus:        bus,
		dispatcher: dispatcher,
		locks:      locks,
		tick:       tick,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	jobs := r.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				jobs = nil
				continue
			}
			r.Dispatch(ctx, job.SessionID)
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

func (r *Runner) scan(ctx context.Context) {
	ids, err := r.store.Concluding(ctx)
	if err != nil {
		r.logger.Error("concluding scan failed", "error", err)
		return
	}
	for _, id := range ids {
		r.Dispatch(ctx, id)
	}
}

// Dispatch attempts report delivery for one session. It is safe to call for
// any session ID: sessions that are missing, not yet concluding, or already
// reported are skipped. The session's key lock is held around the snapshot
// and again around the outcome write, so a concurrent inbound event can
// never interleave a stale write that reverts the delivery record. Only the
// HTTP round trip itself runs unlocked.
func (r *Runner) Dispatch(ctx context.Context, sessionID string) {
	mu := r.locks.For(sessionID)

	mu.Lock()
	sess, err := r.store.Get(ctx, sessionID)
	if err != nil {
		mu.Unlock()
		r.logger.Error("load session for report", "session", sessionID, "error", err)
		return
	}
	if sess == nil || sess.ReportSent || sess.Status != domain.StatusConcluding {
		mu.Unlock()
		return
	}
	rep := Build(sess)
	mu.Unlock()

	sendErr := r.dispatcher.Send(ctx, rep)

	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: the session may have been touched while the
	// report was in flight, and its state must only advance from here.
	sess, err = r.store.Get(ctx, sessionID)
	if err != nil {
		r.logger.Error("load session after report", "session", sessionID, "error", err)
		return
	}
	if sess == nil || sess.ReportSent || sess.Status != domain.StatusConcluding {
		return
	}
	sess.ReportAttempts++
	sess.UpdatedAt = time.Now()

	if sendErr != nil {
		metrics.ReportsFailed.Inc()
		r.logger.Error("report delivery failed",
			"session", sessionID, "attempts", sess.ReportAttempts, "error", sendErr)
		if err := r.store.Put(ctx, sess); err != nil {
			r.logger.Error("persist failed report attempt", "session", sessionID, "error", err)
		}
		return
	}

	sess.ReportSent = true
	sess.Status = domain.StatusClosed
	if err := r.store.Put(ctx, sess); err != nil {
		r.logger.Error("persist reported session", "session", sessionID, "error", err)
		return
	}
	metrics.ReportsDelivered.Inc()
	metrics.ActiveSessions.Dec()
	r.logger.Info("final report delivered",
		"session", sessionID,
		"scam", rep.ScamDetected,
		"messages", rep.TotalMessagesExchanged,
		"artifacts", sess.Intel.Size(),
	)
}
