package bus

import (
	"log/slog"
	"sync"
	"time"

	"honeypot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based queue carrying report dispatch jobs
// from the engagement engine to the report runner.
type InMemoryBus struct {
	jobs   chan domain.ReportJob
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		jobs:   make(chan domain.ReportJob, bufferSize),
		logger: logger,
	}
}

// Publish enqueues a report job. Blocks up to 10 seconds if the bus is
// full instead of dropping; a dropped job is still recovered by the
// runner's periodic store scan.
func (b *InMemoryBus) Publish(job domain.ReportJob) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "session", job.SessionID)
		return
	}

	select {
	case b.jobs <- job:
	default:
		b.logger.Warn("report bus full, waiting...", "session", job.SessionID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.jobs <- job:
			b.logger.Info("report job delivered after wait", "session", job.SessionID)
		case <-timer.C:
			b.logger.Error("report job dropped: bus full for 10s", "session", job.SessionID)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.ReportJob {
	return b.jobs
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.jobs)
	}
}
