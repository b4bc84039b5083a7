package engage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"honeypot/internal/bus"
	"honeypot/internal/config"
	"honeypot/internal/domain"
	"honeypot/internal/intel"
	"honeypot/internal/patterns"
	"honeypot/internal/sentinel"
	"honeypot/internal/store"
)

type scriptedOracle struct {
	reply string
	err   error
	calls int
}

func (o *scriptedOracle) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return &domain.ChatResponse{Content: o.reply}, nil
}

func (o *scriptedOracle) Name() string                      { return "scripted" }
func (o *scriptedOracle) Healthy(ctx context.Context) error { return o.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	engine *Engine
	store  *store.MemoryStore
	bus    *bus.InMemoryBus
}

// newFixture wires an engine with a scripted classifier verdict and a
// scripted persona reply.
func newFixture(t *testing.T, verdict domain.Provider, replier domain.Provider) *fixture {
	t.Helper()
	logger := testLogger()
	lib := patterns.NewLibrary()
	locks := store.NewKeyLocks()
	st := store.NewMemoryStore(time.Hour, locks, logger)
	t.Cleanup(func() { st.Close() })
	b := bus.New(8, logger)
	t.Cleanup(b.Close)

	eng := NewEngine(EngineConfig{
		Store: st,
		Locks: locks,
		Sentinel: sentinel.New(sentinel.Config{
			Library: lib,
			Oracle:  verdict,
			Logger:  logger,
		}),
		Intel:  intel.NewAggregator(lib),
		Oracle: replier,
		Bus:    b,
		Engagement: config.EngagementConfig{
			MinQualifyingTurns: 3,
			MaxTurns:           12,
			HistoryTail:        20,
		},
		Logger: logger,
	})
	return &fixture{engine: eng, store: st, bus: b}
}

func scamEvent(session, text string, ts time.Time) domain.InboundEvent {
	return domain.InboundEvent{
		SessionID: session,
		Message:   domain.Message{Sender: domain.SenderScammer, Text: text, Timestamp: ts},
	}
}

func (f *fixture) pendingJobs(t *testing.T) []domain.ReportJob {
	t.Helper()
	var jobs []domain.ReportJob
	for {
		select {
		case job := <-f.bus.Subscribe():
			jobs = append(jobs, job)
		case <-time.After(50 * time.Millisecond):
			return jobs
		}
	}
}

func TestBenignMessageStaysMonitoring(t *testing.T) {
	f := newFixture(t,
		&scriptedOracle{reply: `{"confidence": 0.05, "reason": "ordinary chat"}`},
		&scriptedOracle{reply: "hello"},
	)
	ctx := context.Background()

	resp, err := f.engine.HandleEvent(ctx, scamEvent("s1", "See you at the station at five.", time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "" {
		t.Fatalf("monitoring session must stay silent, got reply %q", resp.Reply)
	}

	sess, _ := f.store.Get(ctx, "s1")
	if sess.Status != domain.StatusMonitoring {
		t.Fatalf("status = %s", sess.Status)
	}
	if sess.ScamDetected {
		t.Fatal("benign message flagged as scam")
	}
}

func TestScamDetectionEngages(t *testing.T) {
	replier := &scriptedOracle{reply: "Oh dear, where is the UPI button?"}
	f := newFixture(t,
		&scriptedOracle{reply: `{"confidence": 0.92, "reason": "account block threat"}`},
		replier,
	)
	ctx := context.Background()

	resp, err := f.engine.HandleEvent(ctx,
		scamEvent("s1", "Your account will be blocked today. Verify immediately.", time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "Oh dear, where is the UPI button?" {
		t.Fatalf("reply = %q", resp.Reply)
	}

	sess, _ := f.store.Get(ctx, "s1")
	if sess.Status != domain.StatusEngaged {
		t.Fatalf("status = %s", sess.Status)
	}
	if !sess.ScamDetected || sess.QualifyingTurns != 1 {
		t.Fatalf("session = %+v", sess)
	}
	// Transcript holds the scammer message and our reply.
	if len(sess.Messages) != 2 || sess.Messages[1].Sender != domain.SenderAgent {
		t.Fatalf("messages = %+v", sess.Messages)
	}
}

func TestDuplicateEventIsIdempotent(t *testing.T) {
	f := newFixture(t,
		&scriptedOracle{reply: `{"confidence": 0.92, "reason": "threat"}`},
		&scriptedOracle{reply: "ok"},
	)
	ctx := context.Background()
	evt := scamEvent("s1", "Your account will be blocked, verify now.", time.Unix(1700000000, 0))

	if _, err := f.engine.HandleEvent(ctx, evt); err != nil {
		t.Fatal(err)
	}
	resp, err := f.engine.HandleEvent(ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "" {
		t.Fatalf("replayed event must not produce a second reply, got %q", resp.Reply)
	}

	sess, _ := f.store.Get(ctx, "s1")
	if sess.QualifyingTurns != 1 {
		t.Fatalf("qualifying turns = %d, want 1", sess.QualifyingTurns)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("replay grew the transcript: %d messages", len(sess.Messages))
	}
}

func TestHistoryReplayAbsorbsIntel(t *testing.T) {
	f := newFixture(t,
		&scriptedOracle{reply: `{"confidence": 0.9, "reason": "payment demand"}`},
		&scriptedOracle{reply: "ok"},
	)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	evt := scamEvent("s1", "Pay the fee now or your account is suspended", base.Add(2*time.Minute))
	evt.History = []domain.Message{
		{Sender: domain.SenderScammer, Text: "send to verify@okbank today", Timestamp: base},
		{Sender: domain.SenderAgent, Text: "which bank is this?", Timestamp: base.Add(time.Minute)},
	}

	if _, err := f.engine.HandleEvent(ctx, evt); err != nil {
		t.Fatal(err)
	}

	sess, _ := f.store.Get(ctx, "s1")
	if got := sess.Intel.Values(domain.IntelUPIIDs); len(got) != 1 || got[0] != "verify@okbank" {
		t.Fatalf("history intel not absorbed: %+v", sess.Intel)
	}
	// History plus current plus our reply.
	if len(sess.Messages) != 4 {
		t.Fatalf("messages = %d", len(sess.Messages))
	}
}

func TestFinalizePublishesExactlyOneJob(t *testing.T) {
	f := newFixture(t,
		&scriptedOracle{reply: `{"confidence": 0.9, "reason": "payment scam"}`},
		&scriptedOracle{reply: "I am confused, which app?"},
	)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	texts := []string{
		"Your electricity will be disconnected today, act now",
		"Pay the reconnection fee immediately or face legal action",
		"Send 500 rupees to billdesk@fraudupi right now",
		"Why no payment yet? This is your last chance",
	}
	for i, text := range texts {
		if _, err := f.engine.HandleEvent(ctx, scamEvent("s1", text, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	jobs := f.pendingJobs(t)
	if len(jobs) != 1 {
		t.Fatalf("published %d report jobs, want exactly 1", len(jobs))
	}
	if jobs[0].SessionID != "s1" {
		t.Fatalf("job = %+v", jobs[0])
	}

	sess, _ := f.store.Get(ctx, "s1")
	if sess.Status != domain.StatusConcluding {
		t.Fatalf("status = %s", sess.Status)
	}
	if got := sess.Intel.Values(domain.IntelUPIIDs); len(got) != 1 || got[0] != "billdesk@fraudupi" {
		t.Fatalf("intel = %+v", sess.Intel)
	}
}

func TestConcludingSessionStopsReplying(t *testing.T) {
	f := newFixture(t,
		&scriptedOracle{reply: `{"confidence": 0.9, "reason": "payment scam"}`},
		&scriptedOracle{reply: "ok"},
	)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	sess := &domain.Session{ID: "s1", Status: domain.StatusConcluding, ScamDetected: true, CreatedAt: base, UpdatedAt: base}
	f.store.Put(ctx, sess)

	resp, err := f.engine.HandleEvent(ctx, scamEvent("s1", "Hello? Pay now!", base.Add(time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "" {
		t.Fatalf("concluding session replied: %q", resp.Reply)
	}
	if jobs := f.pendingJobs(t); len(jobs) != 0 {
		t.Fatalf("concluding session re-published %d jobs", len(jobs))
	}
}

func TestOracleDownUsesCannedReply(t *testing.T) {
	f := newFixture(t,
		&scriptedOracle{reply: `{"confidence": 0.9, "reason": "threat"}`},
		&scriptedOracle{err: errors.New("oracle down")},
	)
	ctx := context.Background()

	resp, err := f.engine.HandleEvent(ctx,
		scamEvent("s1", "Your account will be blocked, verify immediately", time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, canned := range cannedReplies {
		if resp.Reply == canned {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("reply %q is not from the canned pool", resp.Reply)
	}
}

func TestMissingSessionIDRejected(t *testing.T) {
	f := newFixture(t, &scriptedOracle{reply: `{"confidence": 0.1}`}, &scriptedOracle{reply: "ok"})
	if _, err := f.engine.HandleEvent(context.Background(), domain.InboundEvent{}); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestCleanReply(t *testing.T) {
	cases := map[string]string{
		`"Where is the button?"`:    "Where is the button?",
		"AgentX: I am having doubt": "I am having doubt",
		"ASSISTANT: kindly explain": "kindly explain",
		"  plain reply  ":           "plain reply",
	}
	for in, want := range cases {
		if got := cleanReply(in); got != want {
			t.Errorf("cleanReply(%q) = %q, want %q", in, got, want)
		}
	}
}
