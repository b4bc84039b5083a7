package report

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"honeypot/internal/bus"
	"honeypot/internal/config"
	"honeypot/internal/domain"
	"honeypot/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func concludingSession(id string) *domain.Session {
	s := &domain.Session{
		ID:             id,
		Status:         domain.StatusConcluding,
		ScamDetected:   true,
		PeakConfidence: 0.91,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	s.Messages = append(s.Messages,
		domain.Message{Sender: domain.SenderScammer, Text: "send to fraud@upi now", Timestamp: time.Now().UTC()},
		domain.Message{Sender: domain.SenderAgent, Text: "which app do I open?", Timestamp: time.Now().UTC()},
	)
	s.Intel.Add(domain.IntelUPIIDs, "fraud@upi")
	s.AddSignal("payment-demand")
	return s
}

func TestDispatcherSend(t *testing.T) {
	var got domain.FinalReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(config.CallbackConfig{URL: srv.URL, TimeoutSeconds: 2, MaxRetries: 0}, testLogger())
	rep := Build(concludingSession("sess-1"))
	if err := d.Send(context.Background(), rep); err != nil {
		t.Fatal(err)
	}

	if got.SessionID != "sess-1" || !got.ScamDetected || got.TotalMessagesExchanged != 2 {
		t.Fatalf("payload = %+v", got)
	}
	if len(got.ExtractedIntelligence.UPIIDs) != 1 || got.ExtractedIntelligence.UPIIDs[0] != "fraud@upi" {
		t.Fatalf("intelligence = %+v", got.ExtractedIntelligence)
	}
	if !strings.Contains(got.AgentNotes, "payment-demand") {
		t.Fatalf("notes = %q", got.AgentNotes)
	}
}

func TestDispatcherRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(config.CallbackConfig{URL: srv.URL, TimeoutSeconds: 2, MaxRetries: 2}, testLogger())
	if err := d.Send(context.Background(), Build(concludingSession("s"))); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestDispatcherGivesUpOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDispatcher(config.CallbackConfig{URL: srv.URL, TimeoutSeconds: 2, MaxRetries: 3}, testLogger())
	if err := d.Send(context.Background(), Build(concludingSession("s"))); err == nil {
		t.Fatal("expected error on 401")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, calls = %d", calls.Load())
	}
}

func TestRunnerDispatchExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	locks := store.NewKeyLocks()
	st := store.NewMemoryStore(time.Hour, locks, testLogger())
	defer st.Close()
	ctx := context.Background()
	st.Put(ctx, concludingSession("once"))

	b := bus.New(4, testLogger())
	defer b.Close()
	d := NewDispatcher(config.CallbackConfig{URL: srv.URL, TimeoutSeconds: 2}, testLogger())
	r := NewRunner(st, b, d, locks, time.Minute, testLogger())

	r.Dispatch(ctx, "once")
	r.Dispatch(ctx, "once")
	r.Dispatch(ctx, "missing")

	if calls.Load() != 1 {
		t.Fatalf("report sent %d times, want 1", calls.Load())
	}
	sess, _ := st.Get(ctx, "once")
	if !sess.ReportSent || sess.Status != domain.StatusClosed {
		t.Fatalf("session not closed after delivery: %+v", sess)
	}
}

func TestDispatchConcurrentSessionWrite(t *testing.T) {
	var calls atomic.Int32
	var entered sync.Once
	inFlight := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		entered.Do(func() { close(inFlight) })
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	locks := store.NewKeyLocks()
	st := store.NewMemoryStore(time.Hour, locks, testLogger())
	defer st.Close()
	ctx := context.Background()
	st.Put(ctx, concludingSession("race"))

	b := bus.New(4, testLogger())
	defer b.Close()
	d := NewDispatcher(config.CallbackConfig{URL: srv.URL, TimeoutSeconds: 5}, testLogger())
	r := NewRunner(st, b, d, locks, time.Minute, testLogger())

	done := make(chan struct{})
	go func() {
		r.Dispatch(ctx, "race")
		close(done)
	}()

	// While the report is in flight, write the session the way an inbound
	// event would: load it under the key lock and persist an updated copy.
	<-inFlight
	mu := locks.For("race")
	mu.Lock()
	sess, err := st.Get(ctx, "race")
	if err != nil || sess == nil {
		mu.Unlock()
		t.Fatalf("load mid-flight: sess=%v err=%v", sess, err)
	}
	sess.Messages = append(sess.Messages,
		domain.Message{Sender: domain.SenderScammer, Text: "hello? are you there", Timestamp: time.Now().UTC()})
	sess.UpdatedAt = time.Now()
	if err := st.Put(ctx, sess); err != nil {
		mu.Unlock()
		t.Fatal(err)
	}
	mu.Unlock()

	close(release)
	<-done

	sess, _ = st.Get(ctx, "race")
	if !sess.ReportSent || sess.Status != domain.StatusClosed {
		t.Fatalf("concurrent write reverted delivery record: %+v", sess)
	}
	// The write from the event must survive the close, and the session must
	// never be re-dispatched.
	if len(sess.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(sess.Messages))
	}
	r.Dispatch(ctx, "race")
	if calls.Load() != 1 {
		t.Fatalf("report delivered %d times after confirmed success, want 1", calls.Load())
	}
}

func TestRunnerKeepsSessionOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	locks := store.NewKeyLocks()
	st := store.NewMemoryStore(time.Hour, locks, testLogger())
	defer st.Close()
	ctx := context.Background()
	st.Put(ctx, concludingSession("stuck"))

	b := bus.New(4, testLogger())
	defer b.Close()
	d := NewDispatcher(config.CallbackConfig{URL: srv.URL, TimeoutSeconds: 2}, testLogger())
	r := NewRunner(st, b, d, locks, time.Minute, testLogger())

	r.Dispatch(ctx, "stuck")

	sess, _ := st.Get(ctx, "stuck")
	if sess.ReportSent {
		t.Fatal("report must not be marked sent after a failed delivery")
	}
	if sess.Status != domain.StatusConcluding {
		t.Fatalf("status = %s, want concluding", sess.Status)
	}
	if sess.ReportAttempts != 1 {
		t.Fatalf("attempts = %d", sess.ReportAttempts)
	}
}
