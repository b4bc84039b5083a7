package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"honeypot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	b := New(4, testLogger())
	defer b.Close()

	b.Publish(domain.ReportJob{SessionID: "s1"})
	b.Publish(domain.ReportJob{SessionID: "s2"})

	select {
	case job := <-b.Subscribe():
		if job.SessionID != "s1" {
			t.Fatalf("expected s1 first, got %s", job.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job")
	}

	select {
	case job := <-b.Subscribe():
		if job.SessionID != "s2" {
			t.Fatalf("expected s2, got %s", job.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job")
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := New(1, testLogger())
	b.Close()

	// Must not panic on a closed bus.
	b.Publish(domain.ReportJob{SessionID: "late"})
	b.Close()
}
