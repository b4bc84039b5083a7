package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"honeypot/internal/domain"
)

type fakeProvider struct {
	name  string
	fail  bool
	calls int
}

func (f *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("provider down")
	}
	return &domain.ChatResponse{Content: "reply from " + f.name}, nil
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Healthy(ctx context.Context) error {
	if f.fail {
		return fmt.Errorf("%s unhealthy", f.name)
	}
	return nil
}

func testProviderLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFailover_FirstSucceeds(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	fp := NewFailoverProvider([]domain.Provider{a, b}, testProviderLogger())

	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "reply from a" {
		t.Fatalf("got %q", resp.Content)
	}
	if b.calls != 0 {
		t.Fatal("second provider should not be called")
	}
}

func TestFailover_FallsThrough(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	b := &fakeProvider{name: "b"}
	fp := NewFailoverProvider([]domain.Provider{a, b}, testProviderLogger())

	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "reply from b" {
		t.Fatalf("got %q", resp.Content)
	}
	if a.calls != 1 {
		t.Fatalf("first provider calls: %d", a.calls)
	}
}

func TestFailover_AllFail(t *testing.T) {
	a := &fakeProvider{name: "a", fail: true}
	b := &fakeProvider{name: "b", fail: true}
	fp := NewFailoverProvider([]domain.Provider{a, b}, testProviderLogger())

	if _, err := fp.Chat(context.Background(), domain.ChatRequest{}); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestFailover_Name(t *testing.T) {
	fp := NewFailoverProvider([]domain.Provider{
		&fakeProvider{name: "a"}, &fakeProvider{name: "b"},
	}, testProviderLogger())
	if fp.Name() != "failover(a→b)" {
		t.Fatalf("got %q", fp.Name())
	}
}

func TestFailover_Healthy(t *testing.T) {
	fp := NewFailoverProvider([]domain.Provider{
		&fakeProvider{name: "a", fail: true},
		&fakeProvider{name: "b"},
	}, testProviderLogger())
	if err := fp.Healthy(context.Background()); err != nil {
		t.Fatalf("chain with one healthy provider should be healthy: %v", err)
	}

	fp = NewFailoverProvider([]domain.Provider{
		&fakeProvider{name: "a", fail: true},
	}, testProviderLogger())
	if err := fp.Healthy(context.Background()); err == nil {
		t.Fatal("all-down chain should be unhealthy")
	}
}
