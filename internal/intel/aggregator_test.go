package intel

import (
	"testing"

	"honeypot/internal/domain"
	"honeypot/internal/patterns"
)

func TestAbsorb_ReturnsDelta(t *testing.T) {
	agg := NewAggregator(patterns.NewLibrary())
	var bundle domain.IntelBundle

	delta := agg.Absorb(&bundle, "Share your UPI ID: scammer@upi to avoid suspension.")
	if got := delta.Values(domain.IntelUPIIDs); len(got) != 1 || got[0] != "scammer@upi" {
		t.Fatalf("expected delta [scammer@upi], got %v", got)
	}
	if got := bundle.Values(domain.IntelUPIIDs); len(got) != 1 {
		t.Fatalf("bundle should hold the handle, got %v", got)
	}
}

func TestAbsorb_DuplicateYieldsEmptyDelta(t *testing.T) {
	agg := NewAggregator(patterns.NewLibrary())
	var bundle domain.IntelBundle

	agg.Absorb(&bundle, "pay scammer@upi now")
	delta := agg.Absorb(&bundle, "I repeat: pay SCAMMER@UPI now")

	if !delta.Empty() {
		t.Fatalf("re-absorbing the same handle must yield empty delta, got %+v", delta)
	}
	if bundle.Size() == 0 {
		t.Fatal("bundle lost its contents")
	}
}

func TestAbsorb_Monotonic(t *testing.T) {
	agg := NewAggregator(patterns.NewLibrary())
	var bundle domain.IntelBundle

	texts := []string{
		"verify at http://phish.example.com",
		"call 9876543210 urgently",
		"totally harmless message",
		"account 123456789012 needs your otp",
	}

	prev := 0
	for _, txt := range texts {
		agg.Absorb(&bundle, txt)
		if bundle.Size() < prev {
			t.Fatalf("bundle shrank from %d to %d after %q", prev, bundle.Size(), txt)
		}
		prev = bundle.Size()
	}

	if len(bundle.Values(domain.IntelLinks)) != 1 {
		t.Errorf("links: %v", bundle.Values(domain.IntelLinks))
	}
	if len(bundle.Values(domain.IntelPhones)) != 1 {
		t.Errorf("phones: %v", bundle.Values(domain.IntelPhones))
	}
	if len(bundle.Values(domain.IntelBankAccounts)) != 1 {
		t.Errorf("accounts: %v", bundle.Values(domain.IntelBankAccounts))
	}
}

func TestAbsorb_StableNormalization(t *testing.T) {
	agg := NewAggregator(patterns.NewLibrary())
	var a, b domain.IntelBundle

	raw := "refund to Victim.Helper@ybl, link http://x.example.org/a."
	agg.Absorb(&a, raw)
	agg.Absorb(&b, raw)

	if len(a.Values(domain.IntelUPIIDs)) != len(b.Values(domain.IntelUPIIDs)) {
		t.Fatal("same input must normalize identically")
	}
	if a.Values(domain.IntelUPIIDs)[0] != "victim.helper@ybl" {
		t.Fatalf("got %q", a.Values(domain.IntelUPIIDs)[0])
	}
	if a.Values(domain.IntelLinks)[0] != "http://x.example.org/a" {
		t.Fatalf("got %q", a.Values(domain.IntelLinks)[0])
	}
}
