package patterns

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadFromDirectory_Missing(t *testing.T) {
	sigs, err := LoadFromDirectory(filepath.Join(t.TempDir(), "nope"), testLogger())
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("expected no signatures, got %d", len(sigs))
	}
}

func TestLoadFromDirectory_ValidPack(t *testing.T) {
	dir := t.TempDir()
	pack := `signatures:
  - name: courier-lure
    category: financial-pressure
    weight: 0.35
    pattern: '\b(parcel|customs) (held|fee)\b'
  - name: broken
    weight: 2.0
    pattern: 'x'
`
	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(pack), 0o644); err != nil {
		t.Fatal(err)
	}

	sigs, err := LoadFromDirectory(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 valid signature (invalid one skipped), got %d", len(sigs))
	}
	if sigs[0].Name != "courier-lure" {
		t.Fatalf("got %q", sigs[0].Name)
	}
	if !sigs[0].Match("your parcel fee is pending") {
		t.Error("loaded signature should match")
	}
}

func TestLoadFromDirectory_IgnoresNonYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	sigs, err := LoadFromDirectory(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 0 {
		t.Fatalf("expected 0, got %d", len(sigs))
	}
}
