package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Detection.Threshold = 0.7
	cfg.Channels.API.Port = 9001
	cfg.Channels.API.APIKey = "plain-key"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Detection.Threshold != 0.7 {
		t.Errorf("threshold: got %v", loaded.Detection.Threshold)
	}
	if loaded.Channels.API.Port != 9001 {
		t.Errorf("port: got %d", loaded.Channels.API.Port)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("HONEYPOT_TEST_KEY", "sk-123")
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Defaults()
	cfg.Channels.API.APIKey = "${HONEYPOT_TEST_KEY}"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Channels.API.APIKey != "sk-123" {
		t.Errorf("expected expanded key, got %q", loaded.Channels.API.APIKey)
	}
}

func TestResolvePlaceholders(t *testing.T) {
	t.Setenv("HONEYPOT_TEST_KEY", "sk-123")
	os.Unsetenv("HONEYPOT_UNSET_VAR")

	cfg := Defaults()
	cfg.Channels.API.APIKey = "${HONEYPOT_TEST_KEY}"
	cfg.Channels.Telegram.Token = "literal-token"
	p := cfg.Providers["openrouter"]
	p.APIKey = "${HONEYPOT_UNSET_VAR}"
	cfg.Providers["openrouter"] = p

	ResolvePlaceholders(cfg, nil)

	if cfg.Channels.API.APIKey != "sk-123" {
		t.Errorf("expected expanded key, got %q", cfg.Channels.API.APIKey)
	}
	// An unresolved placeholder must become no credential, never the
	// literal "${...}" string.
	if got := cfg.Providers["openrouter"].APIKey; got != "" {
		t.Errorf("expected empty key for unset variable, got %q", got)
	}
	if cfg.Channels.Telegram.Token != "literal-token" {
		t.Errorf("literal value must pass through, got %q", cfg.Channels.Telegram.Token)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("HONEYPOT_UNSET_VAR")
	got := ExpandEnvVars("${HONEYPOT_UNSET_VAR:-fallback}")
	if got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestExpandEnvVars_KeepsUnknown(t *testing.T) {
	os.Unsetenv("HONEYPOT_UNSET_VAR")
	got := ExpandEnvVars("${HONEYPOT_UNSET_VAR}")
	if got != "${HONEYPOT_UNSET_VAR}" {
		t.Errorf("expected literal kept, got %q", got)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cfg := Defaults()
	cfg.Detection.Threshold = 1.5
	if err := Validate(cfg); err == nil {
		t.Error("threshold 1.5 should fail")
	}

	cfg = Defaults()
	cfg.Detection.RuleWeight = 0.9
	cfg.Detection.OracleWeight = 0.1
	if err := Validate(cfg); err == nil {
		t.Error("rule weight above oracle weight should fail")
	}

	cfg = Defaults()
	cfg.Store.Backend = "redis"
	if err := Validate(cfg); err == nil {
		t.Error("unknown store backend should fail")
	}

	cfg = Defaults()
	cfg.General.FailoverChain = []string{"missing"}
	if err := Validate(cfg); err == nil {
		t.Error("unknown failover provider should fail")
	}
}

func TestAccessor_GetSet(t *testing.T) {
	cfg := Defaults()

	v, err := GetByPath(cfg, "detection.threshold")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 0.65 {
		t.Errorf("got %v", v)
	}

	if err := SetByPath(cfg, "engagement.maxTurns", 20); err != nil {
		t.Fatal(err)
	}
	if cfg.Engagement.MaxTurns != 20 {
		t.Errorf("got %d", cfg.Engagement.MaxTurns)
	}

	if _, err := GetByPath(cfg, "nope.nothing"); err == nil {
		t.Error("unknown path should fail")
	}
}
