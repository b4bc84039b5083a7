package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the honeypot service.
type Config struct {
	General    GeneralConfig             `json:"general"`
	Detection  DetectionConfig           `json:"detection"`
	Engagement EngagementConfig          `json:"engagement"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Callback   CallbackConfig            `json:"callback"`
	Channels   ChannelsConfig            `json:"channels"`
	Store      StoreConfig               `json:"store"`
	Probe      ProbeConfig               `json:"probe"`
	Metrics    MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel        string   `json:"logLevel"`
	DefaultProvider string   `json:"defaultProvider"`
	FailoverChain   []string `json:"failoverChain,omitempty"` // oracle failover order
	SignaturesDir   string   `json:"signaturesDir,omitempty"` // extra YAML signature packs
}

// DetectionConfig tunes the hybrid intent scorer.
type DetectionConfig struct {
	// Threshold is the activation confidence: evaluations at or above it
	// mark the message as qualifying.
	Threshold float64 `json:"threshold"`
	// RuleWeight and OracleWeight combine the two scoring channels when
	// neither clears the threshold on its own. RuleWeight must not exceed
	// OracleWeight.
	RuleWeight           float64 `json:"ruleWeight"`
	OracleWeight         float64 `json:"oracleWeight"`
	OracleTimeoutSeconds int     `json:"oracleTimeoutSeconds"`
}

// EngagementConfig tunes the persona loop and the finalize policy.
type EngagementConfig struct {
	// MinQualifyingTurns qualifying exchanges must pass before a session may
	// conclude; it then concludes once the bundle is non-empty, or
	// unconditionally at MaxTurns.
	MinQualifyingTurns int `json:"minQualifyingTurns"`
	MaxTurns           int `json:"maxTurns"`
	// HistoryTail bounds how many transcript messages are replayed into the
	// persona prompt.
	HistoryTail          int     `json:"historyTail"`
	ReplyMaxTokens       int     `json:"replyMaxTokens"`
	ReplyTemperature     float64 `json:"replyTemperature"`
	OracleTimeoutSeconds int     `json:"oracleTimeoutSeconds"`
	// ReplyWhileMonitoring controls whether unengaged sessions answer with a
	// neutral holding reply instead of staying silent.
	ReplyWhileMonitoring bool `json:"replyWhileMonitoring"`
	// SessionTTLMinutes evicts inactive sessions from the store.
	SessionTTLMinutes int `json:"sessionTtlMinutes"`
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

// CallbackConfig points at the evaluation endpoint that receives the final
// report for each session.
type CallbackConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`
	// TickSeconds is the scheduler interval for re-dispatching sessions
	// stuck in the concluding state.
	TickSeconds int `json:"tickSeconds"`
}

type ChannelsConfig struct {
	API      APIConfig      `json:"api"`
	Telegram TelegramConfig `json:"telegram"`
}

// APIConfig configures the inbound scam-event HTTP endpoint.
type APIConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"apiKey,omitempty"` // X-API-Key check; empty disables auth
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
}

type StoreConfig struct {
	Backend string `json:"backend"` // "memory" | "sqlite"
	DBPath  string `json:"dbPath,omitempty"`
}

// ProbeConfig configures the headless-browser link probe.
type ProbeConfig struct {
	Enabled        bool `json:"enabled"`
	Headless       bool `json:"headless"`
	TimeoutSeconds int  `json:"timeoutSeconds"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.honeypot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".honeypot"
	}
	return filepath.Join(home, ".honeypot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = expandPath(cfg.Store.DBPath)
	cfg.General.SignaturesDir = expandPath(cfg.General.SignaturesDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

// ResolvePlaceholders expands ${VAR} references left in credential fields.
// Defaults ship with placeholders, and a loaded file keeps any that point at
// unset variables, so an unresolved one must be treated as no credential at
// all rather than used as a literal key.
func ResolvePlaceholders(cfg *Config, logger *slog.Logger) {
	resolve := func(field, v string) string {
		if !envVarPattern.MatchString(v) {
			return v
		}
		expanded := ExpandEnvVars(v)
		if envVarPattern.MatchString(expanded) {
			if logger != nil {
				logger.Warn("config placeholder unresolved, treating as unset",
					"field", field, "placeholder", v)
			}
			return ""
		}
		return expanded
	}

	for name, p := range cfg.Providers {
		p.APIKey = resolve("providers."+name+".apiKey", p.APIKey)
		cfg.Providers[name] = p
	}
	cfg.Channels.API.APIKey = resolve("channels.api.apiKey", cfg.Channels.API.APIKey)
	cfg.Channels.Telegram.Token = resolve("channels.telegram.token", cfg.Channels.Telegram.Token)
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Detection.Threshold <= 0 || cfg.Detection.Threshold >= 1 {
		errs = append(errs, "detection.threshold must be in (0,1)")
	}
	if cfg.Detection.RuleWeight < 0 || cfg.Detection.OracleWeight < 0 {
		errs = append(errs, "detection weights must be non-negative")
	}
	if cfg.Detection.RuleWeight > cfg.Detection.OracleWeight {
		errs = append(errs, "detection.ruleWeight must not exceed detection.oracleWeight")
	}

	if cfg.Engagement.MinQualifyingTurns < 1 {
		errs = append(errs, "engagement.minQualifyingTurns must be >= 1")
	}
	if cfg.Engagement.MaxTurns < cfg.Engagement.MinQualifyingTurns {
		errs = append(errs, "engagement.maxTurns must be >= engagement.minQualifyingTurns")
	}
	if cfg.Engagement.HistoryTail < 1 {
		errs = append(errs, "engagement.historyTail must be >= 1")
	}

	if cfg.Callback.URL == "" {
		errs = append(errs, "callback.url is required")
	}
	if cfg.Callback.MaxRetries < 0 {
		errs = append(errs, "callback.maxRetries must be >= 0")
	}

	if cfg.Channels.API.Port < 0 || cfg.Channels.API.Port > 65535 {
		errs = append(errs, "channels.api.port must be between 0 and 65535")
	}

	switch cfg.Store.Backend {
	case "memory", "sqlite":
		// valid
	default:
		errs = append(errs, "store.backend must be one of: memory, sqlite")
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required for the sqlite backend")
	}

	// Validate failover chain references exist in providers.
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
