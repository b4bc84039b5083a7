package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"honeypot/internal/bus"
	"honeypot/internal/channel"
	"honeypot/internal/config"
	"honeypot/internal/domain"
	"honeypot/internal/engage"
	"honeypot/internal/intel"
	"honeypot/internal/patterns"
	"honeypot/internal/probe"
	"honeypot/internal/provider"
	"honeypot/internal/report"
	"honeypot/internal/sentinel"
	"honeypot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "honeypot",
		Short: "Agentic scam honeypot",
		Long:  "A scam-detection honeypot that scores incoming messages, engages scammers with a decoy persona, and reports extracted intelligence.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.honeypot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(simulateCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "version", version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the honeypot daemon (API, engine, report runner)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.General.LogLevel)}))
	config.ResolvePlaceholders(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib := patterns.NewLibrary()
	if dir := cfg.General.SignaturesDir; dir != "" {
		sigs, err := patterns.LoadFromDirectory(dir, logger)
		if err != nil {
			logger.Warn("signature pack load failed", "dir", dir, "err", err)
		} else if len(sigs) > 0 {
			lib.AddSignatures(sigs)
			logger.Info("signature packs loaded", "dir", dir, "count", len(sigs))
		}
	}

	ttl := time.Duration(cfg.Engagement.SessionTTLMinutes) * time.Minute
	keyLocks := store.NewKeyLocks()
	sessionStore, err := openStore(cfg, ttl, keyLocks)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessionStore.Close()

	reportBus := bus.New(100, logger)
	defer reportBus.Close()

	factory := provider.NewFactory(cfg, logger)
	oracle, err := factory.Chain()
	if err != nil {
		logger.Warn("no oracle available, running on rules and canned replies", "err", err)
		oracle = nil
	}

	sent := sentinel.New(sentinel.Config{
		Library:      lib,
		Oracle:       oracle,
		Threshold:    cfg.Detection.Threshold,
		RuleWeight:   cfg.Detection.RuleWeight,
		OracleWeight: cfg.Detection.OracleWeight,
		Timeout:      time.Duration(cfg.Detection.OracleTimeoutSeconds) * time.Second,
		Logger:       logger,
	})

	var prober engage.LinkProber
	if cfg.Probe.Enabled {
		prober = probe.New(cfg.Probe, logger)
	}

	engine := engage.NewEngine(engage.EngineConfig{
		Store:      sessionStore,
		Sentinel:   sent,
		Intel:      intel.NewAggregator(lib),
		Oracle:     oracle,
		Bus:        reportBus,
		Prober:     prober,
		Locks:      keyLocks,
		Engagement: cfg.Engagement,
		Logger:     logger,
	})

	dispatcher := report.NewDispatcher(cfg.Callback, logger)
	runner := report.NewRunner(sessionStore, reportBus, dispatcher, keyLocks,
		time.Duration(cfg.Callback.TickSeconds)*time.Second, logger)
	go runner.Run(ctx)

	if sq, ok := sessionStore.(*store.SQLiteStore); ok {
		go evictLoop(ctx, sq, ttl)
	}

	if cfg.Channels.Telegram.Enabled {
		tg := channel.NewTelegram(cfg.Channels.Telegram, engine, logger)
		go func() {
			if err := tg.Start(ctx); err != nil {
				logger.Error("telegram channel failed", "err", err)
			}
		}()
	}

	api := channel.NewAPI(cfg.Channels.API, cfg.Metrics, engine, logger)
	return api.Start(ctx)
}

func openStore(cfg *config.Config, ttl time.Duration, keyLocks *store.KeyLocks) (domain.SessionStore, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.DBPath, keyLocks, logger)
	default:
		return store.NewMemoryStore(ttl, keyLocks, logger), nil
	}
}

func evictLoop(ctx context.Context, s *store.SQLiteStore, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Evict(ctx, ttl); err != nil {
				logger.Error("session eviction failed", "err", err)
			} else if n > 0 {
				logger.Info("sessions evicted", "count", n)
			}
		}
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			config.ResolvePlaceholders(cfg, logger)

			ctx := context.Background()
			factory := provider.NewFactory(cfg, logger)
			oracle, err := factory.Chain()
			if err != nil {
				logger.Info("oracle", "healthy", false, "err", err)
			} else if err := oracle.Healthy(ctx); err != nil {
				logger.Info("oracle", "name", oracle.Name(), "healthy", false, "err", err)
			} else {
				logger.Info("oracle", "name", oracle.Name(), "healthy", true)
			}

			if u, err := url.ParseRequestURI(cfg.Callback.URL); err != nil {
				logger.Info("callback", "configured", false, "err", err)
			} else {
				logger.Info("callback", "configured", true, "host", u.Host)
			}

			logger.Info("store", "backend", cfg.Store.Backend)
			logger.Info("api", "host", cfg.Channels.API.Host, "port", cfg.Channels.API.Port,
				"auth", cfg.Channels.API.APIKey != "")
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. detection.threshold)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. engagement.maxTurns 15)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
