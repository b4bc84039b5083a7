package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "info",
			DefaultProvider: "openrouter",
			SignaturesDir:   "~/.honeypot/signatures",
		},
		Detection: DetectionConfig{
			Threshold:            0.65,
			RuleWeight:           0.2,
			OracleWeight:         0.8,
			OracleTimeoutSeconds: 5,
		},
		Engagement: EngagementConfig{
			MinQualifyingTurns:   3,
			MaxTurns:             12,
			HistoryTail:          20,
			ReplyMaxTokens:       200,
			ReplyTemperature:     0.7,
			OracleTimeoutSeconds: 8,
			ReplyWhileMonitoring: false,
			SessionTTLMinutes:    120,
		},
		Providers: map[string]ProviderConfig{
			"openrouter": {
				Enabled:      true,
				APIBase:      "https://openrouter.ai/api/v1",
				APIKey:       "${LLM_API_KEY}",
				DefaultModel: "llama-3.3-70b-versatile",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Callback: CallbackConfig{
			URL:            "https://hackathon.guvi.in/api/updateHoneyPotFinalResult",
			TimeoutSeconds: 5,
			MaxRetries:     3,
			TickSeconds:    30,
		},
		Channels: ChannelsConfig{
			API: APIConfig{
				Host:   "127.0.0.1",
				Port:   8001,
				APIKey: "${API_KEY}",
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Store: StoreConfig{
			Backend: "memory",
			DBPath:  "~/.honeypot/sessions.db",
		},
		Probe: ProbeConfig{
			Enabled:        false,
			Headless:       true,
			TimeoutSeconds: 15,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
