package config

// System-wide fallbacks for autonomous schedules, in minutes.
const (
	DefaultPostMinMinutes = 90
	DefaultPostMaxMinutes = 180
	DefaultTagMinMinutes  = 120
	DefaultTagMaxMinutes  = 240
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "info",
			DefaultProvider: "ollama",
		},
		Agent: AgentConfig{
			Name: "herald",
		},
		Providers: map[string]ProviderConfig{
			"ollama": {
				Enabled:    true,
				APIBase:    "http://localhost:11434",
				SmallModel: "llama3.2:3b",
				LargeModel: "llama3.1:8b",
			},
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				IgnoreBotMessages: true,
			},
			Discord: DiscordConfig{
				IgnoreBotMessages: true,
			},
			Feed: FeedConfig{
				APIBase: "https://api.x.com",
			},
		},
		Memory: MemoryConfig{
			DBPath:       "~/.herald/memory.db",
			HistoryLimit: 20,
		},
		Cache: CacheConfig{
			Backend: "sqlite",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}
