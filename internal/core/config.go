package core

import (
	"time"
)

type Config struct {
	Spotify  SpotifyConfig
	LLM      LLMConfig
	Resolver ResolverConfig
	Server   ServerConfig
	Store    StoreConfig
	Log      LogConfig
	App      AppConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
	Market       string
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// ResolverConfig carries the tuned matching constants. The thresholds were
// chosen against a labelled sample of suggester output and should only be
// changed together with a re-run of that evaluation.
type ResolverConfig struct {
	AcceptThreshold    float64
	EarlyExitThreshold float64
	SearchLimit        int
	SearchRetries      int
	SearchRetryDelay   time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int
	RateWindow   time.Duration
}

type StoreConfig struct {
	HistoryPath   string
	DedupCapacity int
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Count             int
	Verify            bool
	DryRun            bool
	Autoplay          bool
	SuggestRetries    int
	SuggestRetryDelay time.Duration
	QueuePause        time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8080/callback",
			TokenPath:   "./spotify_token.json",
			Market:      "US",
		},
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "",
		},
		Resolver: ResolverConfig{
			AcceptThreshold:    0.45,
			EarlyExitThreshold: 0.75,
			SearchLimit:        20,
			SearchRetries:      2,
			SearchRetryDelay:   500 * time.Millisecond,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			RateLimit:    30,
			RateWindow:   time.Minute,
		},
		Store: StoreConfig{
			HistoryPath:   "./mixcue_history.db",
			DedupCapacity: 4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Count:             5,
			Verify:            true,
			SuggestRetries:    3,
			SuggestRetryDelay: time.Second,
			QueuePause:        100 * time.Millisecond,
		},
	}
}
