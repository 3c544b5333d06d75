package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	TMDB      TMDBConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

// ProviderConfig points at the Solar embedding/chat API.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	QueryModel   string
	PassageModel string
	ChatModel    string
}

type TMDBConfig struct {
	APIKey string // optional; empty disables catalog sync
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4700,
		},
		Provider: ProviderConfig{
			BaseURL:      "https://api.upstage.ai/v1",
			QueryModel:   "solar-embedding-1-large-query",
			PassageModel: "solar-embedding-1-large-passage",
			ChatModel:    "solar-1-mini-chat",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "kinobot-data"
		}
	}
	return filepath.Join(dir, "kinobot")
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/kinobot/config.json, then applies KINOBOT_* environment
// overrides. The Solar API key must be present (environment only, never
// the config file); its absence is a configuration error raised here,
// before any network call.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

// LoadUnchecked is Load without the API key requirement, for commands
// that only display configuration.
func LoadUnchecked() Config {
	cfg := defaults()
	if err := applyBackend(&cfg, newFileBackend()); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] reading config file: %v. Using defaults.\n", err)
		cfg = defaults()
	}
	applyEnvOverrides(&cfg)
	return cfg
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Provider.APIKey == "" {
		return Config{}, fmt.Errorf(
			"missing required config: Solar API key. Set it via environment variable KINOBOT_PROVIDER_API_KEY")
	}

	return cfg, nil
}
