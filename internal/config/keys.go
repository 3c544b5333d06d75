package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KINOBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "provider.base_url", typ: kString, env: "KINOBOT_PROVIDER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Provider.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.BaseURL },
	},
	{
		key: "provider.api_key", typ: kString, env: "KINOBOT_PROVIDER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Provider.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.APIKey },
	},
	{
		key: "provider.query_model", typ: kString, env: "KINOBOT_PROVIDER_QUERY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.QueryModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.QueryModel },
	},
	{
		key: "provider.passage_model", typ: kString, env: "KINOBOT_PROVIDER_PASSAGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.PassageModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.PassageModel },
	},
	{
		key: "provider.chat_model", typ: kString, env: "KINOBOT_PROVIDER_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.ChatModel },
	},
	{
		key: "tmdb.api_key", typ: kString, env: "KINOBOT_TMDB_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.TMDB.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.TMDB.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KINOBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "KINOBOT_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "log.level", typ: kString, env: "KINOBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, v)
		case kInt:
			i, err := strconv.Atoi(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from %s=%q: %v. Using default value.\n", s.env, v, err)
				continue
			}
			s.apply(cfg, i)
		}
	}
}
