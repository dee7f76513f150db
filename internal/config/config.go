// Package config loads counseld settings: defaults, then a TOML file, then
// environment variables (env wins).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Store     StoreConfig     `toml:"store"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	Engine    EngineConfig    `toml:"engine"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LLMConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	MaxAttempts int     `toml:"max_attempts"`
	Temperature float64 `toml:"temperature"`
}

type StoreConfig struct {
	// Backend selects the context store: "memory", "sqlite" or "postgres".
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`         // sqlite file
	PostgresURL string `toml:"postgres_url"` // pgx connection string
	ContextTTLH int    `toml:"context_ttl_hours"`
}

type KnowledgeConfig struct {
	// Corpus is the knowledge base JSON file. Empty disables the
	// policy/faq/guide tools.
	Corpus string `toml:"corpus"`
}

type EngineConfig struct {
	MaxHistoryTurns     int `toml:"max_history_turns"`
	MaxToolRounds       int `toml:"max_tool_rounds"`
	MaxDiscussionRounds int `toml:"max_discussion_rounds"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8000"},
		LLM: LLMConfig{
			Provider:    "deepseek",
			Model:       "deepseek-chat",
			BaseURL:     "https://api.deepseek.com/v1",
			MaxAttempts: 3,
		},
		Store:     StoreConfig{Backend: "memory", Path: "counsel.db", ContextTTLH: 24},
		Knowledge: KnowledgeConfig{Corpus: "knowledge.json"},
		Engine: EngineConfig{
			MaxHistoryTurns:     5,
			MaxToolRounds:       5,
			MaxDiscussionRounds: 5,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "counsel.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("COUNSEL_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COUNSEL_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("COUNSEL_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("COUNSEL_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("COUNSEL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("COUNSEL_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("COUNSEL_KNOWLEDGE_CORPUS"); v != "" {
		cfg.Knowledge.Corpus = v
	}
	if os.Getenv("COUNSEL_OBSERVER_ENABLED") == "true" || os.Getenv("COUNSEL_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
