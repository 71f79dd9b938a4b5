// Package config loads and validates the Vaultline configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Vaultline.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret     string         `yaml:"jwt_secret"`
	TokenExpiry   time.Duration  `yaml:"token_expiry"`
	APIKeys       []APIKeyConfig `yaml:"api_keys"`
	DefaultScopes []string       `yaml:"default_scopes"`
}

// APIKeyConfig is one static credential with its granted scopes.
type APIKeyConfig struct {
	Key    string   `yaml:"key"`
	Name   string   `yaml:"name"`
	Scopes []string `yaml:"scopes"`
}

type LLMConfig struct {
	Provider  string         `yaml:"provider"`
	MaxTokens int            `yaml:"max_tokens"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

type ProviderConfig struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	Backend     string        `yaml:"backend"`
	SQLitePath  string        `yaml:"sqlite_path"`
	TTL         time.Duration `yaml:"ttl"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

type SecurityConfig struct {
	Blocklist []string     `yaml:"blocklist"`
	Oracle    OracleConfig `yaml:"oracle"`
}

type OracleConfig struct {
	URL                string        `yaml:"url"`
	APIKey             string        `yaml:"api_key"`
	Timeout            time.Duration `yaml:"timeout"`
	BlockOnUnavailable bool          `yaml:"block_on_unavailable"`
}

type AgentConfig struct {
	MaxIterations      int    `yaml:"max_iterations"`
	RecentWindow       int    `yaml:"recent_window"`
	MaxContextTokens   int    `yaml:"max_context_tokens"`
	MaxToolResultChars int    `yaml:"max_tool_result_chars"`
	IncludeSummary     bool   `yaml:"include_summary"`
	SystemPrompt       string `yaml:"system_prompt"`
	DefaultChain       string `yaml:"default_chain"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no
// credentials. Used by tests and as the base for partial files.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if len(cfg.Auth.DefaultScopes) == 0 {
		cfg.Auth.DefaultScopes = []string{"chat:write", "wallet:read"}
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	applyProviderDefaults(&cfg.LLM.Anthropic, "claude-sonnet-4-5")
	applyProviderDefaults(&cfg.LLM.OpenAI, "gpt-4o")
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.SQLitePath == "" {
		cfg.Session.SQLitePath = "vaultline.db"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.LockTimeout == 0 {
		cfg.Session.LockTimeout = 30 * time.Second
	}
	if cfg.Security.Oracle.Timeout == 0 {
		cfg.Security.Oracle.Timeout = 5 * time.Second
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 5
	}
	if cfg.Agent.RecentWindow == 0 {
		cfg.Agent.RecentWindow = 20
	}
	if cfg.Agent.MaxContextTokens == 0 {
		cfg.Agent.MaxContextTokens = 8000
	}
	if cfg.Agent.MaxToolResultChars == 0 {
		cfg.Agent.MaxToolResultChars = 2000
	}
	if cfg.Agent.DefaultChain == "" {
		cfg.Agent.DefaultChain = "base"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyProviderDefaults(p *ProviderConfig, model string) {
	if p.Model == "" {
		p.Model = model
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = time.Second
	}
	if p.Timeout == 0 {
		p.Timeout = 2 * time.Minute
	}
}

// Validate rejects configurations that cannot produce a working server.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Session.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Backend == "sqlite" && c.Session.SQLitePath == "" {
		return fmt.Errorf("session.sqlite_path is required for the sqlite backend")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1")
	}
	for i, key := range c.Auth.APIKeys {
		if key.Key == "" {
			return fmt.Errorf("auth.api_keys[%d]: key is required", i)
		}
	}
	return nil
}
