package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the automation agent.
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Workspace    WorkspaceConfig    `mapstructure:"workspace"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Schedules    []ScheduleConfig   `mapstructure:"schedules"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"` // when set, management endpoints require a bearer token
}

// LLMConfig points the decision function at an OpenAI-compatible backend.
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// WorkspaceConfig describes the sandboxed directory all file capabilities
// are confined to.
type WorkspaceConfig struct {
	Root          string `mapstructure:"root"`
	MaxCommandLen int    `mapstructure:"max_command_len"`
}

// AgentConfig bounds a single orchestration run.
type AgentConfig struct {
	IterationCap   int           `mapstructure:"iteration_cap"`
	Window         int           `mapstructure:"window"`
	ParseRetries   int           `mapstructure:"parse_retries"`
	Deadline       time.Duration `mapstructure:"deadline"`
	ExecTimeout    time.Duration `mapstructure:"exec_timeout"`
	NetworkTimeout time.Duration `mapstructure:"network_timeout"`
}

// CapabilitiesConfig tunes individual capability implementations.
type CapabilitiesConfig struct {
	FetchMaxBytes  int64  `mapstructure:"fetch_max_bytes"`
	ScrapeRenderer string `mapstructure:"scrape_renderer"` // "plain" or "chromedp"
	ScrapeMaxChars int    `mapstructure:"scrape_max_chars"`
	SearchMaxHits  int    `mapstructure:"search_max_hits"`
}

// StorageConfig contains optional persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig enables the run archive when URL or host/dbname is set.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	if p.Host == "" || p.DBName == "" {
		return ""
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig enables the Redis conversation store when Host is set.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ScheduleConfig describes a recurring task submitted by the scheduler.
type ScheduleConfig struct {
	Name    string `mapstructure:"name"`
	Cron    string `mapstructure:"cron"`
	Task    string `mapstructure:"task"`
	Session string `mapstructure:"session"`
}

// Validate checks the parts of the configuration the core depends on.
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must be configured")
	}
	if c.Agent.IterationCap <= 0 {
		return fmt.Errorf("agent.iteration_cap must be > 0")
	}
	if c.LLM.ChatModel == "" {
		return fmt.Errorf("llm.chat_model must be configured")
	}
	for _, s := range c.Schedules {
		if s.Cron == "" || s.Task == "" {
			return fmt.Errorf("schedule %q requires cron and task", s.Name)
		}
	}
	return nil
}

// LoadConfig loads configuration from the given file (or ./config.yaml when
// empty), applying defaults and AUTOMATOR_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("workspace.root", "processed_files")
	v.SetDefault("workspace.max_command_len", 4096)
	v.SetDefault("agent.iteration_cap", 20)
	v.SetDefault("agent.window", 20)
	v.SetDefault("agent.parse_retries", 3)
	v.SetDefault("agent.deadline", "5m")
	v.SetDefault("agent.exec_timeout", "300s")
	v.SetDefault("agent.network_timeout", "30s")
	v.SetDefault("capabilities.fetch_max_bytes", 4<<20)
	v.SetDefault("capabilities.scrape_renderer", "plain")
	v.SetDefault("capabilities.scrape_max_chars", 20000)
	v.SetDefault("capabilities.search_max_hits", 10)
	v.SetDefault("storage.redis.ttl", "24h")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AUTOMATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("[CONFIG] no config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
