package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PolicyGlass server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider  string
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
}

type OpenAIConfig struct {
	APIKey        string
	ResearchModel string
	AuditModel    string
	BaseURL       string
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SchedulerConfig controls the background job pipeline.
type SchedulerConfig struct {
	Interval         time.Duration // processing loop tick
	ErrorBackoff     time.Duration // extra sleep after a loop-level failure
	MaxConcurrent    int           // concurrent jobs, clamped to [1,10]
	PhaseTimeout     time.Duration // hard bound on one phase executor call
	PendingBatchSize int           // jobs pulled from the store per tick
	JobTTL           time.Duration // job expiration from creation
	ReapInterval     time.Duration // expired-job cleanup cadence
	KeepaliveEvery   time.Duration // websocket ping cadence
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("POLICYGLASS_PORT", 8080),
			Env:  envString("POLICYGLASS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider: envString("AI_PROVIDER", "openai"),
			OpenAI: OpenAIConfig{
				APIKey:        os.Getenv("OPENAI_API_KEY"),
				ResearchModel: envString("OPENAI_RESEARCH_MODEL", "gpt-4o"),
				AuditModel:    envString("OPENAI_AUDIT_MODEL", "gpt-4o-mini"),
				BaseURL:       envString("OPENAI_BASE_URL", "https://api.openai.com"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
		},
		Scheduler: SchedulerConfig{
			Interval:         envDuration("SCHEDULER_INTERVAL", 5*time.Second),
			ErrorBackoff:     envDuration("SCHEDULER_ERROR_BACKOFF", 10*time.Second),
			MaxConcurrent:    envInt("SCHEDULER_MAX_CONCURRENT", 3),
			PhaseTimeout:     envDuration("SCHEDULER_PHASE_TIMEOUT", 5*time.Minute),
			PendingBatchSize: envInt("SCHEDULER_PENDING_BATCH", 10),
			JobTTL:           envDuration("JOB_TTL", 24*time.Hour),
			ReapInterval:     envDuration("JOB_REAP_INTERVAL", time.Hour),
			KeepaliveEvery:   envDuration("WS_KEEPALIVE_INTERVAL", 30*time.Second),
		},
	}

	// Concurrency stays inside [1,10] no matter what the environment says.
	if cfg.Scheduler.MaxConcurrent < 1 {
		cfg.Scheduler.MaxConcurrent = 1
	}
	if cfg.Scheduler.MaxConcurrent > 10 {
		cfg.Scheduler.MaxConcurrent = 10
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must be a postgres:// URL, got %q", c.Database.URL)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	if c.Scheduler.PhaseTimeout <= 0 {
		return fmt.Errorf("SCHEDULER_PHASE_TIMEOUT must be positive")
	}
	if c.Scheduler.JobTTL <= 0 {
		return fmt.Errorf("JOB_TTL must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
