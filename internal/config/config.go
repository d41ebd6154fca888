package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the IssueHound server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Redact   RedactConfig
	Triage   TriageConfig
	Archive  ArchiveConfig
	AI       AIConfig
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

type RedactConfig struct {
	// DefaultProfile is applied when an ingest request names no profile.
	DefaultProfile string
	// ProfilesFile optionally points at a YAML file of custom profiles.
	ProfilesFile string
}

type TriageConfig struct {
	// SeverityFloor is the least urgent severity still eligible for
	// automated analysis.
	SeverityFloor string
	MinRecurrence int
	CoolDown      time.Duration
	// MaxCallsPerMinute caps background AI invocations.
	MaxCallsPerMinute int
}

type ArchiveConfig struct {
	Enabled       bool
	Bucket        string
	Prefix        string
	Region        string
	BatchSize     int
	FlushInterval time.Duration
	UploadRetries int
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	// BaseURL allows pointing at any OpenAI-compatible endpoint
	// (including vLLM deployments).
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

var validProviders = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

var validSeverities = map[string]bool{
	"P0": true, "P1": true, "P2": true, "P3": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ISSUEHOUND_PORT", 8080),
			Env:  envString("ISSUEHOUND_ENV", "development"),
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
		Redact: RedactConfig{
			DefaultProfile: envString("REDACT_DEFAULT_PROFILE", "standard"),
			ProfilesFile:   os.Getenv("REDACT_PROFILES_FILE"),
		},
		Triage: TriageConfig{
			SeverityFloor:     envString("TRIAGE_SEVERITY_FLOOR", "P2"),
			MinRecurrence:     envInt("TRIAGE_MIN_RECURRENCE", 3),
			CoolDown:          envDuration("TRIAGE_COOLDOWN", time.Hour),
			MaxCallsPerMinute: envInt("TRIAGE_MAX_CALLS_PER_MINUTE", 6),
		},
		Archive: ArchiveConfig{
			Enabled:       envBool("ARCHIVE_ENABLED", false),
			Bucket:        os.Getenv("ARCHIVE_S3_BUCKET"),
			Prefix:        envString("ARCHIVE_S3_PREFIX", "events"),
			Region:        envString("ARCHIVE_AWS_REGION", "us-east-1"),
			BatchSize:     envInt("ARCHIVE_BATCH_SIZE", 500),
			FlushInterval: envDuration("ARCHIVE_FLUSH_INTERVAL", time.Minute),
			UploadRetries: envInt("ARCHIVE_UPLOAD_RETRIES", 3),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "mock"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
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

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, openai, anthropic, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}

	if !validSeverities[c.Triage.SeverityFloor] {
		return fmt.Errorf("TRIAGE_SEVERITY_FLOOR must be one of P0, P1, P2, P3; got %q", c.Triage.SeverityFloor)
	}
	if c.Triage.MinRecurrence < 1 {
		return fmt.Errorf("TRIAGE_MIN_RECURRENCE must be at least 1; got %d", c.Triage.MinRecurrence)
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_S3_BUCKET is required when ARCHIVE_ENABLED is true")
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

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
