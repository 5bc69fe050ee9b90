package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	GRPC         GRPCConfig
	LLM          LLMConfig
	Compiler     CompilerConfig
	Orchestrator OrchestratorConfig
	Sandbox      SandboxConfig
	AttemptLog   AttemptLogConfig
	Logging      LogConfig
	RateLimit    RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"CORS_ORIGINS" default:"*"`
}

// GRPCConfig holds the health service configuration.
type GRPCConfig struct {
	Port    string `envconfig:"GRPC_PORT" default:"50053"`
	Enabled bool   `envconfig:"GRPC_ENABLED" default:"true"`
}

// LLMConfig holds the model endpoint configuration.
type LLMConfig struct {
	BaseURL           string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey            string        `envconfig:"LLM_API_KEY"`
	Model             string        `envconfig:"DEFAULT_MODEL" default:"gpt-4o"`
	ClassifierModel   string        `envconfig:"CLASSIFIER_MODEL" default:"gpt-4o-mini"`
	MaxTokens         int           `envconfig:"LLM_MAX_TOKENS" default:"8192"`
	Timeout           time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`
	RetryMax          int           `envconfig:"LLM_RETRY_MAX" default:"2"`
	RequestsPerSecond float64       `envconfig:"LLM_RPS" default:"5"`
	Language          string        `envconfig:"LLM_LANGUAGE" default:"English"`
	PromptsFile       string        `envconfig:"LLM_PROMPTS_FILE"`
}

// CompilerConfig holds compiler configuration.
type CompilerConfig struct {
	CacheSize int `envconfig:"COMPILER_CACHE_SIZE" default:"256"`
}

// OrchestratorConfig holds retry loop configuration.
type OrchestratorConfig struct {
	MaxRetries int `envconfig:"ORCHESTRATOR_MAX_RETRIES" default:"2"`
}

// SandboxConfig holds headless sandbox limits.
type SandboxConfig struct {
	PoolSize         int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	Timeout          time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	AcquireTimeout   time.Duration `envconfig:"SANDBOX_ACQUIRE_TIMEOUT" default:"5s"`
	MaxCallStackSize int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
}

// AttemptLogConfig holds attempt log configuration. An empty Dir disables
// the file sink.
type AttemptLogConfig struct {
	Dir string `envconfig:"ATTEMPT_LOG_DIR" default:"logs/attempts"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// GlobalRequestsPerSecond caps all clients together. Zero disables it.
	GlobalRequestsPerSecond int `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("invalid config: ORCHESTRATOR_MAX_RETRIES must be >= 0, got %d", c.Orchestrator.MaxRetries)
	}
	if c.Sandbox.PoolSize < 1 {
		return fmt.Errorf("invalid config: SANDBOX_POOL_SIZE must be >= 1, got %d", c.Sandbox.PoolSize)
	}
	if c.Compiler.CacheSize < 0 {
		return fmt.Errorf("invalid config: COMPILER_CACHE_SIZE must be >= 0, got %d", c.Compiler.CacheSize)
	}
	if c.RateLimit.GlobalRequestsPerSecond < 0 {
		return fmt.Errorf("invalid config: RATE_LIMIT_GLOBAL_RPS must be >= 0, got %d", c.RateLimit.GlobalRequestsPerSecond)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		GRPC: GRPCConfig{
			Port:    "50053",
			Enabled: true,
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o",
			ClassifierModel:   "gpt-4o-mini",
			MaxTokens:         8192,
			Timeout:           120 * time.Second,
			RetryMax:          2,
			RequestsPerSecond: 5,
			Language:          "English",
		},
		Compiler: CompilerConfig{
			CacheSize: 256,
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries: 2,
		},
		Sandbox: SandboxConfig{
			PoolSize:         4,
			Timeout:          5 * time.Second,
			AcquireTimeout:   5 * time.Second,
			MaxCallStackSize: 1024,
		},
		AttemptLog: AttemptLogConfig{
			Dir: "logs/attempts",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
