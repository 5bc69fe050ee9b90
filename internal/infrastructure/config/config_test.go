package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	// Model endpoint
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 8192, cfg.LLM.MaxTokens)
	assert.Empty(t, cfg.LLM.APIKey)

	// Pipeline
	assert.Equal(t, 2, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 256, cfg.Compiler.CacheSize)
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                     "9000",
		"HOST":                     "127.0.0.1",
		"CORS_ORIGINS":             "http://localhost:5173,http://localhost:3000",
		"GRPC_PORT":                "6000",
		"GRPC_ENABLED":             "false",
		"LLM_BASE_URL":             "http://llm.local/v1",
		"LLM_API_KEY":              "sk-test",
		"DEFAULT_MODEL":            "qwen-coder",
		"LLM_LANGUAGE":             "Chinese",
		"LLM_TIMEOUT":              "30s",
		"LLM_RPS":                  "0.5",
		"ORCHESTRATOR_MAX_RETRIES": "4",
		"COMPILER_CACHE_SIZE":      "0",
		"SANDBOX_POOL_SIZE":        "8",
		"SANDBOX_TIMEOUT":          "250ms",
		"ATTEMPT_LOG_DIR":          "",
		"LOG_LEVEL":                "debug",
		"LOG_DEV":                  "true",
		"RATE_LIMIT_ENABLED":       "false",
		"RATE_LIMIT_GLOBAL_RPS":    "50",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "6000", cfg.GRPC.Port)
	assert.False(t, cfg.GRPC.Enabled)

	assert.Equal(t, "http://llm.local/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "qwen-coder", cfg.LLM.Model)
	assert.Equal(t, "Chinese", cfg.LLM.Language)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.5, cfg.LLM.RequestsPerSecond, 1e-9)

	assert.Equal(t, 4, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 0, cfg.Compiler.CacheSize)
	assert.Equal(t, 8, cfg.Sandbox.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout)
	assert.Empty(t, cfg.AttemptLog.Dir)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 50, cfg.RateLimit.GlobalRequestsPerSecond)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "negative retries", key: "ORCHESTRATOR_MAX_RETRIES", value: "-1"},
		{name: "empty pool", key: "SANDBOX_POOL_SIZE", value: "0"},
		{name: "negative cache", key: "COMPILER_CACHE_SIZE", value: "-5"},
		{name: "negative global rate", key: "RATE_LIMIT_GLOBAL_RPS", value: "-1"},
		{name: "bad duration", key: "SANDBOX_TIMEOUT", value: "soon"},
		{name: "bad bool", key: "LOG_DEV", value: "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)

			cfg := LoadOrDefault()
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{name: "default values", wantPort: "8000", wantHost: "0.0.0.0"},
		{name: "custom port", port: "9000", wantPort: "9000", wantHost: "0.0.0.0"},
		{name: "custom host", host: "localhost", wantPort: "8000", wantHost: "localhost"},
		{name: "custom port and host", port: "3000", host: "127.0.0.1", wantPort: "3000", wantHost: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}
