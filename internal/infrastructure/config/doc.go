// Package config provides 12-factor configuration management for the
// ConceptCanvas backend.
//
// Configuration is loaded from environment variables with defaults.
// CLI flags can override individual values.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS origins)
//   - GRPC: health service port
//   - LLM: model endpoint, models, timeouts and prompt language
//   - Compiler: result cache size
//   - Orchestrator: fix attempts after the first generation
//   - Sandbox: headless runtime pool limits
//   - AttemptLog: directory for per-request attempt records
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
