// Package http provides the HTTP handlers for the component pipeline.
//
// Endpoints:
//   - Health: / and /health
//   - Compile: POST /api/compile (raw source or {"code": ...})
//   - Generate: POST /api/chat/generate
//   - Preview: POST /api/preview (headless sandbox render)
//   - Logs: /api/log/runtime-error, /api/log/compile-error, /api/logs
//   - Sandbox page: GET /sandbox
//   - Metrics: /metrics/json
//
// Errors are JSON objects with an "error" field. Generation failures also
// carry "technicalError" with the diagnostics of the last attempt.
//
// Example Usage:
//
//	handlers := http.NewHandlers(orch, comp, logger).WithPreviewer(factory)
//	router.POST("/api/compile", handlers.Compile)
//	router.POST("/api/chat/generate", handlers.Generate)
package http
