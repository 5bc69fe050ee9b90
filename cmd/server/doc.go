// Package main is the entry point for the ConceptCanvas server.
//
// The server turns chat requests into React visualization components: the
// model writes source, the pre-validator and compiler check it, and failed
// attempts are fed back to the model until the retry budget is spent.
//
// Architecture:
//
//	Chat UI → HTTP API → Orchestrator → Model endpoint (chat completions)
//	                                 → Validator → Compiler
//	Sandbox iframe ⇄ /sandbox/ws relay
//
// The server provides:
//   - REST API for compile, generate and preview
//   - WebSocket relay for browser sandbox frames
//   - Prometheus and JSON metrics
//   - gRPC health service
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	LLM_API_KEY=... ./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
