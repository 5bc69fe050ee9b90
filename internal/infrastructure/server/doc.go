// Package server wires the component pipeline into the HTTP API and the
// gRPC health service.
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Build logger, metrics and tracer
//  3. Build validator, compiler (cached when COMPILER_CACHE_SIZE > 0) and
//     model client, then the orchestrator with its attempt log
//  4. Validate the sandbox page and start the headless runtime pool
//  5. Setup HTTP routes and middleware
//  6. Serve HTTP and gRPC health until the context is cancelled
//  7. Shut both down within SHUTDOWN_TIMEOUT, then Close
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
