/*
Package monitoring provides metrics collection for the compile and
generation pipeline.

# Overview

Metrics are registered on a private Prometheus registry owned by each
Metrics value, so tests and embedded servers never collide on
registration. A small ring of recent latencies per series backs the
JSON metrics API, summarized with gonum.

# Features

- HTTP request metrics (latency, throughput, size)
- Compile outcomes, diagnostics by kind and cache hit rate
- Generation outcomes, attempts per request and model call latency
- Sandbox instances and protocol messages
- gRPC and WebSocket metrics

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RecordCompile(false, "UndefinedIdentifier", 2, elapsed)
	summary := metrics.Latency(monitoring.SeriesCompile)
*/
package monitoring
