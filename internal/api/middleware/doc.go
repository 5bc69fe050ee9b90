// Package middleware provides the HTTP middleware for the API.
//
//   - CORS: cross-origin resource sharing with configurable origins
//   - RateLimit: per-IP token buckets that are dropped after IdleTTL
//   - GlobalRateLimit: one bucket for all clients
//   - RequestID: X-Request-ID propagation
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
