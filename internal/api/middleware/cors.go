package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig allows any origin. The sandbox page and the chat UI are
// usually served from a different dev server.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			RequestIDHeader,
		},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
}

// WithOrigins returns a copy restricted to origins. Credentials are only
// allowed for an explicit origin list.
func (c CORSConfig) WithOrigins(origins []string) CORSConfig {
	if len(origins) == 0 {
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = !containsWildcard(origins)
	return c
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
