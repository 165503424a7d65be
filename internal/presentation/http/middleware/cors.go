// Package middleware provides HTTP middleware for the sink.
package middleware

import (
	"slices"

	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the configured page origins to post telemetry with
// credentials so the anti-forgery cookie travels along.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			"GET", "POST", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Encoding", "Accept",
			transport.CSRFHeader,
			"X-Requested-With",
		},
		AllowCredentials: true,
		ExposeHeaders: []string{
			"Content-Type",
		},
	}
	switch {
	case slices.Contains(allowedOrigins, "*"):
		config.AllowOriginFunc = func(string) bool { return true }
	case len(allowedOrigins) == 0:
		// cors.New rejects an empty origin list; deny every cross-origin caller instead.
		config.AllowOriginFunc = func(string) bool { return false }
	default:
		config.AllowOrigins = allowedOrigins
	}

	return cors.New(config)
}
