// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/tractstack-beacon/internal/application/container"
	"github.com/AtRiskMedia/tractstack-beacon/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/tractstack-beacon/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(container.Logger))
	r.Use(middleware.CORSMiddleware(container.Settings.AllowedOrigins))

	// Initialize handlers
	trackHandlers := handlers.NewTrackHandlers(container.IngestService, container.CSRFSigner, container.Settings.CSRFTTL, container.Logger)
	tailHandlers := handlers.NewTailHandlers(container.TailBroadcaster, container.IngestService, container.Logger)

	r.GET("/healthz", tailHandlers.HandleHealth)

	analyticsAPI := r.Group("/api/analytics")
	{
		analyticsAPI.GET("/csrf", trackHandlers.HandleCSRF)
		analyticsAPI.GET("/tail", tailHandlers.HandleTail)
		analyticsAPI.POST("/track",
			middleware.BodyMiddleware(container.Settings.MaxBodyBytes),
			middleware.CSRFMiddleware(container.CSRFSigner, container.Settings.RequireCSRF, container.Logger),
			trackHandlers.HandleTrack,
		)
	}

	sinkAPI := r.Group("/api/sink")
	{
		sinkAPI.GET("/logs/levels", tailHandlers.GetLogLevels)
		sinkAPI.POST("/logs/levels", tailHandlers.SetLogLevel)
	}

	return r
}
