// Package startup prepares the sink server
package startup

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/container"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-beacon/internal/presentation/http/routes"
	"github.com/AtRiskMedia/tractstack-beacon/internal/presentation/http/server"
	"github.com/AtRiskMedia/tractstack-beacon/pkg/config"
	"github.com/gin-gonic/gin"
)

// NewLogger builds the channeled logger from LOG_* settings.
func NewLogger() (*logging.ChanneledLogger, error) {
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Printf("Ignoring LOG_LEVEL: %v", err)
		level = slog.LevelInfo
	}
	logConfig := logging.DefaultLoggerConfig()
	logConfig.DefaultLevel = level
	logConfig.JSONFormat = config.LogFormat != "text"
	logConfig.OutputToFile = config.LogToFile
	logConfig.LogDirectory = config.LogDirectory
	return logging.NewChanneledLogger(logConfig)
}

// SinkSettings maps the SINK_* configuration onto container settings.
func SinkSettings() container.SinkSettings {
	return container.SinkSettings{
		CSRFSecret:     config.SinkCSRFSecret,
		CSRFTTL:        config.SinkCSRFTTL,
		RequireCSRF:    config.SinkRequireCSRF,
		AllowedOrigins: config.SinkAllowedOrigins,
		MaxBodyBytes:   int64(config.SinkMaxBodyBytes),
	}
}

// InitializeSink runs the development ingest sink until SIGINT or SIGTERM.
func InitializeSink(port string) error {
	setupLogging()
	start := time.Now().UTC()

	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Step 1: Create dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer, err := container.NewContainer(SinkSettings(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}

	// Step 2: Start live tail broadcaster
	go appContainer.TailBroadcaster.Run(ctx)
	logger.Startup().Info("Live tail broadcaster started")

	// Step 3: Serve until a signal arrives
	if port == "" {
		port = config.Port
	}
	httpServer := server.New(":"+port, routes.SetupRoutes(appContainer), logger)

	logger.Startup().Info("Sink startup complete",
		"totalDuration", time.Since(start),
		"port", port,
		"requireCsrf", appContainer.Settings.RequireCSRF,
		"allowedOrigins", appContainer.Settings.AllowedOrigins,
	)

	runErr := httpServer.Run(ctx)
	signalled := ctx.Err() != nil
	stop()
	if !signalled {
		if runErr == nil {
			runErr = fmt.Errorf("sink listener closed unexpectedly")
		}
		logger.System().Error("HTTP server failed", "error", runErr.Error())
		return runErr
	}
	if runErr != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", runErr.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	stats := appContainer.IngestService.Stats()
	logger.Shutdown().Info("Sink shutdown complete",
		"totalUptime", time.Since(start),
		"envelopes", stats.Envelopes,
		"records", stats.Records,
	)
	return nil
}

// setupLogging configures gin and the standard logger used before the
// channeled logger exists
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
