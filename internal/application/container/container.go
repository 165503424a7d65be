// Package container provides dependency injection for the sink's singleton services
package container

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/services"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/security"
)

// SinkSettings holds the ingest policy the container wires services with.
type SinkSettings struct {
	CSRFSecret     string
	CSRFTTL        time.Duration
	RequireCSRF    bool
	AllowedOrigins []string
	MaxBodyBytes   int64
	DedupWindow    int
}

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application Services
	IngestService *services.IngestService

	// Infrastructure Dependencies
	TailBroadcaster *messaging.TailBroadcaster
	CSRFSigner      *security.CSRFSigner
	Logger          *logging.ChanneledLogger

	// Ingest Policy
	Settings SinkSettings
}

// NewContainer creates and wires all singleton services
func NewContainer(settings SinkSettings, logger *logging.ChanneledLogger) (*Container, error) {
	secret := settings.CSRFSecret
	if secret == "" {
		generated, err := security.NewSigningSecret(32)
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Startup().Warn("SINK_CSRF_SECRET not set, tokens will not survive a restart")
	}
	signer, err := security.NewCSRFSigner(secret, settings.CSRFTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSRF signer: %w", err)
	}

	tail := messaging.NewTailBroadcaster(logger, originChecker(settings.AllowedOrigins))

	return &Container{
		IngestService:   services.NewIngestService(tail, settings.DedupWindow, logger),
		TailBroadcaster: tail,
		CSRFSigner:      signer,
		Logger:          logger,
		Settings:        settings,
	}, nil
}

// originChecker accepts upgrades without an Origin header and from any
// allowed origin.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		return "http://"+r.Host == origin || "https://"+r.Host == origin
	}
}
