// Package handlers provides HTTP handlers for the sink.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/services"
	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/security"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/transport"
	"github.com/gin-gonic/gin"
)

// TrackHandlers receives telemetry envelopes and issues anti-forgery tokens
type TrackHandlers struct {
	ingestService *services.IngestService
	signer        *security.CSRFSigner
	csrfTTL       time.Duration
	logger        *logging.ChanneledLogger
}

// NewTrackHandlers creates track handlers with injected dependencies
func NewTrackHandlers(ingestService *services.IngestService, signer *security.CSRFSigner, csrfTTL time.Duration, logger *logging.ChanneledLogger) *TrackHandlers {
	return &TrackHandlers{
		ingestService: ingestService,
		signer:        signer,
		csrfTTL:       csrfTTL,
		logger:        logger,
	}
}

// HandleTrack handles POST /api/analytics/track
func (h *TrackHandlers) HandleTrack(c *gin.Context) {
	start := time.Now()

	var envelope telemetry.RawEnvelope
	if err := json.NewDecoder(c.Request.Body).Decode(&envelope); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "message": "Body too large"})
			return
		}
		h.logger.Sink().Warn("Rejected malformed envelope", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON"})
		return
	}

	result, err := h.ingestService.Ingest(envelope)
	if err != nil {
		if errors.Is(err, services.ErrInvalidEnvelope) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "No events provided"})
			return
		}
		h.logger.Sink().Error("Ingest failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	h.logger.Sink().Debug("Track request completed", "processed", result.Processed, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"processed":  result.Processed,
		"rejected":   result.Rejected,
		"duplicates": result.Duplicates,
	})
}

// HandleCSRF handles GET /api/analytics/csrf, setting the token cookie the
// collector's token source reads.
func (h *TrackHandlers) HandleCSRF(c *gin.Context) {
	token, err := h.signer.Issue()
	if err != nil {
		h.logger.Sink().Error("Failed to issue CSRF token", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "token unavailable"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(transport.CSRFCookie, token, int(h.csrfTTL.Seconds()), "/", "", c.Request.TLS != nil, false)
	c.JSON(http.StatusOK, gin.H{"token": token})
}
