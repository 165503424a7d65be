package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/tractstack-beacon/internal/application/services"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// TailHandlers serves the live tail and operational endpoints
type TailHandlers struct {
	broadcaster   *messaging.TailBroadcaster
	ingestService *services.IngestService
	logger        *logging.ChanneledLogger
}

// NewTailHandlers creates tail handlers
func NewTailHandlers(broadcaster *messaging.TailBroadcaster, ingestService *services.IngestService, logger *logging.ChanneledLogger) *TailHandlers {
	return &TailHandlers{
		broadcaster:   broadcaster,
		ingestService: ingestService,
		logger:        logger,
	}
}

// HandleTail handles GET /api/analytics/tail. The optional session query
// parameter limits the stream to one session.
func (h *TailHandlers) HandleTail(c *gin.Context) {
	if err := h.broadcaster.ServeWS(c.Writer, c.Request, c.Query("session")); err != nil {
		h.logger.Tail().Debug("Tail upgrade failed", "error", err.Error())
	}
}

// HandleHealth handles GET /healthz
func (h *TailHandlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"tailClients": h.broadcaster.ClientCount(),
		"ingest":      h.ingestService.Stats(),
	})
}

// GetLogLevels handles GET /api/sink/logs/levels - returns current log levels for all channels.
func (h *TailHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevel handles POST /api/sink/logs/levels - sets the log level for a specific channel.
func (h *TailHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": req.Channel, "level": level.String()})
}
