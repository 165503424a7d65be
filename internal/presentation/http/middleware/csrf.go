package middleware

import (
	"net/http"

	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/security"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/transport"
	"github.com/gin-gonic/gin"
)

// CSRFMiddleware validates the anti-forgery header. A present but invalid
// token is always rejected; a missing token is rejected only when required,
// since unload beacons cannot carry headers.
func CSRFMiddleware(signer *security.CSRFSigner, required bool, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(transport.CSRFHeader)
		if token == "" {
			if required {
				logger.Sink().Warn("Rejected request without CSRF token", "remoteAddr", c.ClientIP())
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error", "message": "CSRF token missing"})
				return
			}
			c.Next()
			return
		}

		if err := signer.Validate(token); err != nil {
			logger.Sink().Warn("Rejected request with invalid CSRF token", "remoteAddr", c.ClientIP(), "error", err.Error())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error", "message": "CSRF token invalid"})
			return
		}
		c.Next()
	}
}
