package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// BodyMiddleware caps request bodies at maxBytes and transparently inflates
// gzip-encoded bodies. The cap applies to both the wire and inflated size.
func BodyMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		if strings.EqualFold(c.GetHeader("Content-Encoding"), "gzip") {
			zr, err := gzip.NewReader(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid gzip body"})
				return
			}
			defer zr.Close()
			c.Request.Body = http.MaxBytesReader(c.Writer, zr, maxBytes)
			c.Request.Header.Del("Content-Encoding")
		}
		c.Next()
	}
}
