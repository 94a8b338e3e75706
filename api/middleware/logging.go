package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/text-extractor/pkg/logger"
)

// RequestLogger logs one line per request and stores a request-scoped
// logger in the request context.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := log.With(
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
		)
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), reqLog))

		c.Next()

		reqLog.Info("Request handled",
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("clientIP", c.ClientIP()),
		)
	}
}
