package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// route returns the registered route, or "unmatched" so unknown paths do
// not grow the metric label set.
func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}

// SessionLog logs every request together with the live session fields from
// status. Scrapes log at trace level; failures at warn or error.
func SessionLog(logger zerolog.Logger, status StatusFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case code >= 500:
			event = logger.Error()
		case code >= 400:
			event = logger.Warn()
		default:
			event = logger.Trace()
		}
		if status != nil {
			event = event.Fields(status())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route(c)).
			Int("status", code).
			Dur("elapsed", time.Since(start)).
			Msg("observability.http request")
	}
}

// SessionMetrics records request counts and latency per route.
func SessionMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, route(c), c.Writer.Status(), time.Since(start))
	}
}
