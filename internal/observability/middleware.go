package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StateFunc reports the state of the endpoint an admin request is about.
type StateFunc func() string

// AdminRequests logs and counts each admin HTTP request for service. Every
// log line carries the UDP endpoint state seen when the request finished.
func AdminRequests(service string, state StateFunc) gin.HandlerFunc {
	logger := ComponentLogger("admin").With().Str("service", service).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		RecordHTTPRequest(service, c.Request.Method, route, status, elapsed)

		event := levelFor(logger, status)
		if state != nil {
			event = event.Str("udp_state", state())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("admin request")
	}
}

func levelFor(logger zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	default:
		return logger.Debug()
	}
}
