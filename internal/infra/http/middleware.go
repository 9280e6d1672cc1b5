package http

import (
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, c.Request.Method, status, elapsed)
		}
		ev := s.logger.Debug()
		if principal, ok := getPrincipal(c); ok {
			ev = ev.Str("caller", principal.Subject)
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request")
	}
}
