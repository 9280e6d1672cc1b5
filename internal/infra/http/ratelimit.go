package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const routeEvaluations = "evaluations"

func (s *Server) enforceRateLimit(c *gin.Context, routeID string, principal domain.Principal) bool {
	if s.rateLimiter == nil || s.opts.RateLimitRequests <= 0 {
		return true
	}
	key := domain.RateLimitKey{Route: routeID, Subject: principal.Subject}
	quota := domain.Quota{Requests: s.opts.RateLimitRequests, Window: s.opts.RateLimitWindow}
	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, quota)
	if err != nil {
		s.logger.Warn().Err(err).Str("route", routeID).Msg("rate limiter error")
		if s.opts.RateLimitFailClosed {
			writeErrorCode(c, http.StatusServiceUnavailable, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if decision.ResetAt.IsZero() {
		return
	}
	c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if !decision.Allowed {
		wait := decision.RetryAfter(time.Now())
		c.Header("Retry-After", strconv.FormatInt(int64((wait+time.Second-1)/time.Second), 10))
	}
}
