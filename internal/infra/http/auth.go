package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const principalContextKey = "principal"

// requireCaller resolves the bearer token to the caller id that the ledger
// and guard check against their role sets.
func (s *Server) requireCaller(c *gin.Context) (domain.Principal, bool) {
	if s.authenticator == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return domain.Principal{}, false
	}
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil || principal.Subject == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		return domain.Principal{}, false
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}
