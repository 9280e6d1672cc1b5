package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/usecase"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type evaluationRequest struct {
	Asset      string      `json:"asset" binding:"required,max=64"`
	ProtocolID string      `json:"protocolId" binding:"max=128"`
	Mode       domain.Mode `json:"mode" binding:"omitempty,oneof=check drill"`
	PaymentRef string      `json:"paymentRef" binding:"max=256"`
	Anchor     bool        `json:"anchor"`
}

// signedAnchorRequest carries no caller identity; the signature is the
// credential. Score, level and agent checks stay in the ledger so their
// error codes keep their order.
type signedAnchorRequest struct {
	EvidenceHash string `json:"evidenceHash" binding:"required,max=66"`
	RunIDHash    string `json:"runIdHash" binding:"required,max=66"`
	AgentID      string `json:"agentId" binding:"max=128"`
	Score        int    `json:"score"`
	Level        int    `json:"level"`
	IsDrill      bool   `json:"isDrill"`
	Signature    string `json:"signature" binding:"required,base64"`
}

type initMarketRequest struct {
	Market          string `json:"market" binding:"required,max=64"`
	MaxLTV          int64  `json:"maxLtv" binding:"gt=0,lte=10000"`
	MinLTV          int64  `json:"minLtv" binding:"gte=0,ltefield=MaxLTV"`
	MaxCap          uint64 `json:"maxCap"`
	CooldownSeconds int64  `json:"cooldownSeconds" binding:"gte=0"`
}

// enforceRequest leaves LTV and cap unbounded here: out-of-range values are
// blast-radius rejections, not malformed requests.
type enforceRequest struct {
	Market       string `json:"market" binding:"max=64"`
	EvidenceHash string `json:"evidenceHash" binding:"max=66"`
	NewLTV       int64  `json:"newLtv"`
	NewCap       uint64 `json:"newCap"`
	Freeze       bool   `json:"freeze"`
}

type verifyQuery struct {
	MinScore *int `form:"min_score" binding:"omitempty,min=0,max=100"`
}

type verifyResponse struct {
	EvidenceHash string `json:"evidenceHash"`
	MinScore     int    `json:"minScore"`
	Verified     bool   `json:"verified"`
}

type agentResponse struct {
	AgentID    string `json:"agentId"`
	Authorized bool   `json:"authorized"`
}

type roleResponse struct {
	Role    domain.Role `json:"role"`
	Subject string      `json:"subject"`
	Granted bool        `json:"granted"`
}

type historyResponse struct {
	Market string                  `json:"market"`
	Events []domain.PolicyEnforced `json:"events"`
}

func (s *Server) handleEvaluate(c *gin.Context) {
	principal, ok := s.requireCaller(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeEvaluations, principal) {
		return
	}
	if s.evaluate == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "EVALUATION_UNAVAILABLE", "evaluation not configured")
		return
	}
	var req evaluationRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := s.evaluate.Execute(c.Request.Context(), usecase.EvaluateRiskRequest{
		Asset:      req.Asset,
		ProtocolID: req.ProtocolID,
		Mode:       req.Mode,
		PaymentRef: req.PaymentRef,
		Anchor:     req.Anchor,
	})
	if err != nil {
		// a signed receipt survives an anchoring failure and is still returned
		if result.Receipt.EvidenceHash != "" {
			writeErrorWithReceipt(c, err, result.Receipt)
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAnchorSigned(c *gin.Context) {
	var req signedAnchorRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := s.ledger.AnchorSigned(c.Request.Context(), domain.SignedAnchorRequest{
		AnchorRequest: domain.AnchorRequest{
			EvidenceHash: req.EvidenceHash,
			RunIDHash:    req.RunIDHash,
			AgentID:      req.AgentID,
			Score:        req.Score,
			Level:        req.Level,
			IsDrill:      req.IsDrill,
		},
		Signature: req.Signature,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleGetEvidence(c *gin.Context) {
	entry, err := s.ledger.Get(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleVerifyEvidence(c *gin.Context) {
	var q verifyQuery
	if !bindQuery(c, &q) {
		return
	}
	minScore := domain.MinScoreForEnforcement
	if q.MinScore != nil {
		minScore = *q.MinScore
	}
	hash := c.Param("hash")
	verified, err := s.ledger.Verify(c.Request.Context(), hash, minScore)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{EvidenceHash: hash, MinScore: minScore, Verified: verified})
}

func (s *Server) handleAuthorizeAgent(c *gin.Context) {
	principal, ok := s.requireCaller(c)
	if !ok {
		return
	}
	agentID := c.Param("agent_id")
	if err := s.ledger.AuthorizeAgent(c.Request.Context(), agentID, principal.Subject); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentResponse{AgentID: agentID, Authorized: true})
}

func (s *Server) handleRevokeAgent(c *gin.Context) {
	principal, ok := s.requireCaller(c)
	if !ok {
		return
	}
	agentID := c.Param("agent_id")
	if err := s.ledger.RevokeAgent(c.Request.Context(), agentID, principal.Subject); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentResponse{AgentID: agentID, Authorized: false})
}

func (s *Server) handleGrantRole(c *gin.Context) {
	principal, ok := s.requireCaller(c)
	if !ok {
		return
	}
	role := domain.Role(c.Param("role"))
	subject := c.Param("subject")
	if err := s.guard.GrantRole(c.Request.Context(), role, subject, principal.Subject); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roleResponse{Role: role, Subject: subject, Granted: true})
}

func (s *Server) handleRevokeRole(c *gin.Context) {
	principal, ok := s.requireCaller(c)
	if !ok {
		return
	}
	role := domain.Role(c.Param("role"))
	subject := c.Param("subject")
	if err := s.guard.RevokeRole(c.Request.Context(), role, subject, principal.Subject); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roleResponse{Role: role, Subject: subject, Granted: false})
}

func (s *Server) handleInitMarket(c *gin.Context) {
	principal, ok := s.requireCaller(c)
	if !ok {
		return
	}
	var req initMarketRequest
	if !bindJSON(c, &req) {
		return
	}
	policy, err := s.guard.InitMarket(c.Request.Context(), domain.InitMarketRequest{
		Market:          req.Market,
		MaxLTV:          req.MaxLTV,
		MinLTV:          req.MinLTV,
		MaxCap:          req.MaxCap,
		CooldownSeconds: req.CooldownSeconds,
	}, principal.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, policy)
}

func (s *Server) handleGetMarket(c *gin.Context) {
	policy, err := s.guard.Get(c.Request.Context(), c.Param("market"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (s *Server) handleEnforce(c *gin.Context) {
	principal, ok := s.requireCaller(c)
	if !ok {
		return
	}
	var req enforceRequest
	if !bindJSON(c, &req) {
		return
	}
	market := c.Param("market")
	if req.Market != "" && req.Market != market {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "market in body does not match path")
		return
	}
	policy, err := s.guard.Enforce(c.Request.Context(), domain.EnforceRequest{
		Market:       market,
		EvidenceHash: req.EvidenceHash,
		NewLTV:       req.NewLTV,
		NewCap:       req.NewCap,
		Freeze:       req.Freeze,
	}, principal.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (s *Server) handleMarketHistory(c *gin.Context) {
	market := c.Param("market")
	out := historyResponse{Market: market, Events: []domain.PolicyEnforced{}}
	if s.history != nil {
		for _, e := range s.history.Events(domain.EventPolicyEnforced, market) {
			if p, ok := e.Payload.(domain.PolicyEnforced); ok {
				out.Events = append(out.Events, p)
			}
		}
	}
	c.JSON(http.StatusOK, out)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrDuplicateEvidence):
		return http.StatusConflict, "DUPLICATE_EVIDENCE"
	case errors.Is(err, domain.ErrMarketExists):
		return http.StatusConflict, "MARKET_EXISTS"
	case errors.Is(err, domain.ErrCooldownActive):
		return http.StatusTooManyRequests, "COOLDOWN_ACTIVE"
	case errors.Is(err, domain.ErrUnauthorizedAgent):
		return http.StatusForbidden, "UNAUTHORIZED_AGENT"
	case errors.Is(err, domain.ErrUnauthorizedExecutor):
		return http.StatusForbidden, "UNAUTHORIZED_EXECUTOR"
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden, "NOT_OWNER"
	case errors.Is(err, domain.ErrNotAdmin):
		return http.StatusForbidden, "NOT_ADMIN"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE"
	case errors.Is(err, domain.ErrEvidenceHashMismatch):
		return http.StatusBadRequest, "EVIDENCE_HASH_MISMATCH"
	case errors.Is(err, domain.ErrInvalidScore):
		return http.StatusBadRequest, "INVALID_SCORE"
	case errors.Is(err, domain.ErrInvalidLevel):
		return http.StatusBadRequest, "INVALID_LEVEL"
	case errors.Is(err, domain.ErrZeroAgent):
		return http.StatusBadRequest, "ZERO_AGENT"
	case errors.Is(err, domain.ErrInvalidEvidenceHash):
		return http.StatusBadRequest, "INVALID_EVIDENCE_HASH"
	case errors.Is(err, domain.ErrInvalidMarketParams):
		return http.StatusBadRequest, "INVALID_MARKET_PARAMS"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrInvalidReceipt):
		return http.StatusUnprocessableEntity, "INVALID_RECEIPT"
	case errors.Is(err, domain.ErrBlastRadiusExceeded):
		return http.StatusUnprocessableEntity, "BLAST_RADIUS_EXCEEDED"
	case errors.Is(err, domain.ErrPolicyVetoed):
		return http.StatusUnprocessableEntity, "POLICY_VETOED"
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired, "PAYMENT_REQUIRED"
	case errors.Is(err, domain.ErrPaymentUnavailable):
		return http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE"
	case errors.Is(err, domain.ErrAgentUnknown):
		return http.StatusNotFound, "AGENT_UNKNOWN"
	case errors.Is(err, domain.ErrMarketNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrKeystoreMissing):
		return http.StatusServiceUnavailable, "KEYSTORE_MISSING"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func errorDetails(err error) map[string]any {
	var blast *domain.BlastRadiusError
	if errors.As(err, &blast) {
		return map[string]any{"param": blast.Param}
	}
	var veto *domain.PolicyVetoError
	if errors.As(err, &veto) {
		return map[string]any{"codes": veto.Codes}
	}
	return nil
}

func writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	c.JSON(status, errorResponse{
		Code:    code,
		Message: err.Error(),
		Details: errorDetails(err),
	})
}

func writeErrorWithReceipt(c *gin.Context, err error, receipt domain.SignedReceipt) {
	status, code := errorStatus(err)
	details := errorDetails(err)
	if details == nil {
		details = map[string]any{}
	}
	details["receipt"] = receipt
	c.JSON(status, errorResponse{
		Code:    code,
		Message: err.Error(),
		Details: details,
	})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
