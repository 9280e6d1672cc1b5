package usecase

import (
	"errors"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

var resultCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInvalidScore, "invalid_score"},
	{domain.ErrInvalidLevel, "invalid_level"},
	{domain.ErrZeroAgent, "zero_agent"},
	{domain.ErrUnauthorizedAgent, "unauthorized_agent"},
	{domain.ErrDuplicateEvidence, "duplicate_evidence"},
	{domain.ErrInvalidEvidenceHash, "invalid_evidence_hash"},
	{domain.ErrInvalidSignature, "invalid_signature"},
	{domain.ErrAgentUnknown, "agent_unknown"},
	{domain.ErrNotOwner, "not_owner"},
	{domain.ErrNotAdmin, "not_admin"},
	{domain.ErrUnauthorizedExecutor, "unauthorized_executor"},
	{domain.ErrCooldownActive, "cooldown_active"},
	{domain.ErrInvalidReceipt, "invalid_receipt"},
	{domain.ErrBlastRadiusExceeded, "blast_radius_exceeded"},
	{domain.ErrMarketNotFound, "market_not_found"},
	{domain.ErrMarketExists, "market_exists"},
	{domain.ErrInvalidMarketParams, "invalid_market_params"},
	{domain.ErrPolicyVetoed, "policy_vetoed"},
	{domain.ErrInvalidInput, "invalid_input"},
}

// ResultCode labels an operation outcome for metrics and logs.
func ResultCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, rc := range resultCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "error"
}
