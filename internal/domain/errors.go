package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	ErrNonCanonicalizable        = errors.New("non-canonicalizable value")
	ErrSignalProviderUnavailable = errors.New("signal provider unavailable")

	ErrInvalidScore         = errors.New("invalid score")
	ErrInvalidLevel         = errors.New("invalid level")
	ErrZeroAgent            = errors.New("zero agent")
	ErrUnauthorizedAgent    = errors.New("unauthorized agent")
	ErrDuplicateEvidence    = errors.New("duplicate evidence")
	ErrInvalidEvidenceHash  = errors.New("invalid evidence hash")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrEvidenceHashMismatch = errors.New("evidence hash mismatch")
	ErrNotOwner             = errors.New("not owner")
	ErrAgentUnknown         = errors.New("agent unknown")

	ErrNotAdmin             = errors.New("not admin")
	ErrUnauthorizedExecutor = errors.New("unauthorized executor")
	ErrCooldownActive       = errors.New("cooldown active")
	ErrInvalidReceipt       = errors.New("invalid receipt")
	ErrBlastRadiusExceeded  = errors.New("blast radius exceeded")
	ErrMarketNotFound       = errors.New("market not found")
	ErrMarketExists         = errors.New("market already initialized")
	ErrInvalidMarketParams  = errors.New("invalid market params")
	ErrPolicyVetoed         = errors.New("policy vetoed")

	ErrPaymentRequired    = errors.New("payment required")
	ErrPaymentUnavailable = errors.New("payment gate unavailable")
	ErrKeystoreMissing    = errors.New("keystore missing")
)

// BlastRadiusError names the parameter whose proposed value left its bounds.
type BlastRadiusError struct {
	Param string
}

func (e *BlastRadiusError) Error() string {
	if e == nil {
		return ""
	}
	return ErrBlastRadiusExceeded.Error() + ": " + e.Param
}

func (e *BlastRadiusError) Unwrap() error {
	return ErrBlastRadiusExceeded
}

// PolicyVetoError carries the deny codes returned by the rego policy.
type PolicyVetoError struct {
	Codes []string
}

func (e *PolicyVetoError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Codes) == 0 {
		return ErrPolicyVetoed.Error()
	}
	return ErrPolicyVetoed.Error() + ": " + strings.Join(e.Codes, ",")
}

func (e *PolicyVetoError) Unwrap() error {
	return ErrPolicyVetoed
}
