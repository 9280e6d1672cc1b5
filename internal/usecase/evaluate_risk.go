package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
)

const (
	narratorTimeout = 2 * time.Second
	archiveTimeout  = 5 * time.Second
)

type EvaluateRiskRequest struct {
	Asset      string      `json:"asset"`
	ProtocolID string      `json:"protocolId"`
	Mode       domain.Mode `json:"mode"`
	PaymentRef string      `json:"paymentRef,omitempty"`
	Anchor     bool        `json:"anchor"`
}

type EvaluateRiskResult struct {
	Receipt domain.SignedReceipt `json:"receipt"`
	Entry   *domain.LedgerEntry  `json:"entry,omitempty"`
}

// Anchorer is the ledger write the pipeline performs as its own agent.
type Anchorer interface {
	Anchor(ctx context.Context, req domain.AnchorRequest, callerID string) (domain.LedgerEntry, error)
}

// EvaluateRisk runs acquisition, scoring, signing and optional anchoring for
// one asset.
type EvaluateRisk struct {
	Signals  SignalSource
	Scorer   *RiskScorer
	Signer   ReceiptSigner
	Keys     KeyProvider
	Payments domain.PaymentGate
	Narrator domain.AdvisoryNarrator
	Ledger   Anchorer
	Archive  domain.ReceiptArchive
	AgentID  string
	Metrics  Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
	NewRunID func() string
}

func (uc *EvaluateRisk) Execute(ctx context.Context, req EvaluateRiskRequest) (EvaluateRiskResult, error) {
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	if asset == "" {
		return EvaluateRiskResult{}, fmt.Errorf("%w: asset is required", domain.ErrInvalidInput)
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeCheck
	}
	if !mode.Valid() {
		return EvaluateRiskResult{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, req.Mode)
	}
	if mode == domain.ModeDrill {
		if err := uc.requirePayment(ctx, req.PaymentRef); err != nil {
			return EvaluateRiskResult{}, err
		}
	}

	signals := uc.Signals.Acquire(ctx, asset, mode == domain.ModeDrill)
	result := uc.scorer().Score(signals)
	uc.metrics().ObserveEvaluation(mode, result.Level, result.Score)

	unsigned := domain.UnsignedReceipt{
		RunID:      uc.runID(),
		ProtocolID: req.ProtocolID,
		Mode:       mode,
		Result:     result,
		Signals:    signals,
		AgentID:    uc.AgentID,
		CreatedAt:  uc.now().UTC().Truncate(time.Millisecond),
	}
	if mode == domain.ModeDrill {
		unsigned.PaymentRef = req.PaymentRef
	}

	key, err := uc.Keys.Get(ctx)
	if err != nil {
		return EvaluateRiskResult{}, fmt.Errorf("load signing key: %w", err)
	}
	signed, err := uc.Signer.SignReceipt(unsigned, key)
	if err != nil {
		return EvaluateRiskResult{}, fmt.Errorf("sign receipt: %w", err)
	}
	signed.Advisory = uc.advisory(ctx, signals, result)

	uc.archive(ctx, signed)

	out := EvaluateRiskResult{Receipt: signed}
	if !req.Anchor {
		return out, nil
	}
	entry, err := uc.Ledger.Anchor(ctx, domain.AnchorRequest{
		EvidenceHash: signed.EvidenceHash,
		RunIDHash:    crypto.RunIDHash(signed.RunID),
		AgentID:      uc.AgentID,
		Score:        result.Score,
		Level:        int(result.Level),
		IsDrill:      mode == domain.ModeDrill,
	}, uc.AgentID)
	if err != nil {
		return out, fmt.Errorf("anchor receipt: %w", err)
	}
	out.Entry = &entry
	return out, nil
}

func (uc *EvaluateRisk) requirePayment(ctx context.Context, paymentRef string) error {
	if paymentRef == "" {
		return fmt.Errorf("%w: drill requires a payment reference", domain.ErrPaymentRequired)
	}
	if uc.Payments == nil {
		return fmt.Errorf("%w: no payment gate configured", domain.ErrPaymentUnavailable)
	}
	verification, err := uc.Payments.Verify(ctx, paymentRef)
	if err != nil {
		uc.Logger.Warn().Err(err).Str("payment_ref", paymentRef).Msg("payment gate unavailable")
		return fmt.Errorf("%w: %v", domain.ErrPaymentUnavailable, err)
	}
	if !verification.Valid {
		return fmt.Errorf("%w: %s", domain.ErrPaymentRequired, verification.Reason)
	}
	return nil
}

func (uc *EvaluateRisk) advisory(ctx context.Context, signals domain.SignalSet, result domain.RiskScoreResult) string {
	if uc.Narrator == nil {
		return FallbackAdvisory(signals, result)
	}
	nctx, cancel := context.WithTimeout(ctx, narratorTimeout)
	defer cancel()
	text, err := uc.Narrator.Narrate(nctx, signals, result)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			uc.Logger.Debug().Err(err).Msg("narrator failed, using fallback advisory")
		}
		return FallbackAdvisory(signals, result)
	}
	return text
}

func (uc *EvaluateRisk) archive(ctx context.Context, receipt domain.SignedReceipt) {
	if uc.Archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	go func() {
		defer cancel()
		if err := uc.Archive.Store(actx, receipt); err != nil {
			uc.Logger.Warn().Err(err).Str("evidence_hash", receipt.EvidenceHash).Msg("archive receipt failed")
		}
	}()
}

// FallbackAdvisory depends only on level and divergence.
func FallbackAdvisory(signals domain.SignalSet, result domain.RiskScoreResult) string {
	return fmt.Sprintf("%s risk: oracle/dex divergence %.2f%%", result.Level, signals.DivergencePct)
}

func (uc *EvaluateRisk) scorer() *RiskScorer {
	if uc.Scorer == nil {
		return NewRiskScorer()
	}
	return uc.Scorer
}

func (uc *EvaluateRisk) metrics() Metrics {
	if uc.Metrics == nil {
		return nopMetrics{}
	}
	return uc.Metrics
}

func (uc *EvaluateRisk) now() time.Time {
	if uc.Now == nil {
		return time.Now()
	}
	return uc.Now()
}

func (uc *EvaluateRisk) runID() string {
	if uc.NewRunID == nil {
		return uuid.NewString()
	}
	return uc.NewRunID()
}
