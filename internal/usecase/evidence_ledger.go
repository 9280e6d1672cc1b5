package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
)

type EvidenceLedgerDeps struct {
	Repo      domain.LedgerRepository
	Access    domain.AccessControl
	Directory domain.AgentDirectory
	Verifier  AnchorVerifier
	Publisher domain.EventPublisher
	Metrics   Metrics
	Logger    zerolog.Logger
	Now       func() time.Time
}

// EvidenceLedger is the append-only store of anchored receipts.
type EvidenceLedger struct {
	repo      domain.LedgerRepository
	access    domain.AccessControl
	directory domain.AgentDirectory
	verifier  AnchorVerifier
	publisher domain.EventPublisher
	metrics   Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEvidenceLedger(deps EvidenceLedgerDeps) *EvidenceLedger {
	l := &EvidenceLedger{
		repo:      deps.Repo,
		access:    deps.Access,
		directory: deps.Directory,
		verifier:  deps.Verifier,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if l.publisher == nil {
		l.publisher = nopPublisher{}
	}
	if l.metrics == nil {
		l.metrics = nopMetrics{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Anchor records req on behalf of callerID. Checks run in a fixed order:
// score, level, agent, caller, hash format, then insert-if-absent.
func (l *EvidenceLedger) Anchor(ctx context.Context, req domain.AnchorRequest, callerID string) (domain.LedgerEntry, error) {
	entry, err := l.anchor(ctx, req, callerID)
	l.metrics.ObserveAnchor(ResultCode(err))
	if err != nil {
		l.logger.Info().
			Str("evidence_hash", req.EvidenceHash).
			Str("caller", callerID).
			Str("code", ResultCode(err)).
			Msg("anchor rejected")
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// AnchorSigned anchors a request authorized by the claimed agent's signature
// instead of a privileged caller.
func (l *EvidenceLedger) AnchorSigned(ctx context.Context, req domain.SignedAnchorRequest) (domain.LedgerEntry, error) {
	if err := l.verifyAnchorSignature(ctx, req); err != nil {
		l.metrics.ObserveAnchor(ResultCode(err))
		l.logger.Info().
			Str("evidence_hash", req.EvidenceHash).
			Str("agent", req.AgentID).
			Str("code", ResultCode(err)).
			Msg("signed anchor rejected")
		return domain.LedgerEntry{}, err
	}
	// a valid signature makes the claimed agent the caller
	return l.Anchor(ctx, req.AnchorRequest, req.AgentID)
}

func (l *EvidenceLedger) verifyAnchorSignature(ctx context.Context, req domain.SignedAnchorRequest) error {
	if l.directory == nil || l.verifier == nil {
		return fmt.Errorf("%w: signed anchoring not configured", domain.ErrInvalidSignature)
	}
	if IsZeroAgent(req.AgentID) {
		return domain.ErrZeroAgent
	}
	record, err := l.directory.Resolve(ctx, req.AgentID)
	if err != nil {
		return err
	}
	if record.AgentID != req.AgentID {
		return fmt.Errorf("%w: directory returned %s", domain.ErrInvalidSignature, record.AgentID)
	}
	pub, err := crypto.DecodePublicKeyHex(record.PublicKeyHex)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return l.verifier.VerifyAnchorRequest(req, pub)
}

func (l *EvidenceLedger) anchor(ctx context.Context, req domain.AnchorRequest, callerID string) (domain.LedgerEntry, error) {
	if req.Score < 0 || req.Score > 100 {
		return domain.LedgerEntry{}, domain.ErrInvalidScore
	}
	if !domain.RiskLevel(req.Level).Valid() {
		return domain.LedgerEntry{}, domain.ErrInvalidLevel
	}
	if IsZeroAgent(req.AgentID) {
		return domain.LedgerEntry{}, domain.ErrZeroAgent
	}
	ok, err := l.access.HasRole(ctx, domain.RoleAgent, callerID)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if !ok {
		return domain.LedgerEntry{}, domain.ErrUnauthorizedAgent
	}
	if !crypto.ValidEvidenceHash(req.EvidenceHash) {
		return domain.LedgerEntry{}, domain.ErrInvalidEvidenceHash
	}
	if !crypto.ValidEvidenceHash(req.RunIDHash) {
		return domain.LedgerEntry{}, fmt.Errorf("%w: run id hash", domain.ErrInvalidInput)
	}

	entry := domain.LedgerEntry{
		EvidenceHash: req.EvidenceHash,
		RunIDHash:    req.RunIDHash,
		AgentID:      req.AgentID,
		Score:        req.Score,
		Level:        req.Level,
		IsDrill:      req.IsDrill,
		AnchoredAt:   l.now().UTC().Truncate(time.Millisecond),
	}
	if err := l.repo.Insert(ctx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}

	l.notify(ctx, entry)
	return entry, nil
}

func (l *EvidenceLedger) notify(ctx context.Context, entry domain.LedgerEntry) {
	event := domain.Event{
		Type:       domain.EventReceiptAnchored,
		Key:        entry.EvidenceHash,
		OccurredAt: entry.AnchoredAt,
		Payload: domain.ReceiptAnchored{
			EvidenceHash: entry.EvidenceHash,
			RunIDHash:    entry.RunIDHash,
			AgentID:      entry.AgentID,
			Score:        entry.Score,
			Level:        entry.Level,
			IsDrill:      entry.IsDrill,
			AnchoredAt:   entry.AnchoredAt,
		},
	}
	err := l.publisher.Publish(ctx, event)
	l.metrics.ObservePublish(event.Type, ResultCode(err))
	if err != nil {
		l.logger.Warn().Err(err).Str("evidence_hash", entry.EvidenceHash).Msg("publish ReceiptAnchored failed")
	}
}

// Get fails with ErrNotFound for an unknown hash.
func (l *EvidenceLedger) Get(ctx context.Context, evidenceHash string) (*domain.LedgerEntry, error) {
	if !crypto.ValidEvidenceHash(evidenceHash) {
		return nil, domain.ErrInvalidEvidenceHash
	}
	return l.repo.Get(ctx, evidenceHash)
}

func (l *EvidenceLedger) Exists(ctx context.Context, evidenceHash string) (bool, error) {
	_, err := l.Get(ctx, evidenceHash)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidEvidenceHash) {
		return false, nil
	}
	return false, err
}

// Verify reports whether the entry exists with score >= minScore.
func (l *EvidenceLedger) Verify(ctx context.Context, evidenceHash string, minScore int) (bool, error) {
	entry, err := l.Get(ctx, evidenceHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidEvidenceHash) {
			return false, nil
		}
		return false, err
	}
	return entry.Score >= minScore, nil
}

func (l *EvidenceLedger) AuthorizeAgent(ctx context.Context, agentID, callerID string) error {
	if err := l.requireOwner(ctx, callerID); err != nil {
		return err
	}
	if IsZeroAgent(agentID) {
		return domain.ErrZeroAgent
	}
	return l.access.Grant(ctx, domain.RoleAgent, agentID)
}

func (l *EvidenceLedger) RevokeAgent(ctx context.Context, agentID, callerID string) error {
	if err := l.requireOwner(ctx, callerID); err != nil {
		return err
	}
	return l.access.Revoke(ctx, domain.RoleAgent, agentID)
}

func (l *EvidenceLedger) IsAuthorized(ctx context.Context, agentID string) (bool, error) {
	return l.access.HasRole(ctx, domain.RoleAgent, agentID)
}

func (l *EvidenceLedger) requireOwner(ctx context.Context, callerID string) error {
	ok, err := l.access.HasRole(ctx, domain.RoleOwner, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotOwner
	}
	return nil
}

// IsZeroAgent reports an empty id or a 0x address made only of zeros.
func IsZeroAgent(agentID string) bool {
	id := strings.TrimSpace(agentID)
	if id == "" {
		return true
	}
	if !strings.HasPrefix(id, "0x") && !strings.HasPrefix(id, "0X") {
		return false
	}
	return strings.Trim(id[2:], "0") == ""
}
