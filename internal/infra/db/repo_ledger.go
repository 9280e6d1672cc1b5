package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Insert relies on the primary key: a conflicting row is left untouched and
// zero affected rows means the hash was already anchored.
func (r *LedgerRepository) Insert(ctx context.Context, entry domain.LedgerEntry) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := LedgerEntryModel{
		EvidenceHash: entry.EvidenceHash,
		RunIDHash:    entry.RunIDHash,
		AgentID:      entry.AgentID,
		Score:        entry.Score,
		Level:        entry.Level,
		IsDrill:      entry.IsDrill,
		AnchoredAt:   entry.AnchoredAt.UTC(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrDuplicateEvidence
	}
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, evidenceHash string) (*domain.LedgerEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("evidence_hash = ?", evidenceHash).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &domain.LedgerEntry{
		EvidenceHash: model.EvidenceHash,
		RunIDHash:    model.RunIDHash,
		AgentID:      model.AgentID,
		Score:        model.Score,
		Level:        model.Level,
		IsDrill:      model.IsDrill,
		AnchoredAt:   model.AnchoredAt.UTC(),
	}, nil
}

var _ domain.LedgerRepository = (*LedgerRepository)(nil)
