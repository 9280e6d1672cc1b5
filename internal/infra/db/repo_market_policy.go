package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type MarketPolicyRepository struct {
	db *gorm.DB
}

func NewMarketPolicyRepository(db *gorm.DB) *MarketPolicyRepository {
	return &MarketPolicyRepository{db: db}
}

func (r *MarketPolicyRepository) Create(ctx context.Context, policy domain.MarketPolicy) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := toMarketPolicyModel(policy)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMarketExists
	}
	return nil
}

func (r *MarketPolicyRepository) Get(ctx context.Context, market string) (*domain.MarketPolicy, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model MarketPolicyModel
	err := r.db.WithContext(ctx).Where("market = ?", market).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, err
	}
	return fromMarketPolicyModel(model)
}

// Update only touches the fields enforcement may change, and only while
// last_update_at still holds prevUpdateAt.
func (r *MarketPolicyRepository) Update(ctx context.Context, policy domain.MarketPolicy, prevUpdateAt *time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	tx := r.db.WithContext(ctx).
		Model(&MarketPolicyModel{}).
		Where("market = ?", policy.Market)
	if prevUpdateAt == nil {
		tx = tx.Where("last_update_at IS NULL")
	} else {
		tx = tx.Where("last_update_at = ?", prevUpdateAt.UTC())
	}
	result := tx.Updates(map[string]any{
		"is_frozen":      policy.IsFrozen,
		"last_update_at": policy.LastUpdateAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&MarketPolicyModel{}).
		Where("market = ?", policy.Market).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrMarketNotFound
	}
	return domain.ErrCooldownActive
}

func toMarketPolicyModel(p domain.MarketPolicy) MarketPolicyModel {
	return MarketPolicyModel{
		Market:          p.Market,
		MaxLTV:          p.MaxLTV,
		MinLTV:          p.MinLTV,
		MaxCap:          formatCap(p.MaxCap),
		IsFrozen:        p.IsFrozen,
		LastUpdateAt:    p.LastUpdateAt,
		CooldownSeconds: p.CooldownSeconds,
		CreatedAt:       p.CreatedAt.UTC(),
	}
}

func fromMarketPolicyModel(m MarketPolicyModel) (*domain.MarketPolicy, error) {
	maxCap, err := parseCap(m.MaxCap)
	if err != nil {
		return nil, err
	}
	p := &domain.MarketPolicy{
		Market:          m.Market,
		MaxLTV:          m.MaxLTV,
		MinLTV:          m.MinLTV,
		MaxCap:          maxCap,
		IsFrozen:        m.IsFrozen,
		CooldownSeconds: m.CooldownSeconds,
		CreatedAt:       m.CreatedAt.UTC(),
	}
	if m.LastUpdateAt != nil {
		t := m.LastUpdateAt.UTC()
		p.LastUpdateAt = &t
	}
	return p, nil
}

var _ domain.MarketPolicyRepository = (*MarketPolicyRepository)(nil)
