package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// RoleRepository persists role sets so grants survive restarts.
type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) HasRole(ctx context.Context, role domain.Role, subject string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	if subject == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RoleGrantModel{}).
		Where("role = ? AND subject = ?", string(role), subject).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RoleRepository) Grant(ctx context.Context, role domain.Role, subject string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := RoleGrantModel{Role: string(role), Subject: subject, GrantedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
}

func (r *RoleRepository) Revoke(ctx context.Context, role domain.Role, subject string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).
		Where("role = ? AND subject = ?", string(role), subject).
		Delete(&RoleGrantModel{}).Error
}

var _ domain.AccessControl = (*RoleRepository)(nil)
