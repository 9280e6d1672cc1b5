package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const rolePrefix = "rf:role:"

var errInvalidRole = errors.New("invalid role")

// RoleRepository stores one redis set per role.
type RoleRepository struct {
	client redis.UniversalClient
}

func NewRoleRepository(client redis.UniversalClient) *RoleRepository {
	return &RoleRepository{client: client}
}

func roleKey(role domain.Role) string {
	return rolePrefix + string(role)
}

func (r *RoleRepository) HasRole(ctx context.Context, role domain.Role, subject string) (bool, error) {
	if r == nil || r.client == nil {
		return false, errRedisUnavailable
	}
	if subject == "" {
		return false, nil
	}
	return r.client.SIsMember(ctx, roleKey(role), subject).Result()
}

func (r *RoleRepository) Grant(ctx context.Context, role domain.Role, subject string) error {
	if r == nil || r.client == nil {
		return errRedisUnavailable
	}
	if !role.Valid() {
		return errInvalidRole
	}
	if subject == "" {
		return domain.ErrInvalidInput
	}
	return r.client.SAdd(ctx, roleKey(role), subject).Err()
}

func (r *RoleRepository) Revoke(ctx context.Context, role domain.Role, subject string) error {
	if r == nil || r.client == nil {
		return errRedisUnavailable
	}
	if !role.Valid() {
		return errInvalidRole
	}
	return r.client.SRem(ctx, roleKey(role), subject).Err()
}

var _ domain.AccessControl = (*RoleRepository)(nil)
