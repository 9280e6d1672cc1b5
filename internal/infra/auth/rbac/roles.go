package rbac

import (
	"context"
	"errors"
	"sync"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

var errInvalidRole = errors.New("invalid role")

// RoleSets holds one subject set per role.
type RoleSets struct {
	mu    sync.RWMutex
	roles map[domain.Role]map[string]struct{}
}

// NewRoleSets seeds the owner. The owner is the only subject that can
// authorize agents or grant admin and executor roles.
func NewRoleSets(owner string) *RoleSets {
	rs := &RoleSets{roles: make(map[domain.Role]map[string]struct{})}
	if owner != "" {
		rs.roles[domain.RoleOwner] = map[string]struct{}{owner: {}}
	}
	return rs
}

func (r *RoleSets) HasRole(_ context.Context, role domain.Role, subject string) (bool, error) {
	if subject == "" {
		return false, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[role][subject]
	return ok, nil
}

func (r *RoleSets) Grant(_ context.Context, role domain.Role, subject string) error {
	if !role.Valid() {
		return errInvalidRole
	}
	if subject == "" {
		return domain.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.roles[role]
	if !ok {
		set = make(map[string]struct{})
		r.roles[role] = set
	}
	set[subject] = struct{}{}
	return nil
}

func (r *RoleSets) Revoke(_ context.Context, role domain.Role, subject string) error {
	if !role.Valid() {
		return errInvalidRole
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles[role], subject)
	return nil
}

// Members lists subjects holding role, in no particular order.
func (r *RoleSets) Members(role domain.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.roles[role]))
	for subject := range r.roles[role] {
		out = append(out, subject)
	}
	return out
}

// Seed grants every listed subject in bulk, typically from the bootstrap file.
func Seed(ctx context.Context, ac domain.AccessControl, role domain.Role, subjects []string) error {
	for _, subject := range subjects {
		if err := ac.Grant(ctx, role, subject); err != nil {
			return err
		}
	}
	return nil
}

var _ domain.AccessControl = (*RoleSets)(nil)
