package domain

import "context"

type Role string

const (
	RoleOwner    Role = "owner"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	RoleExecutor Role = "executor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAgent, RoleAdmin, RoleExecutor:
		return true
	default:
		return false
	}
}

// Principal is the authenticated caller. Subject is the caller id checked
// against role sets.
type Principal struct {
	Subject   string
	RawClaims map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

// AccessControl holds the role sets consulted at the start of every mutating
// ledger and guard operation.
type AccessControl interface {
	HasRole(ctx context.Context, role Role, subject string) (bool, error)
	Grant(ctx context.Context, role Role, subject string) error
	Revoke(ctx context.Context, role Role, subject string) error
}
