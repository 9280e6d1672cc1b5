package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

func TestRoleSets_OwnerSeeded(t *testing.T) {
	rs := NewRoleSets("owner-1")
	ok, err := rs.HasRole(context.Background(), domain.RoleOwner, "owner-1")
	if err != nil || !ok {
		t.Fatalf("expected owner role, got %v %v", ok, err)
	}
	ok, _ = rs.HasRole(context.Background(), domain.RoleAdmin, "owner-1")
	if ok {
		t.Fatal("owner must not implicitly hold admin")
	}
}

func TestRoleSets_GrantRevoke(t *testing.T) {
	ctx := context.Background()
	rs := NewRoleSets("")
	tests := []struct {
		role    domain.Role
		subject string
	}{
		{domain.RoleAgent, "agent-1"},
		{domain.RoleAdmin, "admin-1"},
		{domain.RoleExecutor, "exec-1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.role), func(t *testing.T) {
			if err := rs.Grant(ctx, tt.role, tt.subject); err != nil {
				t.Fatalf("grant: %v", err)
			}
			if ok, _ := rs.HasRole(ctx, tt.role, tt.subject); !ok {
				t.Fatal("expected role after grant")
			}
			if err := rs.Revoke(ctx, tt.role, tt.subject); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			if ok, _ := rs.HasRole(ctx, tt.role, tt.subject); ok {
				t.Fatal("expected no role after revoke")
			}
		})
	}
}

func TestRoleSets_Rejects(t *testing.T) {
	rs := NewRoleSets("")
	if err := rs.Grant(context.Background(), domain.Role("root"), "x"); !errors.Is(err, errInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if err := rs.Grant(context.Background(), domain.RoleAgent, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if ok, _ := rs.HasRole(context.Background(), domain.RoleAgent, ""); ok {
		t.Fatal("empty subject never holds a role")
	}
}

func TestSeed(t *testing.T) {
	rs := NewRoleSets("")
	if err := Seed(context.Background(), rs, domain.RoleExecutor, []string{"a", "b"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := len(rs.Members(domain.RoleExecutor)); got != 2 {
		t.Fatalf("expected 2 executors, got %d", got)
	}
}
