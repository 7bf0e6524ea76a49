package store

import (
	"context"
	"errors"
	"testing"

	"mymasternode.org/internal/auth"
)

func TestMemoryUsernameUniquenessIsCaseInsensitive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateUser(ctx, &auth.User{Username: "Alice", PasswordHash: "h", RoleID: auth.RoleIDUser}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := m.CreateUser(ctx, &auth.User{Username: "alice", PasswordHash: "h", RoleID: auth.RoleIDUser})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	bob := &auth.User{Username: "bob", PasswordHash: "h", RoleID: auth.RoleIDUser}
	if err := m.CreateUser(ctx, bob); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	rename := "ALICE"
	err = m.UpdateUser(ctx, bob.ID, auth.UserUpdate{Username: &rename})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("rename onto taken name: expected ErrConflict, got %v", err)
	}
}

func TestMemoryDeleteDropsScopeGrants(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u := &auth.User{Username: "alice", PasswordHash: "h", RoleID: auth.RoleIDUser}
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := m.AddUserScopes(ctx, u.ID, []int64{1, 2}); err != nil {
		t.Fatalf("AddUserScopes: %v", err)
	}
	if err := m.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	// Recreating reuses nothing: a fresh user must not inherit grants.
	again := &auth.User{Username: "alice", PasswordHash: "h", RoleID: auth.RoleIDUser}
	if err := m.CreateUser(ctx, again); err != nil {
		t.Fatalf("CreateUser again: %v", err)
	}
	got, err := m.GetUser(ctx, again.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if len(got.Scopes) != 0 {
		t.Fatalf("unexpected inherited scopes: %+v", got.Scopes)
	}
}

func TestMemoryRoleResolution(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u := &auth.User{Username: "root", PasswordHash: "h", RoleID: auth.RoleIDAdministrator}
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	got, err := m.FindUserByUsername(ctx, "ROOT")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if got.RoleName != auth.RoleAdministrator {
		t.Fatalf("role not resolved: %+v", got)
	}
}
