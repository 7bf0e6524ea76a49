package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mymasternode.org/internal/obs"
)

// BootstrapResult describes what EnsureAdmin did.
type BootstrapResult int

const (
	// BootstrapSkipped means no admin account is configured.
	BootstrapSkipped BootstrapResult = iota
	// BootstrapUnchanged means the account exists and the stored hash
	// already verifies against the configured password.
	BootstrapUnchanged
	// BootstrapCreated means the account was created.
	BootstrapCreated
	// BootstrapUpdated means the stored hash was replaced.
	BootstrapUpdated
)

func (r BootstrapResult) String() string {
	switch r {
	case BootstrapCreated:
		return "created"
	case BootstrapUpdated:
		return "updated"
	case BootstrapUnchanged:
		return "unchanged"
	default:
		return "skipped"
	}
}

// EnsureAdmin reconciles the configured administrator account once at
// startup, before the listener opens. It is idempotent: an unchanged
// configuration performs zero writes on restart. The hash is rewritten only
// when missing, failing verification, or produced with weaker parameters
// than currently configured.
//
// Callers own the configured plaintext password and must clear it on every
// exit path; EnsureAdmin never retains it.
func EnsureAdmin(ctx context.Context, store Store, hasher *Hasher, username, password string) (BootstrapResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		obs.Warn("no admin user configured, skipping bootstrap", nil)
		return BootstrapSkipped, nil
	}
	if strings.TrimSpace(password) == "" {
		obs.Warn("admin password must not be empty, skipping bootstrap", map[string]any{
			"username": username,
		})
		return BootstrapSkipped, nil
	}

	user, err := store.FindUserByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		hash, err := hasher.Hash(password)
		if err != nil {
			return BootstrapSkipped, fmt.Errorf("hash admin password: %w", err)
		}
		user = &User{Username: username, PasswordHash: hash, RoleID: RoleIDAdministrator}
		if err := store.CreateUser(ctx, user); err != nil {
			return BootstrapSkipped, fmt.Errorf("create admin user: %w", err)
		}
		obs.Info("admin user created", map[string]any{"user_id": user.ID})
		return BootstrapCreated, nil
	case err != nil:
		return BootstrapSkipped, fmt.Errorf("lookup admin user: %w", err)
	}

	if user.PasswordHash != "" && hasher.Verify(user.PasswordHash, password) == VerifySuccess {
		obs.Info("admin user already up to date", map[string]any{"user_id": user.ID})
		return BootstrapUnchanged, nil
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return BootstrapSkipped, fmt.Errorf("hash admin password: %w", err)
	}
	if err := store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return BootstrapSkipped, fmt.Errorf("update admin password: %w", err)
	}
	obs.Info("admin password updated", map[string]any{"user_id": user.ID})
	return BootstrapUpdated, nil
}
