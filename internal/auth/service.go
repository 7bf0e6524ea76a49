package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mymasternode.org/internal/obs"
)

// Service orchestrates credential verification, token issuance and user
// management on top of a Store. All methods are safe for concurrent use;
// the service keeps no per-request state.
type Service struct {
	store  Store
	hasher *Hasher
	issuer *Issuer
}

// NewService wires the authentication flow together.
func NewService(store Store, hasher *Hasher, issuer *Issuer) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if hasher == nil {
		return nil, errors.New("auth: hasher is required")
	}
	if issuer == nil {
		return nil, errors.New("auth: issuer is required")
	}
	return &Service{store: store, hasher: hasher, issuer: issuer}, nil
}

// Login verifies credentials and issues a bearer token. Unknown usernames
// and wrong passwords are indistinguishable to the caller. A verified user
// without a role is a server fault, not a client error.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	switch s.hasher.Verify(user.PasswordHash, password) {
	case VerifyFailed:
		return "", ErrInvalidCredentials
	case VerifySuccessRehash:
		// Detected and logged; persisting the upgraded hash during login
		// is an explicit extension point, not done here.
		obs.Warn("password hash uses deprecated parameters", map[string]any{
			"user_id": user.ID,
		})
	}

	if strings.TrimSpace(user.RoleName) == "" {
		return "", fmt.Errorf("%w: user %d has no role", ErrInvariant, user.ID)
	}

	token, err := s.issuer.Issue(user.Username, user.RoleName, user.ScopeNames())
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Register creates a user with the default role. Duplicate usernames yield
// ErrConflict, raced duplicates included: the store's unique constraint is
// the final arbiter, not the pre-check.
func (s *Service) Register(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return 0, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	if _, err := s.store.FindUserByUsername(ctx, username); err == nil {
		return 0, fmt.Errorf("%w: username is taken", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	user := &User{Username: username, PasswordHash: hash, RoleID: RoleIDUser}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return 0, fmt.Errorf("%w: username is taken", ErrConflict)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return user.ID, nil
}

// CreateUser creates a user with an explicit role. A nil roleID falls back
// to the default role; an unknown role is a validation error.
func (s *Service) CreateUser(ctx context.Context, username, password string, roleID *int64) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}

	role := RoleIDUser
	if roleID != nil {
		role = *roleID
		if _, err := s.store.GetRole(ctx, role); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: role_id %d does not exist", ErrInvalidInput, role)
			}
			return nil, fmt.Errorf("lookup role: %w", err)
		}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{Username: username, PasswordHash: hash, RoleID: role}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: username is taken", ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUser loads a user with role name and scope grants resolved.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers returns every user, with scope grants when requested.
func (s *Service) ListUsers(ctx context.Context, includeScopes bool) ([]*User, error) {
	return s.store.ListUsers(ctx, includeScopes)
}

// UpdateUser applies a partial update. A new password is hashed before it
// reaches the store; a new role must exist.
func (s *Service) UpdateUser(ctx context.Context, id int64, upd UserUpdate) error {
	if upd.Username == nil && upd.Password == nil && upd.RoleID == nil {
		return fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if upd.Username != nil {
		trimmed := strings.TrimSpace(*upd.Username)
		if trimmed == "" {
			return fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
		}
		upd.Username = &trimmed
	}
	if upd.Password != nil {
		if strings.TrimSpace(*upd.Password) == "" {
			return fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		upd.Password = &hash
	}
	if upd.RoleID != nil {
		if _, err := s.store.GetRole(ctx, *upd.RoleID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: role_id %d does not exist", ErrInvalidInput, *upd.RoleID)
			}
			return fmt.Errorf("lookup role: %w", err)
		}
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// DeleteUser removes a user and its scope grants.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}

// ScopeChange reports the outcome of a scope grant operation.
type ScopeChange struct {
	// Added holds the scope ids actually inserted.
	Added []int64
	// NoOp is set when every requested scope was already granted.
	NoOp bool
}

// AddScopes grants the requested scopes to a user. Every requested id must
// exist; otherwise nothing is granted and the invalid ids are reported. A
// request that is a subset of the current grants is a no-op. Only the delta
// is inserted, so repeating a grant never duplicates join rows.
func (s *Service) AddScopes(ctx context.Context, userID int64, scopeIDs []int64) (ScopeChange, error) {
	requested := dedupeIDs(scopeIDs)
	if len(requested) == 0 {
		return ScopeChange{}, fmt.Errorf("%w: no scopes provided", ErrInvalidInput)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return ScopeChange{}, err
	}

	known, err := s.store.ScopesByIDs(ctx, requested)
	if err != nil {
		return ScopeChange{}, fmt.Errorf("lookup scopes: %w", err)
	}
	if len(known) != len(requested) {
		knownSet := make(map[int64]struct{}, len(known))
		for _, sc := range known {
			knownSet[sc.ID] = struct{}{}
		}
		var invalid []string
		for _, id := range requested {
			if _, ok := knownSet[id]; !ok {
				invalid = append(invalid, strconv.FormatInt(id, 10))
			}
		}
		return ScopeChange{}, fmt.Errorf("%w: unknown scope ids: %s",
			ErrInvalidInput, strings.Join(invalid, ", "))
	}

	held := make(map[int64]struct{}, len(user.Scopes))
	for _, sc := range user.Scopes {
		held[sc.ID] = struct{}{}
	}
	var delta []int64
	for _, id := range requested {
		if _, ok := held[id]; !ok {
			delta = append(delta, id)
		}
	}
	if len(delta) == 0 {
		return ScopeChange{NoOp: true}, nil
	}

	if err := s.store.AddUserScopes(ctx, userID, delta); err != nil {
		return ScopeChange{}, fmt.Errorf("add scopes: %w", err)
	}
	return ScopeChange{Added: delta}, nil
}

// RemoveScopes revokes the requested scopes from a user. A user holding no
// scopes is a no-op; requested ids that are not currently granted are
// skipped with a log line. The removal commits once.
func (s *Service) RemoveScopes(ctx context.Context, userID int64, scopeIDs []int64) error {
	requested := dedupeIDs(scopeIDs)
	if len(requested) == 0 {
		return fmt.Errorf("%w: no scopes provided", ErrInvalidInput)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(user.Scopes) == 0 {
		return nil
	}

	held := make(map[int64]struct{}, len(user.Scopes))
	for _, sc := range user.Scopes {
		held[sc.ID] = struct{}{}
	}
	var revoke []int64
	for _, id := range requested {
		if _, ok := held[id]; ok {
			revoke = append(revoke, id)
			continue
		}
		obs.Info("skipping removal of scope not granted to user", map[string]any{
			"user_id":  userID,
			"scope_id": id,
		})
	}
	if len(revoke) == 0 {
		return nil
	}

	if err := s.store.RemoveUserScopes(ctx, userID, revoke); err != nil {
		return fmt.Errorf("remove scopes: %w", err)
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
