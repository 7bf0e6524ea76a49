package auth

import "context"

// Store is the credential store contract required by the auth subsystem.
// Implementations map their native failure modes onto the sentinel errors:
// duplicate unique keys become ErrConflict, missing rows become ErrNotFound.
//
// Username lookups are case-insensitive; uniqueness is enforced on the
// lowercased username.
type Store interface {
	// CreateUser persists a new user and fills in the generated id.
	// The PasswordHash field must already be populated.
	CreateUser(ctx context.Context, u *User) error
	// GetUser loads a user by id with role name and scope grants resolved.
	GetUser(ctx context.Context, id int64) (*User, error)
	// FindUserByUsername loads a user by case-insensitive username match
	// with role name and scope grants resolved.
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	// ListUsers returns all users; scope grants are resolved only when
	// includeScopes is set.
	ListUsers(ctx context.Context, includeScopes bool) ([]*User, error)
	// UpdateUser applies the non-nil fields of upd. The Password field,
	// when set, must carry an already-derived hash.
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) error
	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// DeleteUser removes the user and, via the schema, its scope grants.
	DeleteUser(ctx context.Context, id int64) error

	// GetRole loads a role by id.
	GetRole(ctx context.Context, id int64) (*Role, error)
	// ScopesByIDs resolves the given scope ids; ids without a matching
	// row are simply absent from the result.
	ScopesByIDs(ctx context.Context, ids []int64) ([]Scope, error)

	// AddUserScopes inserts one join row per scope id, skipping rows that
	// already exist.
	AddUserScopes(ctx context.Context, userID int64, scopeIDs []int64) error
	// RemoveUserScopes deletes the join rows for the given scope ids in a
	// single commit; absent rows are ignored.
	RemoveUserScopes(ctx context.Context, userID int64, scopeIDs []int64) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
