// Package store holds credential store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"mymasternode.org/internal/auth"
)

// Memory implements auth.Store with in-process concurrency safety. It
// mirrors the seeded schema (default roles and the user.* scopes) and backs
// handler and service tests; production deployments use the pg implementation.
type Memory struct {
	mu         sync.RWMutex
	users      map[int64]*auth.User
	roles      map[int64]auth.Role
	scopes     map[int64]auth.Scope
	userScopes map[int64]map[int64]struct{} // user id -> scope id set
	nextUserID int64
}

var _ auth.Store = (*Memory)(nil)

// NewMemory creates a store pre-populated with the seeded roles and scopes.
func NewMemory() *Memory {
	return &Memory{
		users: make(map[int64]*auth.User),
		roles: map[int64]auth.Role{
			auth.RoleIDUser:          {ID: auth.RoleIDUser, Name: "user"},
			auth.RoleIDAdministrator: {ID: auth.RoleIDAdministrator, Name: auth.RoleAdministrator},
		},
		scopes: map[int64]auth.Scope{
			1: {ID: 1, Name: auth.ScopeUserRead},
			2: {ID: 2, Name: auth.ScopeUserWrite},
			3: {ID: 3, Name: auth.ScopeUserCreate},
			4: {ID: 4, Name: auth.ScopeUserDelete},
		},
		userScopes: make(map[int64]map[int64]struct{}),
	}
}

// AddScope registers an additional scope row. Intended for tests.
func (m *Memory) AddScope(s auth.Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[s.ID] = s
}

func (m *Memory) CreateUser(ctx context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lowered := strings.ToLower(u.Username)
	for _, existing := range m.users {
		if strings.ToLower(existing.Username) == lowered {
			return auth.ErrConflict
		}
	}
	if _, ok := m.roles[u.RoleID]; !ok {
		return auth.ErrNotFound
	}

	m.nextUserID++
	u.ID = m.nextUserID
	stored := *u
	stored.Scopes = nil
	m.users[u.ID] = &stored
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return m.resolve(u), nil
}

func (m *Memory) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowered := strings.ToLower(strings.TrimSpace(username))
	for _, u := range m.users {
		if strings.ToLower(u.Username) == lowered {
			return m.resolve(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Memory) ListUsers(ctx context.Context, includeScopes bool) ([]*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*auth.User, 0, len(m.users))
	for _, u := range m.users {
		resolved := m.resolve(u)
		if !includeScopes {
			resolved.Scopes = nil
		}
		out = append(out, resolved)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateUser(ctx context.Context, id int64, upd auth.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if upd.Username != nil {
		lowered := strings.ToLower(*upd.Username)
		for otherID, other := range m.users {
			if otherID != id && strings.ToLower(other.Username) == lowered {
				return auth.ErrConflict
			}
		}
		u.Username = *upd.Username
	}
	if upd.Password != nil {
		u.PasswordHash = *upd.Password
	}
	if upd.RoleID != nil {
		if _, ok := m.roles[*upd.RoleID]; !ok {
			return auth.ErrNotFound
		}
		u.RoleID = *upd.RoleID
	}
	return nil
}

func (m *Memory) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *Memory) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.users, id)
	delete(m.userScopes, id)
	return nil
}

func (m *Memory) GetRole(ctx context.Context, id int64) (*auth.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	role, ok := m.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := role
	return &out, nil
}

func (m *Memory) ScopesByIDs(ctx context.Context, ids []int64) ([]auth.Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []auth.Scope
	for _, id := range ids {
		if s, ok := m.scopes[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) AddUserScopes(ctx context.Context, userID int64, scopeIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return auth.ErrNotFound
	}
	grants, ok := m.userScopes[userID]
	if !ok {
		grants = make(map[int64]struct{})
		m.userScopes[userID] = grants
	}
	for _, id := range scopeIDs {
		grants[id] = struct{}{}
	}
	return nil
}

func (m *Memory) RemoveUserScopes(ctx context.Context, userID int64, scopeIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return auth.ErrNotFound
	}
	grants := m.userScopes[userID]
	for _, id := range scopeIDs {
		delete(grants, id)
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// resolve returns a copy with role name and sorted scope grants attached.
// Callers must hold at least the read lock.
func (m *Memory) resolve(u *auth.User) *auth.User {
	out := *u
	if role, ok := m.roles[u.RoleID]; ok {
		out.RoleName = role.Name
	}
	out.Scopes = nil
	for id := range m.userScopes[u.ID] {
		if s, ok := m.scopes[id]; ok {
			out.Scopes = append(out.Scopes, s)
		}
	}
	sort.Slice(out.Scopes, func(i, j int) bool { return out.Scopes[i].ID < out.Scopes[j].ID })
	return &out
}
