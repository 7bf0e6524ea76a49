package auth

// User is an account that can authenticate and hold scope grants.
type User struct {
	ID           int64   `json:"id"`
	Username     string  `json:"username"`
	PasswordHash string  `json:"-"`
	RoleID       int64   `json:"role_id"`
	RoleName     string  `json:"role,omitempty"`
	Scopes       []Scope `json:"scopes,omitempty"`
}

// ScopeNames returns the names of the user's scope grants.
func (u *User) ScopeNames() []string {
	if len(u.Scopes) == 0 {
		return nil
	}
	names := make([]string, 0, len(u.Scopes))
	for _, s := range u.Scopes {
		names = append(names, s.Name)
	}
	return names
}

// ScopeIDs returns the ids of the user's scope grants.
func (u *User) ScopeIDs() []int64 {
	if len(u.Scopes) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(u.Scopes))
	for _, s := range u.Scopes {
		ids = append(ids, s.ID)
	}
	return ids
}

// Role is a coarse permission category referenced by users.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Scope is a fine-grained permission unit granted to users individually.
type Scope struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Seeded role ids. Role rows are created by migrations and never deleted.
const (
	RoleIDUser          int64 = 1
	RoleIDAdministrator int64 = 2
)

// RoleAdministrator is the role name that supersedes all scope checks.
const RoleAdministrator = "administrator"

// UserUpdate carries optional fields for a partial user update.
// Nil pointers leave the corresponding column untouched.
type UserUpdate struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
	RoleID   *int64  `json:"role_id"`
}
