package auth

// Scope names recognized by the user-management policies.
const (
	ScopeUserRead   = "user.read"
	ScopeUserWrite  = "user.write"
	ScopeUserCreate = "user.create"
	ScopeUserDelete = "user.delete"
)

// Policy names a fixed authorization rule evaluated against verified claims.
type Policy string

const (
	PolicyUserRead   Policy = "UserRead"
	PolicyUserWrite  Policy = "UserWrite"
	PolicyUserCreate Policy = "UserCreate"
	PolicyUserDelete Policy = "UserDelete"
)

// policies is the full rule set: a small enumerated table, not a rule
// engine. The administrator role supersedes every scope check.
var policies = map[Policy]func(*Claims) bool{
	PolicyUserRead: func(c *Claims) bool {
		return c.IsAdministrator() ||
			c.HasScope(ScopeUserRead) ||
			c.HasScope(ScopeUserWrite) ||
			c.HasScope(ScopeUserCreate) ||
			c.HasScope(ScopeUserDelete)
	},
	PolicyUserWrite: func(c *Claims) bool {
		return c.IsAdministrator() || c.HasScope(ScopeUserWrite)
	},
	PolicyUserCreate: func(c *Claims) bool {
		return c.IsAdministrator() || c.HasScope(ScopeUserCreate)
	},
	PolicyUserDelete: func(c *Claims) bool {
		return c.IsAdministrator() || c.HasScope(ScopeUserDelete)
	},
}

// Evaluate reports whether the caller's claims satisfy the named policy.
// Unknown policy names fall back to requiring authentication only, which a
// non-nil claim bundle already proves.
func Evaluate(policy Policy, claims *Claims) bool {
	if claims == nil {
		return false
	}
	predicate, ok := policies[policy]
	if !ok {
		return true
	}
	return predicate(claims)
}
