package auth

import "errors"

var (
	// ErrInvalidInput marks malformed or missing caller input.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrInvalidCredentials is returned for unknown users and wrong
	// passwords alike; callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrConflict marks a unique-key collision (duplicate username).
	ErrConflict = errors.New("auth: already exists")
	// ErrNotFound marks a missing referenced entity.
	ErrNotFound = errors.New("auth: not found")
	// ErrUnauthorized marks a failed policy evaluation.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrInvalidToken indicates the bearer token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvariant marks a state that the schema defaults should make
	// impossible, e.g. an authenticated user without a role.
	ErrInvariant = errors.New("auth: invariant violation")
)
