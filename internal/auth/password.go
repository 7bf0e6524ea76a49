package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// VerifyResult is the outcome of comparing a password against a stored hash.
type VerifyResult int

const (
	// VerifyFailed means the password does not match.
	VerifyFailed VerifyResult = iota
	// VerifySuccess means the password matches the stored hash.
	VerifySuccess
	// VerifySuccessRehash means the password matches but the hash was
	// produced with weaker parameters than currently configured and
	// should be re-hashed and persisted.
	VerifySuccessRehash
)

func (r VerifyResult) String() string {
	switch r {
	case VerifySuccess:
		return "success"
	case VerifySuccessRehash:
		return "success_rehash_needed"
	default:
		return "failed"
	}
}

const (
	hashAlgorithm = "pbkdf2_sha256"
	saltLength    = 16
	keyLength     = 32

	// DefaultHashIterations follows the OWASP recommendation for
	// PBKDF2-HMAC-SHA256.
	DefaultHashIterations = 600_000
)

// Hasher derives and verifies salted PBKDF2-HMAC-SHA256 password hashes.
// The encoded form is self-describing, so the iteration count can be raised
// without invalidating existing hashes. Hasher is safe for concurrent use.
type Hasher struct {
	iterations int
}

// NewHasher returns a Hasher with the given work factor. Non-positive values
// fall back to the default.
func NewHasher(iterations int) *Hasher {
	if iterations <= 0 {
		iterations = DefaultHashIterations
	}
	return &Hasher{iterations: iterations}
}

// Hash derives a salted hash of password in the form
// pbkdf2_sha256$<iterations>$<salt>$<key> with base64 raw-std encoding.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, h.iterations, keyLength, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		hashAlgorithm,
		h.iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify compares password against an encoded hash in constant time with
// respect to the derived key bytes. A match produced with fewer iterations
// than the hasher currently uses yields VerifySuccessRehash.
func (h *Hasher) Verify(encoded, password string) VerifyResult {
	iterations, salt, key, err := decodeHash(encoded)
	if err != nil {
		return VerifyFailed
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, len(key), sha256.New)
	if subtle.ConstantTimeCompare(derived, key) != 1 {
		return VerifyFailed
	}
	if iterations < h.iterations {
		return VerifySuccessRehash
	}
	return VerifySuccess
}

func decodeHash(encoded string) (iterations int, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashAlgorithm {
		return 0, nil, nil, fmt.Errorf("malformed password hash")
	}
	iterations, err = strconv.Atoi(parts[1])
	if err != nil || iterations < 1 {
		return 0, nil, nil, fmt.Errorf("malformed iteration count")
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, fmt.Errorf("malformed salt")
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, fmt.Errorf("malformed derived key")
	}
	return iterations, salt, key, nil
}
