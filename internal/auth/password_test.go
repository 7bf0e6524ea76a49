package auth

import (
	"strings"
	"testing"
)

// Tests use a tiny iteration count; the work factor does not change behavior.
const testIterations = 32

func TestHashRoundTrip(t *testing.T) {
	h := NewHasher(testIterations)

	encoded, err := h.Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "pbkdf2_sha256$32$") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	if got := h.Verify(encoded, "s3cret-pass"); got != VerifySuccess {
		t.Fatalf("expected VerifySuccess, got %s", got)
	}
	if got := h.Verify(encoded, "wrong-pass"); got != VerifyFailed {
		t.Fatalf("expected VerifyFailed, got %s", got)
	}
}

func TestHashSaltsAreUnique(t *testing.T) {
	h := NewHasher(testIterations)

	first, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyDetectsWeakerParameters(t *testing.T) {
	old := NewHasher(testIterations)
	encoded, err := old.Hash("migrate-me")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	current := NewHasher(testIterations * 2)
	if got := current.Verify(encoded, "migrate-me"); got != VerifySuccessRehash {
		t.Fatalf("expected VerifySuccessRehash, got %s", got)
	}
	if got := current.Verify(encoded, "wrong"); got != VerifyFailed {
		t.Fatalf("rehash detection must not weaken verification, got %s", got)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := NewHasher(testIterations)
	for _, encoded := range []string{
		"",
		"plaintext",
		"bcrypt$10$c2FsdA$a2V5",
		"pbkdf2_sha256$notanumber$c2FsdA$a2V5",
		"pbkdf2_sha256$32$!!$a2V5",
		"pbkdf2_sha256$32$c2FsdA$!!",
		"pbkdf2_sha256$32$c2FsdA",
	} {
		if got := h.Verify(encoded, "anything"); got != VerifyFailed {
			t.Fatalf("malformed hash %q verified as %s", encoded, got)
		}
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	h := NewHasher(testIterations)
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestNewHasherDefaultsIterations(t *testing.T) {
	h := NewHasher(0)
	if h.iterations != DefaultHashIterations {
		t.Fatalf("expected default iterations, got %d", h.iterations)
	}
}
