package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testSettings() TokenSettings {
	return TokenSettings{
		Key:      []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "auth-test",
		Audience: "api-test",
		TTL:      20 * time.Minute,
	}
}

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer(testSettings())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, err := iss.Issue("alice", "user", []string{"user.read", "", "user.write"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := iss.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Username() != "alice" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Role != "user" {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
	if len(claims.Scopes) != 2 || !claims.HasScope("user.read") || !claims.HasScope("user.write") {
		t.Fatalf("blank scopes must be dropped, got %v", claims.Scopes)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 20*time.Minute {
		t.Fatalf("unexpected lifetime: %v", got)
	}
}

func TestIssueRequiresIdentityAndRole(t *testing.T) {
	iss, err := NewIssuer(testSettings())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if _, err := iss.Issue("  ", "user", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank username, got %v", err)
	}
	if _, err := iss.Issue("alice", "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank role, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	iss, err := NewIssuer(testSettings())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	iss.WithClock(func() time.Time { return past })
	token, err := iss.Issue("alice", "user", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	iss.WithClock(time.Now)
	if _, err := iss.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	iss, err := NewIssuer(testSettings())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, err := iss.Issue("alice", "user", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := testSettings()
	other.Key = []byte("ffffffffffffffffffffffffffffffff")
	verifier, err := NewIssuer(other)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if _, err := verifier.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}
}

func TestParseRejectsWrongIssuerOrAudience(t *testing.T) {
	iss, err := NewIssuer(testSettings())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, err := iss.Issue("alice", "user", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wrongIssuer := testSettings()
	wrongIssuer.Issuer = "someone-else"
	verifier, _ := NewIssuer(wrongIssuer)
	if _, err := verifier.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}

	wrongAudience := testSettings()
	wrongAudience.Audience = "other-api"
	verifier, _ = NewIssuer(wrongAudience)
	if _, err := verifier.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong audience, got %v", err)
	}
}

func TestParseRejectsUnsignedToken(t *testing.T) {
	iss, err := NewIssuer(testSettings())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: "administrator",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth-test",
			Audience:  jwt.ClaimStrings{"api-test"},
			Subject:   "mallory",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}

func TestReloadSwapsSettings(t *testing.T) {
	iss, err := NewIssuer(testSettings())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	oldToken, err := iss.Issue("alice", "user", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rotated := testSettings()
	rotated.Key = []byte("abcdefabcdefabcdefabcdefabcdefab")
	if err := iss.Reload(rotated); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, err := iss.ParseAndValidate(oldToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with the retired key must fail, got %v", err)
	}
	newToken, err := iss.Issue("alice", "user", nil)
	if err != nil {
		t.Fatalf("Issue after reload: %v", err)
	}
	if _, err := iss.ParseAndValidate(newToken); err != nil {
		t.Fatalf("ParseAndValidate after reload: %v", err)
	}
}

func TestNewIssuerValidatesSettings(t *testing.T) {
	bad := testSettings()
	bad.Key = nil
	if _, err := NewIssuer(bad); err == nil {
		t.Fatal("expected error for missing key")
	}

	bad = testSettings()
	bad.Issuer = " "
	if _, err := NewIssuer(bad); err == nil {
		t.Fatal("expected error for blank issuer")
	}
}

func TestDefaultTTLApplied(t *testing.T) {
	settings := testSettings()
	settings.TTL = 0
	iss, err := NewIssuer(settings)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, err := iss.Issue("alice", "user", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != DefaultTokenTTL {
		t.Fatalf("expected default lifetime, got %v", got)
	}
}
