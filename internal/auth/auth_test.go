package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-0123456789"

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer(testSecret, 30*time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	token, expiresAt, err := iss.Issue("user-42", "asha", "role-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}
	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-42" || claims.RoleID != "role-1" || claims.Username != "asha" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	iss, _ := NewIssuer(testSecret, time.Minute)
	other, _ := NewIssuer("another-secret-9876543210", time.Minute)
	foreign, _, _ := other.Issue("user-1", "", "")

	expired, _ := NewIssuer(testSecret, time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.Issue("user-1", "", "")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"empty":   "  ",
		"garbage": "abc.def.ghi",
		"foreign": foreign,
		"expired": old,
		"none":    unsigned,
	} {
		if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer("", time.Minute); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := NewIssuer("short", time.Minute); err == nil {
		t.Fatal("expected short secret error")
	}
	if _, err := NewIssuer(testSecret, 0); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, _, err := mustIssuer(t).Issue(" ", "", ""); err == nil {
		t.Fatal("expected user id error")
	}
}

func mustIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format %q", hash)
	}
	if err := VerifyPassword(hash, "s3cret!"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if NeedsRehash(hash) {
		t.Fatal("fresh hash should not need rehash")
	}
	again, _ := HashPassword("s3cret!")
	if again == hash {
		t.Fatal("expected salted hashes to differ")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := VerifyPassword(string(legacy), "legacy-pass"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(string(legacy), "nope"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if !NeedsRehash(string(legacy)) {
		t.Fatal("bcrypt hash should need rehash")
	}
	if err := VerifyPassword("plain", "plain"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("expected no user")
	}
	ctx = ContextWithPrincipal(ctx, Principal{
		UserID:      "user-7",
		RoleID:      "role-1",
		Permissions: map[string]bool{"manage_users": true, "loan_approve": false, "audit_logs": true},
	})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	p, _ := PrincipalFromContext(ctx)
	if !p.HasPermission("manage_users") || p.HasPermission("loan_approve") || p.HasPermission("other") {
		t.Fatalf("unexpected permissions %v", p.Permissions)
	}
	if keys := p.PermissionKeys(); len(keys) != 2 || keys[0] != "audit_logs" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
