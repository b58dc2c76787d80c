package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mergerdesk.io/internal/apperr"
)

type stubDirectory struct {
	users map[string]User
}

func (d *stubDirectory) UserByExternalSubject(_ context.Context, subject string) (User, error) {
	u, ok := d.users[subject]
	if !ok {
		return User{}, apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	}
	return u, nil
}

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T, secret string) *Verifier {
	t.Helper()
	dir := &stubDirectory{users: map[string]User{
		"sub-active":   {ID: "u1", ExternalSubject: "sub-active", Role: RoleGrowth, Active: true, OrganizationID: "org-a"},
		"sub-inactive": {ID: "u2", ExternalSubject: "sub-inactive", Role: RoleSolo, Active: false, OrganizationID: "org-a"},
	}}
	v, err := NewVerifier(secret, "HS256", dir)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestAuthenticateResolvesPrincipal(t *testing.T) {
	v := newTestVerifier(t, testSecret)
	token := signToken(t, testSecret, "sub-active", time.Minute)

	user, err := v.Authenticate(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("expected u1, got %s", user.ID)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	v := newTestVerifier(t, testSecret)
	_, err := v.Authenticate(context.Background(), "")
	if !apperr.IsKind(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	if apperr.CodeOf(err) != "TOKEN_MISSING" {
		t.Fatalf("expected TOKEN_MISSING, got %s", apperr.CodeOf(err))
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	v := newTestVerifier(t, testSecret)
	token := signToken(t, testSecret, "sub-active", -time.Minute)

	_, err := v.Authenticate(context.Background(), "Bearer "+token)
	if !apperr.IsKind(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected Unauthenticated for expired token, got %v", err)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	v := newTestVerifier(t, testSecret)
	token := signToken(t, "another-secret", "sub-active", time.Minute)

	_, err := v.Authenticate(context.Background(), "Bearer "+token)
	if !apperr.IsKind(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected Unauthenticated for bad signature, got %v", err)
	}
}

func TestAuthenticateUnsetSecretNeverAccepts(t *testing.T) {
	v := newTestVerifier(t, "")
	token := signToken(t, testSecret, "sub-active", time.Minute)

	_, err := v.Authenticate(context.Background(), "Bearer "+token)
	if !apperr.IsKind(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected Unauthenticated with unset secret, got %v", err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	v := newTestVerifier(t, testSecret)
	token := signToken(t, testSecret, "sub-inactive", time.Minute)

	_, err := v.Authenticate(context.Background(), "Bearer "+token)
	if !apperr.IsKind(err, apperr.KindInactiveUser) {
		t.Fatalf("expected InactiveUser, got %v", err)
	}
}

func TestAuthenticateUnknownSubject(t *testing.T) {
	v := newTestVerifier(t, testSecret)
	token := signToken(t, testSecret, "sub-ghost", time.Minute)

	_, err := v.Authenticate(context.Background(), "Bearer "+token)
	if !apperr.IsKind(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected Unauthenticated for unknown subject, got %v", err)
	}
}

func TestExtractBearerTokenScheme(t *testing.T) {
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatalf("expected scheme rejection")
	}
	token, err := extractBearerToken("bearer abc")
	if err != nil || token != "abc" {
		t.Fatalf("case-insensitive scheme should be accepted, got %q, %v", token, err)
	}
}
