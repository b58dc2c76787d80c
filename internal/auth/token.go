package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"mergerdesk.io/internal/apperr"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// UserDirectory resolves the internal principal for an external subject.
type UserDirectory interface {
	UserByExternalSubject(ctx context.Context, subject string) (User, error)
}

// Verifier validates bearer tokens and resolves the principal.
// It authenticates only; authorization lives in Engine and Gate.
type Verifier struct {
	secret []byte
	alg    string
	users  UserDirectory
}

// NewVerifier constructs a Verifier. An empty secret is accepted at
// construction but every Authenticate call will fail: the verifier must never
// fall back to unsigned acceptance.
func NewVerifier(secret, alg string, users UserDirectory) (*Verifier, error) {
	if users == nil {
		return nil, errors.New("auth: user directory is required")
	}
	alg = strings.TrimSpace(alg)
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	return &Verifier{
		secret: []byte(strings.TrimSpace(secret)),
		alg:    alg,
		users:  users,
	}, nil
}

// Authenticate extracts the bearer token from the authorization header value,
// verifies it and resolves the subject to an active internal user.
func (v *Verifier) Authenticate(ctx context.Context, header string) (User, error) {
	token, err := extractBearerToken(header)
	if err != nil {
		return User{}, err
	}
	subject, err := v.verify(token)
	if err != nil {
		return User{}, err
	}
	user, err := v.users.UserByExternalSubject(ctx, subject)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return User{}, apperr.New(apperr.KindUnauthenticated, "TOKEN_INVALID", "unknown token subject")
		}
		return User{}, err
	}
	if !user.Active {
		return User{}, apperr.New(apperr.KindInactiveUser, "USER_INACTIVE", "user account is inactive")
	}
	return user, nil
}

func (v *Verifier) verify(token string) (string, error) {
	if len(v.secret) == 0 {
		return "", apperr.New(apperr.KindUnauthenticated, "TOKEN_INVALID", "token verification is not configured")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.alg {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", apperr.New(apperr.KindUnauthenticated, "TOKEN_INVALID", "invalid token")
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "TOKEN_INVALID", "token subject missing")
	}
	return subject, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "TOKEN_MISSING", "missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", apperr.New(apperr.KindUnauthenticated, "TOKEN_INVALID", "invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "TOKEN_MISSING", "missing bearer token")
	}
	return token, nil
}
