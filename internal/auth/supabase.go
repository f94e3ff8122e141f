// Package auth reads caller identity from Supabase access tokens.
//
// Billing endpoints are public, so a token is never required. When a valid
// bearer token is present its email and subject fill in missing request
// fields (the checkout email fallback).
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"litmus/internal/types"
)

// supabaseAudience is the aud claim Supabase puts on signed-in user tokens.
const supabaseAudience = "authenticated"

// SupabaseTokenVerifier validates HS256 tokens signed with the project's JWT
// secret.
type SupabaseTokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewSupabaseTokenVerifier returns a verifier for the given JWT secret.
func NewSupabaseTokenVerifier(secret string) *SupabaseTokenVerifier {
	return &SupabaseTokenVerifier{secret: []byte(secret), now: time.Now}
}

// Verify parses and validates token and returns the identity it carries.
// Expired tokens yield ErrCodeAuthTokenExpired; anything else that fails
// yields ErrCodeAuthTokenInvalid.
func (v *SupabaseTokenVerifier) Verify(token string) (types.Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(supabaseAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Identity{}, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", err)
		}
		return types.Identity{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", err)
	}

	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	if sub == "" && email == "" {
		return types.Identity{}, types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"token carries no subject or email", nil)
	}
	return types.Identity{
		UserID: sub,
		Email:  strings.ToLower(strings.TrimSpace(email)),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is not a Bearer credential.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SignTestToken mints a token the verifier accepts. It backs local tooling
// and tests; production tokens are issued by Supabase.
func SignTestToken(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"aud":   supabaseAudience,
		"role":  "authenticated",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
