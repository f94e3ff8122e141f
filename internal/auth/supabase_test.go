package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litmus/internal/types"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestVerify_ValidToken(t *testing.T) {
	token, err := SignTestToken(testJWTSecret, "user-123", " Learner@Example.com ", time.Hour)
	require.NoError(t, err)

	id, err := NewSupabaseTokenVerifier(testJWTSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", id.UserID)
	assert.Equal(t, "learner@example.com", id.Email)
}

func TestVerify_Rejections(t *testing.T) {
	expired, err := SignTestToken(testJWTSecret, "user-1", "a@b.com", -time.Minute)
	require.NoError(t, err)

	wrongSecret, err := SignTestToken("another-secret-another-secret-123", "user-1", "a@b.com", time.Hour)
	require.NoError(t, err)

	wrongAudience, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "email": "a@b.com", "aud": "anon", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	noIdentity, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": "authenticated", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1", "aud": "authenticated",
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  types.ErrorCode
	}{
		{"expired", expired, types.ErrCodeAuthTokenExpired},
		{"wrong secret", wrongSecret, types.ErrCodeAuthTokenInvalid},
		{"wrong audience", wrongAudience, types.ErrCodeAuthTokenInvalid},
		{"no identity claims", noIdentity, types.ErrCodeAuthTokenInvalid},
		{"no expiry", noExpiry, types.ErrCodeAuthTokenInvalid},
		{"garbage", "not.a.jwt", types.ErrCodeAuthTokenInvalid},
		{"alg none", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ1c2VyLTEifQ.", types.ErrCodeAuthTokenInvalid},
	}
	v := NewSupabaseTokenVerifier(testJWTSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.Equal(t, tt.want, appErr.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc.def.ghi": "abc.def.ghi",
		"bearer  abc ":       "abc",
		"Basic dXNlcjpwYXNz": "",
		"":                   "",
		"Bearer":             "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
