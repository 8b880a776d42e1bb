package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maklermate/maklermate-api/internal/auth"
	"github.com/maklermate/maklermate-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func testConfig(required bool) *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret: testSecret,
		Issuer:    "https://project.supabase.co/auth/v1",
		Audience:  "authenticated",
		Required:  required,
	}
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, mutate func(c *auth.Claims)) string {
	t.Helper()
	claims := &auth.Claims{
		Email: "makler@example.de",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7c0e2f4a-user",
			Issuer:    "https://project.supabase.co/auth/v1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	validator := auth.NewJWTValidator(testConfig(true))

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:  "valid token",
			token: func(t *testing.T) string { return signToken(t, testSecret, jwt.SigningMethodHS256, nil) },
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				return signToken(t, testSecret, jwt.SigningMethodHS256, func(c *auth.Claims) {
					c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				})
			},
			wantErr: auth.ErrExpiredToken,
		},
		{
			name:    "wrong secret",
			token:   func(t *testing.T) string { return signToken(t, "another-secret", jwt.SigningMethodHS256, nil) },
			wantErr: auth.ErrInvalidToken,
		},
		{
			name:    "wrong algorithm",
			token:   func(t *testing.T) string { return signToken(t, testSecret, jwt.SigningMethodHS512, nil) },
			wantErr: auth.ErrInvalidToken,
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				return signToken(t, testSecret, jwt.SigningMethodHS256, func(c *auth.Claims) {
					c.Audience = jwt.ClaimStrings{"anon"}
				})
			},
			wantErr: auth.ErrInvalidToken,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return signToken(t, testSecret, jwt.SigningMethodHS256, func(c *auth.Claims) { c.Subject = "" })
			},
			wantErr: auth.ErrInvalidToken,
		},
		{
			name:    "garbage",
			token:   func(t *testing.T) string { return "not.a.token" },
			wantErr: auth.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := validator.ValidateToken(tt.token(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "7c0e2f4a-user", user.UserID)
			assert.Equal(t, "makler@example.de", user.Email)
		})
	}
}

func TestJWTValidator_NoSecret(t *testing.T) {
	validator := auth.NewJWTValidator(&config.AuthConfig{})
	_, err := validator.ValidateToken(signToken(t, testSecret, jwt.SigningMethodHS256, nil))
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestUserIDFromContext(t *testing.T) {
	assert.Equal(t, "", auth.UserIDFromContext(context.Background()))
	assert.Equal(t, "u1", auth.UserIDFromContext(auth.WithUserID(context.Background(), "u1")))

	ctx := auth.WithUserContext(context.Background(), nil)
	_, ok := auth.FromContext(ctx)
	assert.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	validToken := signToken(t, testSecret, jwt.SigningMethodHS256, nil)

	tests := []struct {
		name       string
		required   bool
		header     string
		wantStatus int
		wantUser   string
	}{
		{"required with valid token", true, "Bearer " + validToken, http.StatusOK, "7c0e2f4a-user"},
		{"required without header", true, "", http.StatusUnauthorized, ""},
		{"required with wrong scheme", true, "Basic abc", http.StatusUnauthorized, ""},
		{"required with bad token", true, "Bearer nope", http.StatusUnauthorized, ""},
		{"optional without header", false, "", http.StatusOK, ""},
		{"optional with valid token", false, "bearer " + validToken, http.StatusOK, "7c0e2f4a-user"},
		{"optional with bad token", false, "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := auth.NewMiddleware(testConfig(tt.required), zap.NewNop())

			var gotUser string
			handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = auth.UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/leads", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
		})
	}
}
