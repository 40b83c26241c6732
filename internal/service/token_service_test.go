package service

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
	appErrors "github.com/Oliskey-School/School-app--sub008/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func adminClaims(expires time.Time) *models.JWTClaims {
	return &models.JWTClaims{
		UserID: "admin-1",
		Role:   models.RoleAdmin,
		Email:  "admin@school.test",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService("secret")
	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), adminClaims(time.Now().Add(time.Hour)))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenServiceRejectsBadTokens(t *testing.T) {
	svc := NewTokenService("secret")
	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), adminClaims(time.Now().Add(time.Hour))),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), adminClaims(time.Now().Add(-time.Minute))),
		"wrong method": signToken(t, jwt.SigningMethodHS512, []byte("secret"), adminClaims(time.Now().Add(time.Hour))),
		"no role": signToken(t, jwt.SigningMethodHS256, []byte("secret"), &models.JWTClaims{
			UserID:           "u-1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		}),
		"garbage": "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, http.StatusUnauthorized, appErr.Status)
		})
	}
}
