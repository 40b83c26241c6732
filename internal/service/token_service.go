package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
	appErrors "github.com/Oliskey-School/School-app--sub008/pkg/errors"
)

// TokenService validates access tokens issued by the school identity service.
type TokenService struct {
	secret []byte
}

// NewTokenService constructs a token validator for HS256 tokens signed with secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// ValidateToken parses and verifies an access token.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token is missing user or role")
	}

	return claims, nil
}
