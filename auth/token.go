package auth

import (
	"fmt"
	"support-chat/domain"
	"support-chat/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "support-chat"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Role   string `json:"role" validate:"required,oneof=customer agent"`
	Name   string `json:"name" validate:"max=64"`
	jwt.RegisteredClaims
}

func (c CustomClaims) User() domain.User {
	return domain.User{
		ID:          domain.UserID(c.UserID),
		Role:        domain.Role(c.Role),
		DisplayName: c.Name,
	}
}

// TokenIssuer signs and verifies HS256 tokens with a shared secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// GenerateToken creates a signed JWT for a specific user.
func (i *TokenIssuer) GenerateToken(user domain.User) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: string(user.ID),
		Role:   string(user.Role),
		Name:   user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	if err := ValidateClaims(*claims); err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ValidateToken checks signature, expiry and claim content.
func (i *TokenIssuer) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, jwt.ErrSignatureInvalid)
	}
	if err := ValidateClaims(*claims); err != nil {
		return nil, err
	}
	return claims, nil
}
