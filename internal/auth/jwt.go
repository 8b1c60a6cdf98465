// Package auth provides authentication and authorization for the IOMS API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ioms/backend/internal/model"
)

// Claims represents the JWT claims for an IOMS token.
type Claims struct {
	UserID    uuid.UUID  `json:"user_id"`
	CompanyID uuid.UUID  `json:"company_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the caller as a domain actor.
func (c *Claims) Actor() model.Actor {
	return model.Actor{UserID: c.UserID, CompanyID: c.CompanyID, Role: c.Role}
}

// Errors returned by JWT operations.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidSecret = errors.New("jwt secret must not be empty")
)

const issuer = "ioms"

// JWTManager handles token generation and validation.
type JWTManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTManager creates a new JWTManager with the given secret and token lifetime.
func NewJWTManager(secret string, expiry time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, ErrInvalidSecret
	}
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}, nil
}

// GenerateToken creates a signed HS256 token for the user.
func (m *JWTManager) GenerateToken(user *model.User) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Email:     user.Email,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT string, returning its claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() || claims.CompanyID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiresIn returns the configured token lifetime.
func (m *JWTManager) ExpiresIn() time.Duration { return m.expiry }
