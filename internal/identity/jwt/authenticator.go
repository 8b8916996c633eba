// Package jwt issues and validates the access tokens that carry an
// authenticated actor between requests.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/expensio/expensio/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for expired, malformed or forged tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Config holds authenticator configuration.
type Config struct {
	SecretKey           string
	AccessTokenDuration time.Duration
}

// Authenticator signs and verifies HMAC access tokens.
type Authenticator struct {
	config Config
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config) *Authenticator {
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	return &Authenticator{config: config}
}

type claims struct {
	RoleCode int `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken issues an access token for the user. The role travels in
// the token as its stable integer code.
func (a *Authenticator) GenerateToken(_ context.Context, user *domain.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RoleCode: user.Role.Code(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	})

	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns the user id and role it
// carries.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (int64, domain.Role, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return 0, "", ErrInvalidToken
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", ErrInvalidToken
	}

	return userID, domain.RoleFromCode(c.RoleCode), nil
}

// TokenDuration returns the configured token lifetime, used to set the
// cookie max age.
func (a *Authenticator) TokenDuration() time.Duration {
	return a.config.AccessTokenDuration
}
