package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/expensio/expensio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"})

	user := &domain.User{ID: 7, Role: domain.RoleFinanceManager}
	token, err := auth.GenerateToken(context.Background(), user)
	require.NoError(t, err)

	userID, role, err := auth.ValidateToken(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
	assert.Equal(t, domain.RoleFinanceManager, role)
}

func TestValidate_WrongSecret(t *testing.T) {
	issuer := NewAuthenticator(Config{SecretKey: "secret-a"})
	verifier := NewAuthenticator(Config{SecretKey: "secret-b"})

	token, err := issuer.GenerateToken(context.Background(), &domain.User{ID: 1, Role: domain.RoleEmployee})
	require.NoError(t, err)

	_, _, err = verifier.ValidateToken(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Expired(t *testing.T) {
	auth := NewAuthenticator(Config{
		SecretKey:           "test-secret",
		AccessTokenDuration: -time.Minute,
	})

	token, err := auth.GenerateToken(context.Background(), &domain.User{ID: 1, Role: domain.RoleEmployee})
	require.NoError(t, err)

	_, _, err = auth.ValidateToken(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret"})

	_, _, err := auth.ValidateToken(context.Background(), "not.a.token")

	assert.ErrorIs(t, err, ErrInvalidToken)
}
