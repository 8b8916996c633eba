package identity

import (
	"context"

	"github.com/expensio/expensio/internal/domain"
)

// Repository defines the persistence gateway for user accounts.
//
// Lookups by username or email only consider active accounts, so a
// soft-deleted account frees its username and email for reuse.
type Repository interface {
	Insert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListAll(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	SoftDelete(ctx context.Context, id int64) error
}
