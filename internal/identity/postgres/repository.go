// Package postgres provides the PostgreSQL implementation of the
// identity repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/expensio/expensio/internal/domain"
	"github.com/expensio/expensio/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements identity.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, username, email, first_name, last_name, password_hash, role_code, account_status, created_at, updated_at`

// Insert creates a new user row and fills in the assigned id and
// timestamps.
func (r *Repository) Insert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (username, email, first_name, last_name, password_hash, role_code, account_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.Role.Code(),
		user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if conflict := uniquenessError(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id, including soft-deleted accounts.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, id), "get user by id")
}

// GetByUsername retrieves an active user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND account_status = 'active'`
	return r.scanUser(r.db.QueryRow(ctx, query, username), "get user by username")
}

// GetByEmail retrieves an active user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND account_status = 'active'`
	return r.scanUser(r.db.QueryRow(ctx, query, email), "get user by email")
}

// ListAll retrieves every user ordered by id.
func (r *Repository) ListAll(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		var roleCode int
		err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.FirstName,
			&user.LastName,
			&user.PasswordHash,
			&roleCode,
			&user.Status,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Role = domain.RoleFromCode(roleCode)
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Update persists the user's mutable fields.
func (r *Repository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, first_name = $4, last_name = $5,
		    password_hash = $6, role_code = $7, account_status = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.Role.Code(),
		user.Status,
	).Scan(&user.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.ErrUserNotFound
		}
		if conflict := uniquenessError(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// SoftDelete transitions an active account to the deleted status.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET account_status = 'deleted', role_code = $2, updated_at = NOW()
		WHERE id = $1 AND account_status = 'active'
	`
	result, err := r.db.Exec(ctx, query, id, domain.RoleDeleted.Code())
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row, op string) (*domain.User, error) {
	var user domain.User
	var roleCode int
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&roleCode,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.Role = domain.RoleFromCode(roleCode)
	return &user, nil
}

// uniquenessError maps a unique constraint violation to the service
// error naming the colliding field. Returns nil for other errors.
func uniquenessError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_username_active_key":
		return identity.ErrUsernameTaken
	case "users_email_active_key":
		return identity.ErrEmailTaken
	}
	return identity.ErrUsernameTaken
}
