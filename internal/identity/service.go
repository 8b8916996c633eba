// Package identity provides registration, authentication and account
// management for users.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expensio/expensio/internal/domain"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Service implements the user account engine. It is constructed once per
// process and passed explicitly to its callers.
type Service struct {
	repo Repository

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	loginRPS rate.Limit
	burst    int
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		limiters: make(map[string]*rate.Limiter),
		loginRPS: rate.Limit(1), // one attempt per second per username
		burst:    5,
	}
}

// RegisterInput holds data for registering a new account.
type RegisterInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Register validates and creates a new account. The role is always
// EMPLOYEE regardless of anything the caller supplies; only an existing
// admin can promote an account afterwards via Update.
//
// Username uniqueness is checked before email uniqueness, and both
// before any write, so the returned conflict names the first colliding
// field.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if err := validateFields(input.FirstName, input.LastName, input.Username, input.Email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, fmt.Errorf("%w: password must not be blank", ErrInvalidFields)
	}

	if _, err := s.repo.GetByUsername(ctx, input.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	if _, err := s.repo.GetByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     input.Username,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		Role:         domain.RoleEmployee,
		Status:       domain.AccountActive,
	}

	if err := s.repo.Insert(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies a username/password pair and returns the
// matching active account. Blank inputs fail without touching storage.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	if !s.allowAttempt(username) {
		return nil, ErrTooManyAttempts
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// UpdateInput holds data for updating an existing account. Password is
// optional: when nil the stored hash is kept as-is. Role changes are an
// admin-only concern enforced at the HTTP layer.
type UpdateInput struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  *string
	Role      *domain.Role
}

// Update re-validates all fields and persists the account. Uniqueness is
// re-checked against other accounts, symmetric with registration.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*domain.User, error) {
	if input.ID <= 0 {
		return nil, ErrInvalidID
	}
	if err := validateFields(input.FirstName, input.LastName, input.Username, input.Email); err != nil {
		return nil, err
	}
	if input.Password != nil && strings.TrimSpace(*input.Password) == "" {
		return nil, fmt.Errorf("%w: password must not be blank", ErrInvalidFields)
	}

	user, err := s.repo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if other, err := s.repo.GetByUsername(ctx, input.Username); err == nil && other.ID != user.ID {
		return nil, ErrUsernameTaken
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if other, err := s.repo.GetByEmail(ctx, input.Email); err == nil && other.ID != user.ID {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	user.Username = input.Username
	user.Email = input.Email
	user.FirstName = input.FirstName
	user.LastName = input.LastName
	if input.Password != nil {
		hash, err := hashPassword(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidFields, *input.Role)
		}
		user.Role = *input.Role
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// DeleteByID soft-deletes an account: the account transitions to the
// deleted status and its credentials stop working, but the row remains
// so historical reimbursements keep a valid author reference.
func (s *Service) DeleteByID(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	return s.repo.SoftDelete(ctx, id)
}

// GetByID fetches a single account.
func (s *Service) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	return s.repo.GetByID(ctx, id)
}

// ListAll returns every account, active and deleted, ordered by id.
// An empty system yields an empty slice, not an error.
func (s *Service) ListAll(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListAll(ctx)
}

// IsUsernameAvailable reports whether no active account holds the username.
func (s *Service) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// IsEmailAvailable reports whether no active account holds the email.
func (s *Service) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// allowAttempt rate-limits login attempts per username to slow down
// credential guessing.
func (s *Service) allowAttempt(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[username]
	if !ok {
		limiter = rate.NewLimiter(s.loginRPS, s.burst)
		s.limiters[username] = limiter
	}
	return limiter.Allow()
}

func validateFields(firstName, lastName, username, email string) error {
	switch {
	case strings.TrimSpace(firstName) == "":
		return fmt.Errorf("%w: first name must not be blank", ErrInvalidFields)
	case strings.TrimSpace(lastName) == "":
		return fmt.Errorf("%w: last name must not be blank", ErrInvalidFields)
	case strings.TrimSpace(username) == "":
		return fmt.Errorf("%w: username must not be blank", ErrInvalidFields)
	case strings.TrimSpace(email) == "":
		return fmt.Errorf("%w: email must not be blank", ErrInvalidFields)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
