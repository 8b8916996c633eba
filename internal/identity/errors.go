package identity

import "errors"

// Account engine errors. All are expected outcomes returned to callers,
// never swallowed.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username is already in use")
	ErrEmailTaken         = errors.New("email is already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidFields      = errors.New("invalid user field values")
	ErrInvalidID          = errors.New("id must be greater than zero")
	ErrTooManyAttempts    = errors.New("too many login attempts")
)
