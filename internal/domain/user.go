package domain

import "time"

// Role determines what operations a user may perform.
type Role string

// Roles.
const (
	RoleDefault        Role = "default"
	RoleAdmin          Role = "admin"
	RoleFinanceManager Role = "finance_manager"
	RoleEmployee       Role = "employee"
	RoleDeleted        Role = "deleted"
)

// roleCodes is the stable wire/storage code table. Codes are assigned
// explicitly and must never be renumbered; clients and the database
// store these integers.
var roleCodes = map[Role]int{
	RoleDefault:        0,
	RoleAdmin:          1,
	RoleFinanceManager: 2,
	RoleEmployee:       3,
	RoleDeleted:        4,
}

// Code returns the stable integer code for the role, or -1 if unknown.
func (r Role) Code() int {
	if code, ok := roleCodes[r]; ok {
		return code
	}
	return -1
}

// IsValid checks if the role is a known role.
func (r Role) IsValid() bool {
	_, ok := roleCodes[r]
	return ok
}

// RoleFromCode maps a stable integer code back to a Role.
// Returns RoleDefault for unknown codes.
func RoleFromCode(code int) Role {
	for role, c := range roleCodes {
		if c == code {
			return role
		}
	}
	return RoleDefault
}

// AccountStatus tracks the account lifecycle. Deletion is a state
// transition, never a physical row removal.
type AccountStatus string

// Account statuses.
const (
	AccountActive  AccountStatus = "active"
	AccountDeleted AccountStatus = "deleted"
)

// User represents a registered account.
type User struct {
	ID           int64         `json:"id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	PasswordHash string        `json:"-"`
	Role         Role          `json:"role"`
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsDeleted returns true if the account has been soft-deleted.
func (u *User) IsDeleted() bool {
	return u.Status == AccountDeleted
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
