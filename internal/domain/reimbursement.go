package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidReimbursement is returned when a reimbursement violates a
// field invariant. Specific violations wrap it.
var ErrInvalidReimbursement = errors.New("invalid reimbursement")

// ReimbursementStatus tracks a reimbursement through its lifecycle.
// PENDING is the only initial state; APPROVED and DENIED are terminal.
type ReimbursementStatus string

// Reimbursement statuses.
const (
	StatusPending  ReimbursementStatus = "pending"
	StatusApproved ReimbursementStatus = "approved"
	StatusDenied   ReimbursementStatus = "denied"
)

// statusCodes is the stable wire/storage code table (1-based, matching
// the legacy integer identifiers). Never renumber.
var statusCodes = map[ReimbursementStatus]int{
	StatusPending:  1,
	StatusApproved: 2,
	StatusDenied:   3,
}

// Code returns the stable integer code for the status, or -1 if unknown.
func (s ReimbursementStatus) Code() int {
	if code, ok := statusCodes[s]; ok {
		return code
	}
	return -1
}

// IsValid checks if the status is a known status.
func (s ReimbursementStatus) IsValid() bool {
	_, ok := statusCodes[s]
	return ok
}

// IsTerminal returns true once the reimbursement has been resolved.
func (s ReimbursementStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// StatusFromCode maps a stable integer code back to a status.
// The boolean reports whether the code was known.
func StatusFromCode(code int) (ReimbursementStatus, bool) {
	for status, c := range statusCodes {
		if c == code {
			return status, true
		}
	}
	return "", false
}

// ReimbursementType categorizes the expense.
type ReimbursementType string

// Reimbursement types.
const (
	TypeLodging ReimbursementType = "lodging"
	TypeTravel  ReimbursementType = "travel"
	TypeFood    ReimbursementType = "food"
	TypeOther   ReimbursementType = "other"
)

// typeCodes is the stable wire/storage code table (1-based). Never renumber.
var typeCodes = map[ReimbursementType]int{
	TypeLodging: 1,
	TypeTravel:  2,
	TypeFood:    3,
	TypeOther:   4,
}

// Code returns the stable integer code for the type, or -1 if unknown.
func (t ReimbursementType) Code() int {
	if code, ok := typeCodes[t]; ok {
		return code
	}
	return -1
}

// IsValid checks if the type is a known type.
func (t ReimbursementType) IsValid() bool {
	_, ok := typeCodes[t]
	return ok
}

// TypeFromCode maps a stable integer code back to a type.
// The boolean reports whether the code was known.
func TypeFromCode(code int) (ReimbursementType, bool) {
	for typ, c := range typeCodes {
		if c == code {
			return typ, true
		}
	}
	return "", false
}

// Reimbursement is a submitted expense claim awaiting or having received
// a financial decision.
//
// Invariants: amount > 0, description non-empty, type valid, author set.
// ResolverID and ResolvedAt are nil exactly while Status is pending, and
// are set together, once, on resolution.
type Reimbursement struct {
	ID          int64               `json:"id"`
	Amount      decimal.Decimal     `json:"amount"`
	Description string              `json:"description"`
	Status      ReimbursementStatus `json:"status"`
	Type        ReimbursementType   `json:"type"`
	AuthorID    int64               `json:"author_id"`
	ResolverID  *int64              `json:"resolver_id,omitempty"`
	ReceiptKey  *string             `json:"receipt_key,omitempty"`
	SubmittedAt time.Time           `json:"submitted_at"`
	ResolvedAt  *time.Time          `json:"resolved_at,omitempty"`
}

// Validate checks the field invariants that must hold for any
// reimbursement, new or merged after an update.
func (r *Reimbursement) Validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidReimbursement)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description must not be empty", ErrInvalidReimbursement)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidReimbursement, r.Type)
	}
	if r.AuthorID <= 0 {
		return fmt.Errorf("%w: author is required", ErrInvalidReimbursement)
	}
	return nil
}

// IsResolved returns true once the reimbursement has left pending.
func (r *Reimbursement) IsResolved() bool {
	return r.Status.IsTerminal()
}
