package reimbursements

import "errors"

// Lifecycle engine errors. All are expected outcomes returned to
// callers, never swallowed.
var (
	// ErrNotFound covers both a missing record and a record that does
	// not belong to the requesting author; the two are indistinguishable
	// to the caller on purpose.
	ErrNotFound = errors.New("reimbursement not found")

	// ErrAlreadyResolved marks an attempt to mutate a reimbursement that
	// has left the pending state. Approved and denied are terminal.
	ErrAlreadyResolved = errors.New("reimbursement is already resolved")

	// ErrInvalidDecision marks a resolution decision other than
	// approved or denied.
	ErrInvalidDecision = errors.New("decision must be approved or denied")

	// ErrReceiptNotFound is returned when a reimbursement has no stored
	// receipt.
	ErrReceiptNotFound = errors.New("receipt not found")
)
