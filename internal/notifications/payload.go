package notifications

import "time"

// ResolutionPayload is the message content stored with a queue item. It
// is a snapshot taken at resolution time; later edits to the account or
// record do not change what gets sent.
type ResolutionPayload struct {
	ReimbursementID int64     `json:"reimbursement_id"`
	Decision        string    `json:"decision"`
	Amount          string    `json:"amount"`
	Description     string    `json:"description"`
	Type            string    `json:"type"`
	AuthorName      string    `json:"author_name"`
	ResolvedAt      time.Time `json:"resolved_at"`
}
