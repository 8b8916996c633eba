// Package notifications delivers resolution emails to reimbursement
// authors. Messages are enqueued inside the resolving transaction and
// drained by a background worker, so delivery never blocks or fails a
// resolution.
package notifications

import "time"

// QueueStatus represents the status of a queue item.
type QueueStatus string

// Queue statuses.
const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSent    QueueStatus = "sent"
	QueueStatusFailed  QueueStatus = "failed"
)

// QueueItem represents a queued resolution notification.
type QueueItem struct {
	ID              string
	ReimbursementID int64
	Recipient       string
	Payload         ResolutionPayload
	Status          QueueStatus
	Attempts        int
	MaxAttempts     int
	NextAttemptAt   time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SentAt          *time.Time
}

// QueueStats holds queue size per status.
type QueueStats struct {
	Pending int64
	Sent    int64
	Failed  int64
}
