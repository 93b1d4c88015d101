// Package store persists run audit records, mailbox watch state, and the
// queued-alert digest in a local SQLite database. Writes from the cleanup and
// watch loops are best-effort; callers log and carry on when a write fails.
package store

import "time"

// MailboxState tracks where notification processing left off for a mailbox.
type MailboxState struct {
	Email           string
	HistoryID       uint64
	WatchExpiration int64 // unix millis, 0 when unknown
}

// DecisionEntry is one recorded classification outcome.
type DecisionEntry struct {
	ID        int64
	Mailbox   string
	GmailID   string
	Payload   string // JSON document as recorded
	CreatedAt time.Time
}

// Alert statuses.
const (
	AlertQueued = "queued"
	AlertSent   = "sent"
	AlertError  = "error"
)

// Alert is a Telegram alert record: sent immediately, queued for the daily
// digest, or failed.
type Alert struct {
	ID          int64
	Mailbox     string
	GmailID     string
	Summary     string
	Status      string
	ErrorDetail string
	CreatedAt   time.Time
}
