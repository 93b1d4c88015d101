package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite implements the audit log, mailbox state, and alert queue on a local
// database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	mailbox    TEXT NOT NULL,
	gmail_id   TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_mailbox ON decisions(mailbox, created_at);

CREATE TABLE IF NOT EXISTS mailboxes (
	email            TEXT PRIMARY KEY,
	history_id       INTEGER NOT NULL DEFAULT 0,
	watch_expiration INTEGER NOT NULL DEFAULT 0,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	mailbox      TEXT NOT NULL,
	gmail_id     TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error_detail TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// RecordDecision appends one audit entry; payload is serialized to JSON.
func (s *SQLite) RecordDecision(ctx context.Context, mailbox, gmailID string, payload any) error {
	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode decision payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (mailbox, gmail_id, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		mailbox, gmailID, string(doc), now())
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Decisions returns the most recent audit entries for a mailbox.
func (s *SQLite) Decisions(ctx context.Context, mailbox string, limit int) ([]DecisionEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mailbox, gmail_id, payload, created_at
		FROM decisions WHERE mailbox = ?
		ORDER BY id DESC LIMIT ?`, mailbox, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var entries []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var created string
		if err := rows.Scan(&e.ID, &e.Mailbox, &e.GmailID, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Mailbox returns the stored state for email, or nil when unknown.
func (s *SQLite) Mailbox(ctx context.Context, email string) (*MailboxState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT email, history_id, watch_expiration FROM mailboxes WHERE email = ?`, email)
	var st MailboxState
	switch err := row.Scan(&st.Email, &st.HistoryID, &st.WatchExpiration); err {
	case nil:
		return &st, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, fmt.Errorf("query mailbox: %w", err)
	}
}

// UpsertMailbox creates or replaces the mailbox state row.
func (s *SQLite) UpsertMailbox(ctx context.Context, st MailboxState) error {
	if strings.TrimSpace(st.Email) == "" {
		return fmt.Errorf("mailbox email must be non-empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailboxes (email, history_id, watch_expiration, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			history_id       = excluded.history_id,
			watch_expiration = excluded.watch_expiration,
			updated_at       = excluded.updated_at`,
		st.Email, st.HistoryID, st.WatchExpiration, now())
	if err != nil {
		return fmt.Errorf("upsert mailbox: %w", err)
	}
	return nil
}

// LogAlert records an alert delivery attempt or queues one for the digest.
func (s *SQLite) LogAlert(ctx context.Context, mailbox, gmailID, summary, status, errorDetail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (mailbox, gmail_id, summary, status, error_detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mailbox, gmailID, summary, status, errorDetail, now())
	if err != nil {
		return fmt.Errorf("log alert: %w", err)
	}
	return nil
}

// QueuedAlerts returns alerts waiting for the daily digest, oldest first.
func (s *SQLite) QueuedAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mailbox, gmail_id, summary, status, error_detail, created_at
		FROM alerts WHERE status = ? ORDER BY id`, AlertQueued)
	if err != nil {
		return nil, fmt.Errorf("query queued alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var created string
		if err := rows.Scan(&a.ID, &a.Mailbox, &a.GmailID, &a.Summary, &a.Status, &a.ErrorDetail, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(created)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertsSent flips queued alerts to sent.
func (s *SQLite) MarkAlertsSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `UPDATE alerts SET status = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, AlertSent, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
