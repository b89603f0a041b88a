package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Audit event types. The audit log is append-only; rows are never mutated.
const (
	AuditSignin            = "signin"
	AuditSignout           = "signout"
	AuditFailure           = "failure"
	AuditSecurityViolation = "security_violation"
)

// AuditEvent records one authentication attempt or security observation.
type AuditEvent struct {
	ID           uuid.UUID
	EventType    string
	AccountID    string
	Success      bool
	IP           string
	UserAgent    string
	ErrorMessage string
	CreatedAt    time.Time
}

// AppendAuditEvent inserts an audit event. AccountID may be empty for
// failures before any account is known.
func (q *Queries) AppendAuditEvent(ctx context.Context, e AuditEvent) error {
	var accountID any
	if e.AccountID != "" {
		accountID = e.AccountID
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO audit_events (event_type, account_id, success, ip, user_agent, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.EventType, accountID, e.Success, e.IP, e.UserAgent, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// CountAuditFailuresSince counts failure events for an account in the
// trailing window.
func (q *Queries) CountAuditFailuresSince(ctx context.Context, accountID string, since time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_events
		WHERE event_type = $1 AND account_id = $2 AND created_at >= $3`,
		AuditFailure, accountID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit failures: %w", err)
	}
	return n, nil
}

// ListAuditEvents returns recent audit events, newest first.
func (q *Queries) ListAuditEvents(ctx context.Context, limit, offset int32) ([]AuditEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, event_type, COALESCE(account_id, ''), success, ip, user_agent, error_message, created_at
		FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			e  AuditEvent
			id pgtype.UUID
		)
		if err := rows.Scan(&id, &e.EventType, &e.AccountID, &e.Success, &e.IP, &e.UserAgent, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if id.Valid {
			e.ID = uuid.UUID(id.Bytes)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
