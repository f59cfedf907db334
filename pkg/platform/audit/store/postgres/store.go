// Package postgres persists audit events in an audit_events table for
// local querying when no broker pipeline is configured.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"verigate/pkg/platform/audit"
	txcontext "verigate/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id           UUID PRIMARY KEY,
    category     TEXT NOT NULL,
    timestamp    TIMESTAMPTZ NOT NULL,
    action       TEXT NOT NULL,
    user_id      UUID,
    operation_id TEXT,
    decision     TEXT,
    reason       TEXT,
    ip           TEXT,
    user_agent   TEXT,
    request_id   TEXT,
    severity     TEXT
);
CREATE INDEX IF NOT EXISTS audit_events_user_ts
    ON audit_events (user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS audit_events_ts
    ON audit_events (timestamp DESC);
`

// Migrate creates the audit schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one audit event. The category is always derived from the
// action so routing stays consistent with the publisher side.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var userID *uuid.UUID
	if event.UserID != uuid.Nil {
		uid := event.UserID
		userID = &uid
	}

	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_events
		    (id, category, timestamp, action, user_id, operation_id,
		     decision, reason, ip, user_agent, request_id, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.New(),
		string(event.Action.Category()),
		event.Timestamp,
		string(event.Action),
		userID,
		event.OperationID,
		event.Decision,
		event.Reason,
		event.IP,
		event.UserAgent,
		event.RequestID,
		string(event.Severity),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns events for one user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, action, user_id, operation_id,
		       decision, reason, ip, user_agent, request_id, severity
		FROM audit_events
		WHERE user_id = $1
		ORDER BY timestamp DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events across all users.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, action, user_id, operation_id,
		       decision, reason, ip, user_agent, request_id, severity
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event  audit.Event
			action string
			userID *uuid.UUID
		)
		err := rows.Scan(
			&event.Timestamp,
			&action,
			&userID,
			&event.OperationID,
			&event.Decision,
			&event.Reason,
			&event.IP,
			&event.UserAgent,
			&event.RequestID,
			&event.Severity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		if userID != nil {
			event.UserID = *userID
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
