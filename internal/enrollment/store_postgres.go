package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verigate/pkg/platform/sentinel"
	txcontext "verigate/pkg/platform/tx"
)

// PostgresStore persists enrollment records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer returns the context transaction when one is present so writes can
// join a caller-managed transaction.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const schema = `
CREATE TABLE IF NOT EXISTS enrollment_records (
    id           UUID PRIMARY KEY,
    user_id      UUID NOT NULL,
    operation_id TEXT NOT NULL,
    status       TEXT NOT NULL,
    secret_hash  TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS enrollment_records_active_user
    ON enrollment_records (user_id) WHERE status = 'initiated';
CREATE INDEX IF NOT EXISTS enrollment_records_user_created
    ON enrollment_records (user_id, created_at DESC);
`

// Migrate creates the enrollment schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate enrollment schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	// The partial unique index on (user_id) WHERE status='initiated'
	// enforces at most one non-terminal record per user; the guarded
	// insert keeps the conflict a sentinel instead of a driver error.
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO enrollment_records
		    (id, user_id, operation_id, status, secret_hash, created_at, expires_at, completed_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE NOT EXISTS (
		    SELECT 1 FROM enrollment_records
		    WHERE user_id = $2 AND status = 'initiated'
		)`,
		rec.ID, rec.UserID, rec.OperationID, rec.Status, rec.SecretHash,
		rec.CreatedAt, rec.ExpiresAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save enrollment record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save enrollment record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindLatestByUser(ctx context.Context, userID uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, operation_id, status, secret_hash, created_at, expires_at, completed_at
		FROM enrollment_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	return scanRecord(row)
}

func (s *PostgresStore) FindCompletedByUser(ctx context.Context, userID uuid.UUID) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, operation_id, status, secret_hash, created_at, expires_at, completed_at
		FROM enrollment_records
		WHERE user_id = $1 AND status = 'completed'
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	return scanRecord(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, completedAt *time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE enrollment_records
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status = 'initiated'`,
		id, status, completedAt,
	)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Distinguish a missing record from an already-terminal one.
	var existing Status
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM enrollment_records WHERE id = $1`, id,
	).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return sentinel.ErrTerminal
}

func scanRecord(row *sql.Row) (Record, error) {
	var rec Record
	var completedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.UserID, &rec.OperationID, &rec.Status,
		&rec.SecretHash, &rec.CreatedAt, &rec.ExpiresAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan enrollment record: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}
