package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureSchemaSQL = `
CREATE TABLE IF NOT EXISTS notifications (
  id uuid PRIMARY KEY,
  board_id uuid,
  actor_id uuid,
  recipient_id uuid NOT NULL,
  kind text NOT NULL,
  channel text NOT NULL,
  status text NOT NULL,
  suppression_reason text,
  subject text NOT NULL,
  preview text,
  payload jsonb NOT NULL DEFAULT '{}'::jsonb,
  dedupe_key text UNIQUE,
  sent_at timestamptz,
  created_at timestamptz NOT NULL DEFAULT now()
)`

var createIndexSQL = []string{
	`CREATE INDEX IF NOT EXISTS ix_notifications_recipient_created_at
  ON notifications (recipient_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_notifications_status_created_at
  ON notifications (status, created_at)`,
}

const insertRecordSQL = `
INSERT INTO notifications (
  id, board_id, actor_id, recipient_id, kind, channel, status,
  subject, preview, payload, dedupe_key
)
VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
ON CONFLICT (dedupe_key) DO UPDATE SET dedupe_key = EXCLUDED.dedupe_key
RETURNING id
`

const markSentSQL = `
UPDATE notifications SET status = $2, sent_at = $3 WHERE id = $1
`

const markFailedSQL = `
UPDATE notifications SET status = $2 WHERE id = $1
`

const markSuppressedSQL = `
UPDATE notifications SET status = $2, suppression_reason = $3 WHERE id = $1
`

const purgeSQL = `
DELETE FROM notifications WHERE created_at < $1
`

// Store persists notification records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the notifications table this service owns. The board,
// user and membership tables belong to the main API and are never created
// here.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ensureSchemaSQL); err != nil {
		return fmt.Errorf("ensure notifications schema: %w", err)
	}
	for _, stmt := range createIndexSQL {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure notifications indexes: %w", err)
		}
	}
	return nil
}

// Create inserts the QUEUED record. When the dedupe key already has a row
// from an earlier attempt at the same window, the existing row's id is
// written back into r.ID so the caller settles that row instead of updating
// an id that was never inserted.
func (s *Store) Create(ctx context.Context, r *Record) error {
	err := s.pool.QueryRow(ctx, insertRecordSQL,
		r.ID, r.BoardID, r.ActorID, r.RecipientID, string(r.Kind), string(r.Channel),
		string(r.Status), r.Subject, r.Preview, r.Payload, r.DedupeKey).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create notification %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if _, err := s.pool.Exec(ctx, markSentSQL, id, string(StatusSent), sentAt); err != nil {
		return fmt.Errorf("mark notification %s sent: %w", id, err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, markFailedSQL, id, string(StatusFailed)); err != nil {
		return fmt.Errorf("mark notification %s failed: %w", id, err)
	}
	return nil
}

func (s *Store) MarkSuppressed(ctx context.Context, id string, reason SuppressionReason) error {
	if _, err := s.pool.Exec(ctx, markSuppressedSQL, id, string(StatusSuppressed), string(reason)); err != nil {
		return fmt.Errorf("mark notification %s suppressed: %w", id, err)
	}
	return nil
}

// PurgeOlderThan deletes audit rows past the retention age and reports how
// many went away.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeSQL, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
