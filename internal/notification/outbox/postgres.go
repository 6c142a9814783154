package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"dutyflow/internal/notification/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
	txcontext "dutyflow/pkg/platform/tx"
)

// PostgresStore keeps the outbox in notification_outbox. Claim uses
// FOR UPDATE SKIP LOCKED so several relays can drain the table concurrently.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const notificationColumns = `id, recipient_id, external_id, push_token, type, message, metadata,
	created_at, dispatched_at, failed_at, last_error`

func (s *PostgresStore) Enqueue(ctx context.Context, n *models.Notification) error {
	meta, err := json.Marshal(metadataOrEmpty(n.Metadata))
	if err != nil {
		return fmt.Errorf("marshal notification metadata: %w", err)
	}
	query := `
		INSERT INTO notification_outbox (id, recipient_id, external_id, push_token, type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(n.ID),
		uuid.UUID(n.RecipientID),
		n.ExternalID,
		n.PushToken,
		string(n.Type),
		n.Message,
		meta,
		n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Claim(ctx context.Context, limit int, now time.Time) ([]*models.Notification, error) {
	query := `
		UPDATE notification_outbox SET dispatched_at = $1
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE dispatched_at IS NULL
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationColumns
	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed notifications: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, ids []id.NotificationID, reason string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, nid := range ids {
		raw[i] = nid.String()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_outbox SET failed_at = $2, last_error = $3 WHERE id = ANY($1::uuid[])`,
		pq.Array(raw), at, reason)
	if err != nil {
		return fmt.Errorf("mark notifications failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, nid id.NotificationID) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notification_outbox WHERE id = $1`, uuid.UUID(nid))
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return n, err
}

func (s *PostgresStore) Pending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_outbox WHERE dispatched_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending notifications: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		nid, recipient uuid.UUID
		typ            string
		meta           []byte
		dispatched     sql.NullTime
		failed         sql.NullTime
		lastError      sql.NullString
		n              models.Notification
	)
	err := row.Scan(&nid, &recipient, &n.ExternalID, &n.PushToken, &typ, &n.Message, &meta,
		&n.CreatedAt, &dispatched, &failed, &lastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.ID = id.NotificationID(nid)
	n.RecipientID = id.UserID(recipient)
	n.Type = models.Type(typ)
	n.LastError = lastError.String
	if dispatched.Valid {
		t := dispatched.Time
		n.DispatchedAt = &t
	}
	if failed.Valid {
		t := failed.Time
		n.FailedAt = &t
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal notification metadata: %w", err)
		}
	}
	return &n, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
