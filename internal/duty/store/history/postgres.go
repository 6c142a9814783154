package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"dutyflow/internal/duty/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
	"dutyflow/pkg/platform/tx"
)

// PostgresStore appends history rows. The table carries a trigger that rejects
// UPDATE and DELETE, so this store only ever inserts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const historyColumns = `id, duty_id, status, actor_id, COALESCE(comment, ''), prev_hash, hash, created_at`

func (s *PostgresStore) Append(ctx context.Context, e *models.HistoryEntry) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO duty_history (id, duty_id, status, actor_id, comment, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		uuid.UUID(e.ID), uuid.UUID(e.DutyID), string(e.Status), uuid.UUID(e.ActorID),
		e.Comment, e.PrevHash, e.Hash, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("append history: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ListByDuty returns entries in insertion order.
func (s *PostgresStore) ListByDuty(ctx context.Context, dutyID id.DutyID) ([]*models.HistoryEntry, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+historyColumns+` FROM duty_history WHERE duty_id = $1 ORDER BY seq ASC`,
		uuid.UUID(dutyID))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]*models.HistoryEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Last returns the newest entry. Inside a transaction the duty row lock taken by the
// caller serializes chain extension per duty.
func (s *PostgresStore) Last(ctx context.Context, dutyID id.DutyID) (*models.HistoryEntry, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM duty_history WHERE duty_id = $1 ORDER BY seq DESC LIMIT 1`,
		uuid.UUID(dutyID))
	return scanEntry(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.HistoryEntry, error) {
	var (
		e       models.HistoryEntry
		entryID uuid.UUID
		dutyID  uuid.UUID
		actorID uuid.UUID
		status  string
	)
	err := row.Scan(&entryID, &dutyID, &status, &actorID, &e.Comment, &e.PrevHash, &e.Hash, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	e.ID = id.HistoryID(entryID)
	e.DutyID = id.DutyID(dutyID)
	e.ActorID = id.UserID(actorID)
	e.Status = models.Status(status)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
