package duty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"dutyflow/internal/duty/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
	"dutyflow/pkg/platform/tx"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresStore persists duties in PostgreSQL. It joins the ambient transaction
// from context when one is present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const dutyColumns = `id, title, COALESCE(description, ''), due_date, status, assignee_id, COALESCE(evidence_url, ''), created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Duty) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO duties (id, title, description, due_date, status, assignee_id, evidence_url, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		uuid.UUID(d.ID), d.Title, d.Description, dueDateArg(d.DueDate), string(d.Status),
		uuid.UUID(d.AssigneeID), d.EvidenceURL, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return translate(err, "create duty")
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, dutyID id.DutyID) (*models.Duty, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+dutyColumns+` FROM duties WHERE id = $1`, uuid.UUID(dutyID))
	return scanDuty(row)
}

func (s *PostgresStore) ListByAssignee(ctx context.Context, assignee id.UserID) ([]*models.Duty, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT `+dutyColumns+`
		FROM duties
		WHERE assignee_id = $1
		ORDER BY due_date ASC NULLS LAST, created_at ASC, id ASC`,
		uuid.UUID(assignee))
	if err != nil {
		return nil, fmt.Errorf("list duties: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Duty, 0)
	for rows.Next() {
		d, err := scanDuty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, d *models.Duty) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO duties (id, title, description, due_date, status, assignee_id, evidence_url, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			due_date = EXCLUDED.due_date,
			status = EXCLUDED.status,
			assignee_id = EXCLUDED.assignee_id,
			evidence_url = EXCLUDED.evidence_url,
			updated_at = EXCLUDED.updated_at`,
		uuid.UUID(d.ID), d.Title, d.Description, dueDateArg(d.DueDate), string(d.Status),
		uuid.UUID(d.AssigneeID), d.EvidenceURL, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return translate(err, "save duty")
	}
	return nil
}

func dueDateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(models.DateLayout)
}

func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDuty(row scanner) (*models.Duty, error) {
	var (
		d        models.Duty
		dutyID   uuid.UUID
		assignee uuid.UUID
		status   string
		due      sql.NullTime
	)
	err := row.Scan(&dutyID, &d.Title, &d.Description, &due, &status, &assignee, &d.EvidenceURL, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan duty: %w", err)
	}
	d.ID = id.DutyID(dutyID)
	d.AssigneeID = id.UserID(assignee)
	d.Status = models.Status(status)
	if due.Valid {
		t := time.Date(due.Time.Year(), due.Time.Month(), due.Time.Day(), 0, 0, 0, 0, time.UTC)
		d.DueDate = &t
	}
	return &d, nil
}
