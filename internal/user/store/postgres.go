package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"dutyflow/internal/user/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
	"dutyflow/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, external_id, name, COALESCE(email, ''), COALESCE(picture_url, ''), COALESCE(push_token, ''), role, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
	return scanUser(row)
}

func (s *PostgresStore) ListAdmins(ctx context.Context) ([]*models.User, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at`, string(models.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Upsert inserts the user or refreshes the profile fields of the row with the same
// external id. Role and push token are never overwritten by a profile refresh.
func (s *PostgresStore) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO users (id, external_id, name, email, picture_url, role, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			picture_url = EXCLUDED.picture_url,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		uuid.UUID(user.ID), user.ExternalID, user.Name, user.Email, user.PictureURL,
		string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, sentinel.ErrConflict
		}
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) UpdatePushToken(ctx context.Context, userID id.UserID, token string) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET push_token = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		uuid.UUID(userID), token)
	if err != nil {
		return fmt.Errorf("update push token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update push token: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateEmail(ctx context.Context, userID id.UserID, email string) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET email = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		uuid.UUID(userID), email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetRole(ctx context.Context, userID id.UserID, role models.Role) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`,
		uuid.UUID(userID), string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u    models.User
		uid  uuid.UUID
		role string
	)
	err := row.Scan(&uid, &u.ExternalID, &u.Name, &u.Email, &u.PictureURL, &u.PushToken, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = id.UserID(uid)
	u.Role = models.Role(role)
	return &u, nil
}
