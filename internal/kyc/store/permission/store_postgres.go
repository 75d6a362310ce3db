package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kycvault/internal/kyc/models"
	"kycvault/pkg/platform/sentinel"
)

// PostgresStore persists permissions in PostgreSQL.
// This store is pure I/O; transition rules live on the model.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const permissionColumns = `id, request_id, subject, requester, status, requested_at, approved_at, revoked_at`

// Request upserts the pair, clobbering whatever state it held.
func (s *PostgresStore) Request(ctx context.Context, p *models.Permission) error {
	query := `
		INSERT INTO access_permissions (` + permissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subject, requester) DO UPDATE SET
			id = EXCLUDED.id,
			request_id = EXCLUDED.request_id,
			status = EXCLUDED.status,
			requested_at = EXCLUDED.requested_at,
			approved_at = EXCLUDED.approved_at,
			revoked_at = EXCLUDED.revoked_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.RequestID, p.Subject, p.Requester, string(p.Status),
		p.RequestedAt, p.ApprovedAt, p.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("request permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subject, requester string) (*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM access_permissions WHERE subject = $1 AND requester = $2`
	p, err := scanPermission(s.db.QueryRowContext(ctx, query, subject, requester))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, subject, requester string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM access_permissions WHERE subject = $1 AND requester = $2`, subject, requester)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

// Execute locks the row with SELECT ... FOR UPDATE for the duration of
// validate and mutate, then writes the result in the same transaction.
func (s *PostgresStore) Execute(ctx context.Context, subject, requester string, validate func(*models.Permission) error, mutate func(*models.Permission)) (*models.Permission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin permission tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + permissionColumns + ` FROM access_permissions WHERE subject = $1 AND requester = $2 FOR UPDATE`
	p, err := scanPermission(tx.QueryRowContext(ctx, query, subject, requester))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock permission: %w", err)
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)

	update := `
		UPDATE access_permissions
		SET status = $3, approved_at = $4, revoked_at = $5
		WHERE subject = $1 AND requester = $2
	`
	if _, err := tx.ExecContext(ctx, update, subject, requester, string(p.Status), p.ApprovedAt, p.RevokedAt); err != nil {
		return nil, fmt.Errorf("update permission: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit permission: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM access_permissions WHERE subject = $1 ORDER BY requested_at, requester`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (*models.Permission, error) {
	var (
		p          models.Permission
		status     string
		approvedAt sql.NullTime
		revokedAt  sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.RequestID, &p.Subject, &p.Requester, &status, &p.RequestedAt, &approvedAt, &revokedAt); err != nil {
		return nil, err
	}
	p.Status = models.PermissionStatus(status)
	if approvedAt.Valid {
		t := approvedAt.Time
		p.ApprovedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		p.RevokedAt = &t
	}
	return &p, nil
}
