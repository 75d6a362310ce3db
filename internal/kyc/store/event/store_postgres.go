package event

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"kycvault/internal/kyc/models"
)

// PostgresStore appends events to kyc_events. Order is the BIGSERIAL seq,
// so events appended in the same instant keep their append order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e models.Event) error {
	query := `
		INSERT INTO kyc_events (id, kind, subject, requester, reference, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, e.ID, string(e.Kind), e.Subject, e.Requester, e.Reference, e.Timestamp)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string, kinds ...models.EventKind) ([]models.Event, error) {
	filter := make([]string, len(kinds))
	for i, k := range kinds {
		filter[i] = string(k)
	}

	query := `
		SELECT id, kind, subject, requester, reference, occurred_at
		FROM kyc_events
		WHERE subject = $1
		  AND (cardinality($2::text[]) = 0 OR kind = ANY($2::text[]))
		ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, subject, pq.Array(filter))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]models.Event, 0)
	for rows.Next() {
		var (
			e    models.Event
			kind string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Subject, &e.Requester, &e.Reference, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = models.EventKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}
