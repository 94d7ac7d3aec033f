package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mbenali/signbridge/internal/storage"
)

// SubmitComplaint implements [storage.ComplaintStore.SubmitComplaint].
func (s *Store) SubmitComplaint(ctx context.Context, c storage.Complaint) (storage.Complaint, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Status = storage.ComplaintOpen

	const q = `
		INSERT INTO complaints (id, account_id, subject, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, q, c.ID, c.AccountID, c.Subject, c.Body, string(c.Status), c.CreatedAt); err != nil {
		return storage.Complaint{}, fmt.Errorf("postgres: submit complaint: %w", mapError(err))
	}
	return c, nil
}

// ComplaintsByAccount implements [storage.ComplaintStore.ComplaintsByAccount].
func (s *Store) ComplaintsByAccount(ctx context.Context, accountID string) ([]storage.Complaint, error) {
	const q = `
		SELECT id, account_id, subject, body, status, created_at
		FROM   complaints
		WHERE  account_id = $1
		ORDER  BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: complaints by account: %w", mapError(err))
	}
	return collectComplaints(rows)
}

// AllComplaints implements [storage.ComplaintStore.AllComplaints].
func (s *Store) AllComplaints(ctx context.Context) ([]storage.Complaint, error) {
	const q = `
		SELECT id, account_id, subject, body, status, created_at
		FROM   complaints
		ORDER  BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: all complaints: %w", mapError(err))
	}
	return collectComplaints(rows)
}

// SetComplaintStatus implements [storage.ComplaintStore.SetComplaintStatus].
func (s *Store) SetComplaintStatus(ctx context.Context, id string, status storage.ComplaintStatus) error {
	const q = `UPDATE complaints SET status = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: set complaint status: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func collectComplaints(rows pgx.Rows) ([]storage.Complaint, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Complaint, error) {
		var (
			c      storage.Complaint
			status string
		)
		if err := row.Scan(&c.ID, &c.AccountID, &c.Subject, &c.Body, &status, &c.CreatedAt); err != nil {
			return storage.Complaint{}, err
		}
		c.Status = storage.ComplaintStatus(status)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: collect complaints: %w", err)
	}
	return out, nil
}

// RecordAuthEvent implements [storage.EventStore.RecordAuthEvent].
func (s *Store) RecordAuthEvent(ctx context.Context, event storage.AuthEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO auth_events (id, account_id, method, outcome, distance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, q, event.ID, event.AccountID, event.Method, event.Outcome, event.Distance, event.CreatedAt); err != nil {
		return fmt.Errorf("postgres: record auth event: %w", mapError(err))
	}
	return nil
}

// AuthEvents implements [storage.EventStore.AuthEvents].
func (s *Store) AuthEvents(ctx context.Context, limit int) ([]storage.AuthEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	const q = `
		SELECT id, account_id, method, outcome, distance, created_at
		FROM   auth_events
		ORDER  BY created_at DESC, id
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: auth events: %w", mapError(err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.AuthEvent, error) {
		var e storage.AuthEvent
		err := row.Scan(&e.ID, &e.AccountID, &e.Method, &e.Outcome, &e.Distance, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: collect auth events: %w", err)
	}
	return out, nil
}
