package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mbenali/signbridge/internal/storage"
)

// Credentials implements [storage.CredentialStore.Credentials].
func (s *Store) Credentials(ctx context.Context, accountID string) ([]storage.Credential, error) {
	const q = `
		SELECT id, account_id, public_key, aaguid, sign_count, transports, created_at
		FROM   credentials
		WHERE  account_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list credentials: %w", mapError(err))
	}

	creds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Credential, error) {
		var (
			c         storage.Credential
			signCount int64
		)
		if err := row.Scan(&c.ID, &c.AccountID, &c.PublicKey, &c.AAGUID, &signCount, &c.Transports, &c.CreatedAt); err != nil {
			return storage.Credential{}, err
		}
		c.SignCount = uint32(signCount)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: collect credentials: %w", mapError(err))
	}
	return creds, nil
}

// SaveCredential implements [storage.CredentialStore.SaveCredential].
func (s *Store) SaveCredential(ctx context.Context, cred storage.Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO credentials (id, account_id, public_key, aaguid, sign_count, transports, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		cred.ID,
		cred.AccountID,
		cred.PublicKey,
		cred.AAGUID,
		int64(cred.SignCount),
		cred.Transports,
		cred.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save credential: %w", mapError(err))
	}
	return nil
}

// UpdateSignCount implements [storage.CredentialStore.UpdateSignCount].
func (s *Store) UpdateSignCount(ctx context.Context, credentialID []byte, count uint32) error {
	const q = `UPDATE credentials SET sign_count = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, credentialID, int64(count))
	if err != nil {
		return fmt.Errorf("postgres: update sign count: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
