package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mbenali/signbridge/internal/storage"
)

const accountColumns = `id, email, username, full_name, password_hash, phone,
	birth_date, has_disability, disability_type, profile_photo_path,
	superuser, created_at`

// CreateAccount implements [storage.AccountStore.CreateAccount].
func (s *Store) CreateAccount(ctx context.Context, account storage.Account) (storage.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO accounts
		    (id, email, username, full_name, password_hash, phone, birth_date,
		     has_disability, disability_type, profile_photo_path, superuser, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, q,
		account.ID,
		account.Email,
		account.Username,
		account.FullName,
		account.PasswordHash,
		account.Phone,
		nullableTime(account.BirthDate),
		account.HasDisability,
		account.DisabilityType,
		account.ProfilePhotoPath,
		account.Superuser,
		account.CreatedAt,
	)
	if err != nil {
		return storage.Account{}, fmt.Errorf("postgres: create account: %w", mapError(err))
	}
	return account, nil
}

// AccountByID implements [storage.AccountStore.AccountByID].
func (s *Store) AccountByID(ctx context.Context, id string) (storage.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return s.scanAccount(s.pool.QueryRow(ctx, q, id))
}

// AccountByIdentifier implements [storage.AccountStore.AccountByIdentifier].
// Email matches take priority over username matches so the first-match-wins
// rule is deterministic.
func (s *Store) AccountByIdentifier(ctx context.Context, value string) (storage.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts
		WHERE lower(email) = lower($1) OR lower(username) = lower($1)
		ORDER BY (lower(email) = lower($1)) DESC, id
		LIMIT 1`
	return s.scanAccount(s.pool.QueryRow(ctx, q, value))
}

// UpdateAccount implements [storage.AccountStore.UpdateAccount].
func (s *Store) UpdateAccount(ctx context.Context, account storage.Account) error {
	const q = `
		UPDATE accounts SET
		    email = $2, username = $3, full_name = $4, password_hash = $5,
		    phone = $6, birth_date = $7, has_disability = $8,
		    disability_type = $9, profile_photo_path = $10, superuser = $11
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		account.ID,
		account.Email,
		account.Username,
		account.FullName,
		account.PasswordHash,
		account.Phone,
		nullableTime(account.BirthDate),
		account.HasDisability,
		account.DisabilityType,
		account.ProfilePhotoPath,
		account.Superuser,
	)
	if err != nil {
		return fmt.Errorf("postgres: update account: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanAccount reads one account row.
func (s *Store) scanAccount(row pgx.Row) (storage.Account, error) {
	var (
		a         storage.Account
		birthDate *time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Username,
		&a.FullName,
		&a.PasswordHash,
		&a.Phone,
		&birthDate,
		&a.HasDisability,
		&a.DisabilityType,
		&a.ProfilePhotoPath,
		&a.Superuser,
		&a.CreatedAt,
	)
	if err != nil {
		return storage.Account{}, fmt.Errorf("postgres: scan account: %w", mapError(err))
	}
	if birthDate != nil {
		a.BirthDate = *birthDate
	}
	return a, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
