// Package postgres implements the storage contracts on PostgreSQL using
// pgx. Face reference embeddings are stored in a pgvector column so that
// back-office audit queries can rank enrollments by similarity.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mbenali/signbridge/internal/storage"
)

// Compile-time interface checks.
var (
	_ storage.AccountStore       = (*Store)(nil)
	_ storage.CredentialStore    = (*Store)(nil)
	_ storage.FaceReferenceStore = (*Store)(nil)
	_ storage.EnrollmentAuditor  = (*Store)(nil)
	_ storage.ComplaintStore     = (*Store)(nil)
	_ storage.EventStore         = (*Store)(nil)
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations, mapped to [storage.ErrDuplicate].
const uniqueViolation = "23505"

// Store is the PostgreSQL-backed implementation of every storage contract.
// It holds a single [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection, and runs the schema migration.
//
// embeddingDimensions must match the face encoder's output dimension (e.g.,
// 128 for dlib-style face embeddings). Changing it after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// migrate creates the schema. Statements are idempotent so the migration can
// run on every startup.
func migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		embeddingDimensions = 128
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id                 TEXT PRIMARY KEY,
			email              TEXT NOT NULL,
			username           TEXT NOT NULL,
			full_name          TEXT NOT NULL DEFAULT '',
			password_hash      BYTEA,
			phone              TEXT NOT NULL DEFAULT '',
			birth_date         TIMESTAMPTZ,
			has_disability     BOOLEAN NOT NULL DEFAULT FALSE,
			disability_type    TEXT NOT NULL DEFAULT '',
			profile_photo_path TEXT NOT NULL DEFAULT '',
			superuser          BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (lower(email))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_key ON accounts (lower(username))`,

		`CREATE TABLE IF NOT EXISTS credentials (
			id         BYTEA PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			public_key BYTEA NOT NULL,
			aaguid     BYTEA,
			sign_count BIGINT NOT NULL DEFAULT 0,
			transports TEXT[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS credentials_account_idx ON credentials (account_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS face_references (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
			path       TEXT NOT NULL,
			embedding  vector(%d),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, embeddingDimensions),

		`CREATE TABLE IF NOT EXISTS complaints (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			subject    TEXT NOT NULL,
			body       TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS complaints_account_idx ON complaints (account_id, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS auth_events (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL DEFAULT '',
			method     TEXT NOT NULL,
			outcome    TEXT NOT NULL,
			distance   DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS auth_events_created_idx ON auth_events (created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// mapError converts pgx-level errors to the storage sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicate
	}
	return err
}
