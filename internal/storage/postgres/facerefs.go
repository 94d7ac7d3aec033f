package postgres

import (
	"context"
	"fmt"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mbenali/signbridge/internal/storage"
)

// PutFaceReference implements [storage.FaceReferenceStore.PutFaceReference].
// Re-enrollment replaces the previous reference completely.
func (s *Store) PutFaceReference(ctx context.Context, ref storage.FaceReference) error {
	if ref.UpdatedAt.IsZero() {
		ref.UpdatedAt = time.Now().UTC()
	}

	var embedding any
	if len(ref.Embedding) > 0 {
		embedding = pgvector.NewVector(ref.Embedding)
	}

	const q = `
		INSERT INTO face_references (account_id, path, embedding, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
		    path       = EXCLUDED.path,
		    embedding  = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, q, ref.AccountID, ref.Path, embedding, ref.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: put face reference: %w", mapError(err))
	}
	return nil
}

// FaceReference implements [storage.FaceReferenceStore.FaceReference].
func (s *Store) FaceReference(ctx context.Context, accountID string) (storage.FaceReference, error) {
	const q = `SELECT account_id, path, embedding, updated_at FROM face_references WHERE account_id = $1`

	var (
		ref storage.FaceReference
		vec *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q, accountID).Scan(&ref.AccountID, &ref.Path, &vec, &ref.UpdatedAt)
	if err != nil {
		return storage.FaceReference{}, fmt.Errorf("postgres: face reference: %w", mapError(err))
	}
	if vec != nil {
		ref.Embedding = vec.Slice()
	}
	return ref, nil
}

// SimilarEnrollments implements [storage.EnrollmentAuditor] with a pgvector
// L2 distance query.
func (s *Store) SimilarEnrollments(ctx context.Context, embedding []float32, limit int) ([]storage.SimilarEnrollment, error) {
	if limit <= 0 {
		limit = 10
	}

	const q = `
		SELECT account_id, embedding <-> $1 AS distance
		FROM   face_references
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: similar enrollments: %w", mapError(err))
	}
	defer rows.Close()

	var out []storage.SimilarEnrollment
	for rows.Next() {
		var e storage.SimilarEnrollment
		if err := rows.Scan(&e.AccountID, &e.Distance); err != nil {
			return nil, fmt.Errorf("postgres: scan similar enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: similar enrollments: %w", err)
	}
	return out, nil
}
