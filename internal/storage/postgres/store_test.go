package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbenali/signbridge/internal/storage"
	"github.com/mbenali/signbridge/internal/storage/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if SIGNBRIDGE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SIGNBRIDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SIGNBRIDGE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] over a clean schema and
// closes it when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect for schema reset: %v", err)
	}
	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS auth_events, complaints, face_references, credentials, accounts CASCADE`)
	pool.Close()
	if err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_AccountRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateAccount(ctx, storage.Account{
		Email:    "user@example.com",
		Username: "userone",
		FullName: "User One",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	got, err := store.AccountByIdentifier(ctx, "USER@Example.com")
	if err != nil {
		t.Fatalf("AccountByIdentifier: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("AccountByIdentifier = %q, want %q", got.ID, created.ID)
	}

	if _, err := store.CreateAccount(ctx, storage.Account{Email: "USER@EXAMPLE.COM", Username: "other"}); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("duplicate email err = %v, want ErrDuplicate", err)
	}
}

func TestStore_CredentialCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, storage.Account{Email: "c@d.e", Username: "cred"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	cred := storage.Credential{ID: []byte{1, 2}, AccountID: acct.ID, PublicKey: []byte{3}, SignCount: 1}
	if err := store.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
	if err := store.UpdateSignCount(ctx, cred.ID, 7); err != nil {
		t.Fatalf("UpdateSignCount: %v", err)
	}

	creds, err := store.Credentials(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if len(creds) != 1 || creds[0].SignCount != 7 {
		t.Errorf("Credentials = %+v, want one credential with SignCount 7", creds)
	}
}

func TestStore_FaceReferenceAndSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, storage.Account{Email: "f@g.h", Username: "face"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	ref := storage.FaceReference{
		AccountID: acct.ID,
		Path:      "media/face_enroll/user_" + acct.ID + ".jpg",
		Embedding: []float32{0.1, 0.2, 0.3, 0.4},
	}
	if err := store.PutFaceReference(ctx, ref); err != nil {
		t.Fatalf("PutFaceReference: %v", err)
	}

	got, err := store.FaceReference(ctx, acct.ID)
	if err != nil {
		t.Fatalf("FaceReference: %v", err)
	}
	if len(got.Embedding) != testEmbeddingDim {
		t.Errorf("embedding dim = %d, want %d", len(got.Embedding), testEmbeddingDim)
	}

	similar, err := store.SimilarEnrollments(ctx, []float32{0.1, 0.2, 0.3, 0.4}, 5)
	if err != nil {
		t.Fatalf("SimilarEnrollments: %v", err)
	}
	if len(similar) != 1 || similar[0].AccountID != acct.ID || similar[0].Distance > 1e-6 {
		t.Errorf("SimilarEnrollments = %+v, want the enrolled account at distance ~0", similar)
	}
}
