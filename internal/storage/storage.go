// Package storage defines the persistence contracts consumed by the
// authentication and sign-resolution services: accounts, registered WebAuthn
// credentials, face enrollment references, complaints, and the auth event
// log.
//
// Two implementations exist: [MemStore] for tests and single-process use, and
// the PostgreSQL-backed store in the postgres subpackage. All implementations
// must be safe for concurrent use.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate is returned by create operations when a uniqueness constraint
// (account email/username, credential ID) is violated.
var ErrDuplicate = errors.New("storage: duplicate record")

// Account is a registered user. Email and Username are both account
// identifiers; sign-in accepts either, matched case-insensitively.
type Account struct {
	ID       string
	Email    string
	Username string
	FullName string

	// PasswordHash is the bcrypt hash of the account password. Empty for
	// accounts that only enrolled passwordless factors.
	PasswordHash []byte

	// Profile fields.
	Phone          string
	BirthDate      time.Time
	HasDisability  bool
	DisabilityType string

	// ProfilePhotoPath is the optional general profile photograph, used as
	// the face-match reference when no dedicated enrollment capture exists.
	ProfilePhotoPath string

	// Superuser accounts are routed to elevated-privilege views after
	// authentication.
	Superuser bool

	CreatedAt time.Time
}

// Credential is one registered WebAuthn authenticator, owned by exactly one
// account. Only SignCount is ever mutated after creation.
type Credential struct {
	// ID is the authenticator-assigned credential identifier, globally
	// unique, opaque binary.
	ID []byte

	AccountID string

	// PublicKey is the COSE-encoded, algorithm-tagged public key material.
	PublicKey []byte

	// AAGUID identifies the authenticator model.
	AAGUID []byte

	// SignCount is the signature counter reported by the authenticator.
	// It must never decrease across successful authentications; a decrease
	// is a replay indicator and is surfaced, not ignored.
	SignCount uint32

	// Transports the authenticator advertised at registration (usb, nfc,
	// ble, internal). Informational.
	Transports []string

	CreatedAt time.Time
}

// FaceReference is the at-most-one active biometric reference for an
// account: the dedicated enrollment capture. It is overwritten on
// re-enrollment, never versioned.
type FaceReference struct {
	AccountID string

	// Path is the deterministic on-disk location of the enrollment image.
	Path string

	// Embedding is the cached reference face embedding, populated when the
	// encoder was available at enrollment time. May be nil; verification
	// then re-encodes from Path.
	Embedding []float32

	UpdatedAt time.Time
}

// ComplaintStatus tracks back-office handling of a complaint.
type ComplaintStatus string

const (
	ComplaintOpen     ComplaintStatus = "open"
	ComplaintResolved ComplaintStatus = "resolved"
)

// IsValid reports whether s is a recognised complaint status.
func (s ComplaintStatus) IsValid() bool {
	return s == ComplaintOpen || s == ComplaintResolved
}

// Complaint is a user-submitted réclamation.
type Complaint struct {
	ID        string
	AccountID string
	Subject   string
	Body      string
	Status    ComplaintStatus
	CreatedAt time.Time
}

// AuthEvent is one audit-log entry for an authentication attempt.
type AuthEvent struct {
	ID        string
	AccountID string

	// Method is the factor used: "password", "webauthn", or "face".
	Method string

	// Outcome is "success" or a structured failure reason.
	Outcome string

	// Distance carries the biometric distance for face attempts; nil for
	// other methods.
	Distance *float64

	CreatedAt time.Time
}

// AccountStore persists accounts.
type AccountStore interface {
	// CreateAccount stores a new account. Returns [ErrDuplicate] when the
	// email or username is already taken (case-insensitive).
	CreateAccount(ctx context.Context, account Account) (Account, error)

	// AccountByID returns the account with the given ID or [ErrNotFound].
	AccountByID(ctx context.Context, id string) (Account, error)

	// AccountByIdentifier matches value case-insensitively against both the
	// email and username fields; the first match wins. Returns
	// [ErrNotFound] when neither field matches any account.
	AccountByIdentifier(ctx context.Context, value string) (Account, error)

	// UpdateAccount replaces the stored account. Returns [ErrNotFound]
	// when the account does not exist.
	UpdateAccount(ctx context.Context, account Account) error
}

// CredentialStore persists registered WebAuthn credentials.
type CredentialStore interface {
	// Credentials lists every credential registered to the account, in
	// registration order. An account with no credentials yields an empty
	// slice, not an error.
	Credentials(ctx context.Context, accountID string) ([]Credential, error)

	// SaveCredential stores a newly registered credential. Returns
	// [ErrDuplicate] when the credential ID already exists.
	SaveCredential(ctx context.Context, cred Credential) error

	// UpdateSignCount records the new signature counter after a successful
	// authentication. Returns [ErrNotFound] for an unknown credential ID.
	UpdateSignCount(ctx context.Context, credentialID []byte, count uint32) error
}

// FaceReferenceStore persists the per-account enrollment reference.
type FaceReferenceStore interface {
	// PutFaceReference stores or overwrites the account's reference.
	PutFaceReference(ctx context.Context, ref FaceReference) error

	// FaceReference returns the account's reference or [ErrNotFound].
	FaceReference(ctx context.Context, accountID string) (FaceReference, error)
}

// SimilarEnrollment is one row of the back-office duplicate-enrollment audit.
type SimilarEnrollment struct {
	AccountID string
	Distance  float64
}

// EnrollmentAuditor ranks stored reference embeddings by distance to a probe
// embedding. Used by the back-office to spot one face enrolled across
// several accounts.
type EnrollmentAuditor interface {
	// SimilarEnrollments returns up to limit enrollments ordered by L2
	// distance to embedding, closest first. Accounts without a cached
	// embedding are skipped.
	SimilarEnrollments(ctx context.Context, embedding []float32, limit int) ([]SimilarEnrollment, error)
}

// ComplaintStore persists complaints.
type ComplaintStore interface {
	// SubmitComplaint stores a new complaint and returns it with its
	// generated ID and [ComplaintOpen] status.
	SubmitComplaint(ctx context.Context, c Complaint) (Complaint, error)

	// ComplaintsByAccount lists the account's complaints, newest first.
	ComplaintsByAccount(ctx context.Context, accountID string) ([]Complaint, error)

	// AllComplaints lists every complaint, newest first. Back-office only.
	AllComplaints(ctx context.Context) ([]Complaint, error)

	// SetComplaintStatus updates handling status. Returns [ErrNotFound]
	// for an unknown complaint ID.
	SetComplaintStatus(ctx context.Context, id string, status ComplaintStatus) error
}

// EventStore records authentication attempts for the back-office audit view.
type EventStore interface {
	// RecordAuthEvent appends an audit entry. Failures here must not block
	// the authentication path; callers log and continue.
	RecordAuthEvent(ctx context.Context, event AuthEvent) error

	// AuthEvents lists recent events, newest first, at most limit entries.
	AuthEvents(ctx context.Context, limit int) ([]AuthEvent, error)
}
