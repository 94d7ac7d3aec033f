package storage

import (
	"bytes"
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertions that MemStore satisfies every store contract.
var (
	_ AccountStore       = (*MemStore)(nil)
	_ CredentialStore    = (*MemStore)(nil)
	_ FaceReferenceStore = (*MemStore)(nil)
	_ EnrollmentAuditor  = (*MemStore)(nil)
	_ ComplaintStore     = (*MemStore)(nil)
	_ EventStore         = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory implementation of all storage
// contracts. It is suitable for tests and single-process deployments.
type MemStore struct {
	mu          sync.RWMutex
	accounts    map[string]Account
	credentials map[string][]Credential // keyed by account ID
	faceRefs    map[string]FaceReference
	complaints  map[string]Complaint
	events      []AuthEvent
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		accounts:    make(map[string]Account),
		credentials: make(map[string][]Credential),
		faceRefs:    make(map[string]FaceReference),
		complaints:  make(map[string]Complaint),
	}
}

// Ping satisfies the readiness probe; an in-memory store is always ready.
func (s *MemStore) Ping(ctx context.Context) error { return nil }

// CreateAccount implements [AccountStore.CreateAccount].
func (s *MemStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if identifierTaken(existing, account.Email) || identifierTaken(existing, account.Username) {
			return Account{}, ErrDuplicate
		}
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = account
	return account, nil
}

// AccountByID implements [AccountStore.AccountByID].
func (s *MemStore) AccountByID(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

// AccountByIdentifier implements [AccountStore.AccountByIdentifier].
// Iteration order is made deterministic by checking accounts sorted by ID so
// that "first match wins" is stable.
func (s *MemStore) AccountByIdentifier(ctx context.Context, value string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if identifierTaken(s.accounts[id], value) {
			return s.accounts[id], nil
		}
	}
	return Account{}, ErrNotFound
}

// UpdateAccount implements [AccountStore.UpdateAccount].
func (s *MemStore) UpdateAccount(ctx context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	s.accounts[account.ID] = account
	return nil
}

// Credentials implements [CredentialStore.Credentials].
func (s *MemStore) Credentials(ctx context.Context, accountID string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := s.credentials[accountID]
	out := make([]Credential, len(creds))
	copy(out, creds)
	return out, nil
}

// SaveCredential implements [CredentialStore.SaveCredential].
func (s *MemStore) SaveCredential(ctx context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.credentials {
		for _, c := range existing {
			if bytes.Equal(c.ID, cred.ID) {
				return ErrDuplicate
			}
		}
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	s.credentials[cred.AccountID] = append(s.credentials[cred.AccountID], cred)
	return nil
}

// UpdateSignCount implements [CredentialStore.UpdateSignCount].
func (s *MemStore) UpdateSignCount(ctx context.Context, credentialID []byte, count uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for accountID, creds := range s.credentials {
		for i, c := range creds {
			if bytes.Equal(c.ID, credentialID) {
				c.SignCount = count
				s.credentials[accountID][i] = c
				return nil
			}
		}
	}
	return ErrNotFound
}

// PutFaceReference implements [FaceReferenceStore.PutFaceReference].
func (s *MemStore) PutFaceReference(ctx context.Context, ref FaceReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.UpdatedAt.IsZero() {
		ref.UpdatedAt = time.Now().UTC()
	}
	s.faceRefs[ref.AccountID] = ref
	return nil
}

// FaceReference implements [FaceReferenceStore.FaceReference].
func (s *MemStore) FaceReference(ctx context.Context, accountID string) (FaceReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.faceRefs[accountID]
	if !ok {
		return FaceReference{}, ErrNotFound
	}
	return ref, nil
}

// SimilarEnrollments implements [EnrollmentAuditor] with a linear scan over
// cached embeddings.
func (s *MemStore) SimilarEnrollments(ctx context.Context, embedding []float32, limit int) ([]SimilarEnrollment, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SimilarEnrollment
	for _, ref := range s.faceRefs {
		if len(ref.Embedding) != len(embedding) || len(embedding) == 0 {
			continue
		}
		var sum float64
		for i := range embedding {
			d := float64(embedding[i]) - float64(ref.Embedding[i])
			sum += d * d
		}
		out = append(out, SimilarEnrollment{
			AccountID: ref.AccountID,
			Distance:  math.Sqrt(sum),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SubmitComplaint implements [ComplaintStore.SubmitComplaint].
func (s *MemStore) SubmitComplaint(ctx context.Context, c Complaint) (Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Status = ComplaintOpen
	s.complaints[c.ID] = c
	return c, nil
}

// ComplaintsByAccount implements [ComplaintStore.ComplaintsByAccount].
func (s *MemStore) ComplaintsByAccount(ctx context.Context, accountID string) ([]Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Complaint
	for _, c := range s.complaints {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sortComplaints(out)
	return out, nil
}

// AllComplaints implements [ComplaintStore.AllComplaints].
func (s *MemStore) AllComplaints(ctx context.Context) ([]Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Complaint, 0, len(s.complaints))
	for _, c := range s.complaints {
		out = append(out, c)
	}
	sortComplaints(out)
	return out, nil
}

// SetComplaintStatus implements [ComplaintStore.SetComplaintStatus].
func (s *MemStore) SetComplaintStatus(ctx context.Context, id string, status ComplaintStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.complaints[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	s.complaints[id] = c
	return nil
}

// RecordAuthEvent implements [EventStore.RecordAuthEvent].
func (s *MemStore) RecordAuthEvent(ctx context.Context, event AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

// AuthEvents implements [EventStore.AuthEvents].
func (s *MemStore) AuthEvents(ctx context.Context, limit int) ([]AuthEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AuthEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// identifierTaken reports whether value matches the account's email or
// username, case-insensitively. Empty values never match.
func identifierTaken(a Account, value string) bool {
	if value == "" {
		return false
	}
	return strings.EqualFold(a.Email, value) || strings.EqualFold(a.Username, value)
}

// sortComplaints orders complaints newest first, breaking timestamp ties by
// ID for determinism.
func sortComplaints(cs []Complaint) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.After(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}
