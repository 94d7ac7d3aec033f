package ceremony

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long a begun ceremony stays completable. Browsers time
// out the authenticator prompt well before this.
const DefaultTTL = 3 * time.Minute

// Kind distinguishes registration from authentication ceremonies. A session
// begun for one kind cannot complete the other.
type Kind string

const (
	KindRegistration   Kind = "registration"
	KindAuthentication Kind = "authentication"
)

var (
	// ErrSessionNotFound indicates the ceremony session does not exist, was
	// already consumed, or was begun for a different ceremony kind.
	ErrSessionNotFound = errors.New("ceremony: session not found")

	// ErrSessionExpired indicates the ceremony session outlived its TTL.
	ErrSessionExpired = errors.New("ceremony: session expired")
)

// Session is the pending state of one in-flight ceremony.
type Session struct {
	// Kind is the ceremony this session was begun for.
	Kind Kind `json:"kind"`

	// AccountID is the account the ceremony is bound to.
	AccountID string `json:"account_id"`

	// Data is the relying party's serialized challenge state.
	Data []byte `json:"data"`

	// ExpiresAt is when the session stops being completable.
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore holds in-flight ceremony sessions. Implementations must be
// safe for concurrent use.
type SessionStore interface {
	// Put stores the session under id, replacing any existing session.
	Put(ctx context.Context, id string, session Session) error

	// Take retrieves and consumes the session stored under id. A session can
	// be taken at most once. Returns an error wrapping [ErrSessionNotFound]
	// when no session exists under id or its kind differs from kind, and
	// [ErrSessionExpired] when the session outlived its TTL. A session of
	// the wrong kind is consumed anyway; challenges never survive a
	// mismatched completion attempt.
	Take(ctx context.Context, id string, kind Kind) (Session, error)
}

// MemoryStore is an in-process SessionStore. Suitable for single-instance
// deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Put implements SessionStore.
func (m *MemoryStore) Put(_ context.Context, id string, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = session
	return nil
}

// Take implements SessionStore.
func (m *MemoryStore) Take(_ context.Context, id string, kind Kind) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	delete(m.sessions, id)

	if session.Kind != kind {
		return Session{}, ErrSessionNotFound
	}
	if m.now().After(session.ExpiresAt) {
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// Ensure MemoryStore implements SessionStore at compile time.
var _ SessionStore = (*MemoryStore)(nil)
