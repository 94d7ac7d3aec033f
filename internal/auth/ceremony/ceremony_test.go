package ceremony

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/mbenali/signbridge/internal/storage"
)

// fakeRelyingParty implements relyingParty with canned responses so
// ceremonies can run without a live authenticator.
type fakeRelyingParty struct {
	beginRegistrationSession *webauthn.SessionData
	beginRegistrationErr     error
	createCredentialResult   *webauthn.Credential
	createCredentialErr      error
	beginLoginSession        *webauthn.SessionData
	beginLoginErr            error
	validateLoginResult      *webauthn.Credential
	validateLoginErr         error

	beginRegistrationUser   webauthn.User
	beginRegistrationOpts   int
	createCredentialSession webauthn.SessionData
	validateLoginUser       webauthn.User
	validateLoginSession    webauthn.SessionData
}

func (f *fakeRelyingParty) BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	f.beginRegistrationUser = user
	f.beginRegistrationOpts = len(opts)
	if f.beginRegistrationErr != nil {
		return nil, nil, f.beginRegistrationErr
	}
	return &protocol.CredentialCreation{}, f.beginRegistrationSession, nil
}

func (f *fakeRelyingParty) CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	f.createCredentialSession = session
	return f.createCredentialResult, f.createCredentialErr
}

func (f *fakeRelyingParty) BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginLoginErr != nil {
		return nil, nil, f.beginLoginErr
	}
	return &protocol.CredentialAssertion{}, f.beginLoginSession, nil
}

func (f *fakeRelyingParty) ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	f.validateLoginUser = user
	f.validateLoginSession = session
	if f.validateLoginErr != nil {
		return nil, f.validateLoginErr
	}
	// Like the real relying party, an assertion only validates against a
	// credential the presented user owns.
	if f.validateLoginResult != nil && !ownsCredential(user, f.validateLoginResult.ID) {
		return nil, errors.New("credential not owned by user")
	}
	return f.validateLoginResult, nil
}

func ownsCredential(user webauthn.User, credID []byte) bool {
	for _, c := range user.WebAuthnCredentials() {
		if bytes.Equal(c.ID, credID) {
			return true
		}
	}
	return false
}

// fakeParser accepts any payload without decoding it.
type fakeParser struct{}

func (fakeParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return &protocol.ParsedCredentialCreationData{}, nil
}

func (fakeParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return &protocol.ParsedCredentialAssertionData{}, nil
}

func sessionData(challenge string) *webauthn.SessionData {
	return &webauthn.SessionData{Challenge: challenge}
}

// newTestEngine wires an Engine over a MemStore with one account and swaps
// in the fake relying party and parser.
func newTestEngine(t *testing.T, rp *fakeRelyingParty) (*Engine, *storage.MemStore, storage.Account) {
	t.Helper()
	store := storage.NewMemStore()
	acct, err := store.CreateAccount(context.Background(), storage.Account{
		Email:    "user@example.com",
		Username: "userone",
		FullName: "User One",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	engine, err := NewEngine(Config{
		RPID:          "signbridge.example",
		RPDisplayName: "SignBridge",
		RPOrigins:     []string{"https://signbridge.example"},
	}, NewMemoryStore(), store, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	engine.rp = rp
	engine.parser = fakeParser{}
	return engine, store, acct
}

func TestRegistrationCeremony(t *testing.T) {
	rp := &fakeRelyingParty{
		beginRegistrationSession: sessionData("reg-challenge"),
		createCredentialResult: &webauthn.Credential{
			ID:        []byte{1, 2, 3},
			PublicKey: []byte{4, 5},
			Transport: []protocol.AuthenticatorTransport{protocol.Internal},
			Authenticator: webauthn.Authenticator{
				AAGUID:    []byte{9},
				SignCount: 1,
			},
		},
	}
	engine, store, acct := newTestEngine(t, rp)
	ctx := context.Background()

	creation, sessionID, err := engine.BeginRegistration(ctx, acct.ID)
	if err != nil {
		t.Fatalf("BeginRegistration: %v", err)
	}
	if creation == nil || sessionID == "" {
		t.Fatal("BeginRegistration returned empty options or session id")
	}
	if rp.beginRegistrationOpts != 0 {
		t.Errorf("exclusion options passed for account with no credentials: %d", rp.beginRegistrationOpts)
	}
	if got := rp.beginRegistrationUser.WebAuthnName(); got != "userone" {
		t.Errorf("WebAuthnName = %q, want userone", got)
	}
	if got := rp.beginRegistrationUser.WebAuthnDisplayName(); got != "User One" {
		t.Errorf("WebAuthnDisplayName = %q, want User One", got)
	}

	cred, err := engine.CompleteRegistration(ctx, sessionID, []byte(`{}`))
	if err != nil {
		t.Fatalf("CompleteRegistration: %v", err)
	}
	if cred.AccountID != acct.ID {
		t.Errorf("credential account = %q, want %q", cred.AccountID, acct.ID)
	}
	if len(cred.Transports) != 1 || cred.Transports[0] != "internal" {
		t.Errorf("Transports = %v, want [internal]", cred.Transports)
	}

	stored, err := store.Credentials(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d credentials, want 1", len(stored))
	}

	// A second registration for the same account excludes the first
	// credential.
	_, _, err = engine.BeginRegistration(ctx, acct.ID)
	if err != nil {
		t.Fatalf("second BeginRegistration: %v", err)
	}
	if rp.beginRegistrationOpts != 1 {
		t.Errorf("exclusion options = %d, want 1", rp.beginRegistrationOpts)
	}
}

func TestCompleteRegistration_SessionConsumedOnFailure(t *testing.T) {
	rp := &fakeRelyingParty{
		beginRegistrationSession: sessionData("reg-challenge"),
		createCredentialErr:      errors.New("attestation rejected"),
	}
	engine, _, acct := newTestEngine(t, rp)
	ctx := context.Background()

	_, sessionID, err := engine.BeginRegistration(ctx, acct.ID)
	if err != nil {
		t.Fatalf("BeginRegistration: %v", err)
	}

	if _, err := engine.CompleteRegistration(ctx, sessionID, []byte(`{}`)); err == nil {
		t.Fatal("expected error from rejected attestation, got nil")
	}
	// Retrying with the same session must fail; the challenge is spent.
	if _, err := engine.CompleteRegistration(ctx, sessionID, []byte(`{}`)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("retry err = %v, want ErrSessionNotFound", err)
	}
}

func TestBeginAuthentication_NotEnrolled(t *testing.T) {
	engine, _, acct := newTestEngine(t, &fakeRelyingParty{})

	_, _, err := engine.BeginAuthentication(context.Background(), acct.ID)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("err = %v, want ErrNotEnrolled", err)
	}
}

func TestAuthenticationCeremony(t *testing.T) {
	credID := []byte{1, 2, 3}
	rp := &fakeRelyingParty{
		beginLoginSession: sessionData("auth-challenge"),
		validateLoginResult: &webauthn.Credential{
			ID:            credID,
			Authenticator: webauthn.Authenticator{SignCount: 5},
		},
	}
	engine, store, acct := newTestEngine(t, rp)
	ctx := context.Background()

	if err := store.SaveCredential(ctx, storage.Credential{
		ID:        credID,
		AccountID: acct.ID,
		PublicKey: []byte{4},
		SignCount: 2,
	}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}

	assertion, sessionID, err := engine.BeginAuthentication(ctx, acct.ID)
	if err != nil {
		t.Fatalf("BeginAuthentication: %v", err)
	}
	if assertion == nil || sessionID == "" {
		t.Fatal("BeginAuthentication returned empty assertion or session id")
	}

	got, err := engine.CompleteAuthentication(ctx, sessionID, []byte(`{}`))
	if err != nil {
		t.Fatalf("CompleteAuthentication: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("account = %q, want %q", got.ID, acct.ID)
	}
	if rp.validateLoginSession.Challenge != "auth-challenge" {
		t.Errorf("challenge = %q, want auth-challenge", rp.validateLoginSession.Challenge)
	}

	creds, err := store.Credentials(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds[0].SignCount != 5 {
		t.Errorf("SignCount = %d, want 5", creds[0].SignCount)
	}
}

func TestBeginAuthentication_ReplacesPendingCeremony(t *testing.T) {
	credID := []byte{1, 2, 3}
	rp := &fakeRelyingParty{
		beginLoginSession:   sessionData("first-challenge"),
		validateLoginResult: &webauthn.Credential{ID: credID, Authenticator: webauthn.Authenticator{SignCount: 3}},
	}
	engine, store, acct := newTestEngine(t, rp)
	ctx := context.Background()

	if err := store.SaveCredential(ctx, storage.Credential{ID: credID, AccountID: acct.ID, SignCount: 1}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}

	_, firstID, err := engine.BeginAuthentication(ctx, acct.ID)
	if err != nil {
		t.Fatalf("first BeginAuthentication: %v", err)
	}
	rp.beginLoginSession = sessionData("second-challenge")
	_, secondID, err := engine.BeginAuthentication(ctx, acct.ID)
	if err != nil {
		t.Fatalf("second BeginAuthentication: %v", err)
	}

	// The second Begin replaced the pending state, so completing validates
	// against the second challenge; the first is gone.
	if _, err := engine.CompleteAuthentication(ctx, firstID, []byte(`{}`)); err != nil {
		t.Fatalf("CompleteAuthentication: %v", err)
	}
	if rp.validateLoginSession.Challenge != "second-challenge" {
		t.Errorf("validated challenge = %q, want second-challenge", rp.validateLoginSession.Challenge)
	}

	// Only one ceremony was ever pending.
	if _, err := engine.CompleteAuthentication(ctx, secondID, []byte(`{}`)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestBeginRegistration_ReplacesPendingCeremony(t *testing.T) {
	rp := &fakeRelyingParty{
		beginRegistrationSession: sessionData("first-challenge"),
		createCredentialResult:   &webauthn.Credential{ID: []byte{8}},
	}
	engine, _, acct := newTestEngine(t, rp)
	ctx := context.Background()

	_, firstID, err := engine.BeginRegistration(ctx, acct.ID)
	if err != nil {
		t.Fatalf("first BeginRegistration: %v", err)
	}
	rp.beginRegistrationSession = sessionData("second-challenge")
	_, secondID, err := engine.BeginRegistration(ctx, acct.ID)
	if err != nil {
		t.Fatalf("second BeginRegistration: %v", err)
	}

	if _, err := engine.CompleteRegistration(ctx, firstID, []byte(`{}`)); err != nil {
		t.Fatalf("CompleteRegistration: %v", err)
	}
	if rp.createCredentialSession.Challenge != "second-challenge" {
		t.Errorf("validated challenge = %q, want second-challenge", rp.createCredentialSession.Challenge)
	}
	if _, err := engine.CompleteRegistration(ctx, secondID, []byte(`{}`)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCompleteAuthentication_OtherAccountsCredential(t *testing.T) {
	ownCredID := []byte{1}
	strayCredID := []byte{2}
	rp := &fakeRelyingParty{
		beginLoginSession: sessionData("auth-challenge"),
		// The assertion resolves to a credential the session's account does
		// not own.
		validateLoginResult: &webauthn.Credential{ID: strayCredID, Authenticator: webauthn.Authenticator{SignCount: 7}},
	}
	engine, store, acct := newTestEngine(t, rp)
	ctx := context.Background()

	other, err := store.CreateAccount(ctx, storage.Account{
		Email:    "other@example.com",
		Username: "othertwo",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := store.SaveCredential(ctx, storage.Credential{ID: ownCredID, AccountID: acct.ID, SignCount: 1}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
	if err := store.SaveCredential(ctx, storage.Credential{ID: strayCredID, AccountID: other.ID, SignCount: 4}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}

	_, sessionID, err := engine.BeginAuthentication(ctx, acct.ID)
	if err != nil {
		t.Fatalf("BeginAuthentication: %v", err)
	}
	if _, err := engine.CompleteAuthentication(ctx, sessionID, []byte(`{}`)); err == nil {
		t.Fatal("assertion over another account's credential was accepted")
	}

	// The other account's credential is untouched by the failed attempt.
	creds, err := store.Credentials(ctx, other.ID)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds[0].SignCount != 4 {
		t.Errorf("SignCount = %d, want 4", creds[0].SignCount)
	}
}

func TestCompleteAuthentication_CloneWarning(t *testing.T) {
	credID := []byte{7}
	rp := &fakeRelyingParty{
		beginLoginSession: sessionData("auth-challenge"),
		validateLoginResult: &webauthn.Credential{
			ID:            credID,
			Authenticator: webauthn.Authenticator{SignCount: 2, CloneWarning: true},
		},
	}
	engine, store, acct := newTestEngine(t, rp)
	ctx := context.Background()

	if err := store.SaveCredential(ctx, storage.Credential{ID: credID, AccountID: acct.ID, SignCount: 9}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}

	_, sessionID, err := engine.BeginAuthentication(ctx, acct.ID)
	if err != nil {
		t.Fatalf("BeginAuthentication: %v", err)
	}
	if _, err := engine.CompleteAuthentication(ctx, sessionID, []byte(`{}`)); !errors.Is(err, ErrCounterRegressed) {
		t.Errorf("err = %v, want ErrCounterRegressed", err)
	}

	// The stored counter must not move backwards after a rejected assertion.
	creds, err := store.Credentials(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if creds[0].SignCount != 9 {
		t.Errorf("SignCount = %d, want 9", creds[0].SignCount)
	}
}

func TestCompleteAuthentication_WrongKindSession(t *testing.T) {
	rp := &fakeRelyingParty{beginRegistrationSession: sessionData("reg-challenge")}
	engine, _, acct := newTestEngine(t, rp)
	ctx := context.Background()

	_, sessionID, err := engine.BeginRegistration(ctx, acct.ID)
	if err != nil {
		t.Fatalf("BeginRegistration: %v", err)
	}
	if _, err := engine.CompleteAuthentication(ctx, sessionID, []byte(`{}`)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCompleteAuthentication_ExpiredSession(t *testing.T) {
	rp := &fakeRelyingParty{beginLoginSession: sessionData("auth-challenge")}
	engine, store, acct := newTestEngine(t, rp)
	ctx := context.Background()

	if err := store.SaveCredential(ctx, storage.Credential{ID: []byte{1}, AccountID: acct.ID}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}

	base := time.Now()
	now := base
	clock := func() time.Time { return now }
	engine.now = clock
	sessions := NewMemoryStore()
	sessions.now = clock
	engine.sessions = sessions

	_, sessionID, err := engine.BeginAuthentication(ctx, acct.ID)
	if err != nil {
		t.Fatalf("BeginAuthentication: %v", err)
	}

	now = base.Add(DefaultTTL + time.Second)
	if _, err := engine.CompleteAuthentication(ctx, sessionID, []byte(`{}`)); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}
