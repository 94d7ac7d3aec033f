// Package ceremony runs WebAuthn registration and authentication ceremonies.
//
// A ceremony is a two-step challenge/response exchange with a browser
// authenticator. Begin issues the challenge and parks the relying party
// state in a [SessionStore]; Finish consumes that state exactly once and
// validates the authenticator's response. Registration stores the new
// credential, authentication verifies an existing one and advances its
// signature counter.
//
// An account has at most one pending ceremony per kind: beginning a new one
// replaces the parked state, so the earlier challenge can no longer be
// completed.
package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/mbenali/signbridge/internal/storage"
)

var (
	// ErrNotEnrolled indicates the account has no registered credentials, so
	// an authentication ceremony cannot begin.
	ErrNotEnrolled = errors.New("ceremony: account has no registered credentials")

	// ErrCounterRegressed indicates the authenticator's signature counter
	// did not advance past the stored value, which suggests a cloned
	// credential. The assertion is rejected.
	ErrCounterRegressed = errors.New("ceremony: credential signature counter regressed")
)

// relyingParty is the subset of the WebAuthn relying party used by Engine.
type relyingParty interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// responseParser parses raw browser credential responses.
type responseParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Config describes the relying party.
type Config struct {
	// RPID is the relying party identifier, normally the site's registrable
	// domain (e.g. "signbridge.example").
	RPID string

	// RPDisplayName is the human-readable relying party name shown by
	// authenticators.
	RPDisplayName string

	// RPOrigins lists the web origins allowed to complete ceremonies.
	RPOrigins []string

	// TTL bounds how long a begun ceremony stays completable. Zero means
	// DefaultTTL.
	TTL time.Duration
}

// Engine drives WebAuthn ceremonies against the account and credential
// stores. Safe for concurrent use.
type Engine struct {
	rp          relyingParty
	parser      responseParser
	sessions    SessionStore
	accounts    storage.AccountStore
	credentials storage.CredentialStore
	ttl         time.Duration
	now         func() time.Time
}

// NewEngine constructs an Engine for the relying party described by cfg.
func NewEngine(cfg Config, sessions SessionStore, accounts storage.AccountStore, credentials storage.CredentialStore) (*Engine, error) {
	if sessions == nil {
		return nil, errors.New("ceremony: session store must not be nil")
	}
	if accounts == nil {
		return nil, errors.New("ceremony: account store must not be nil")
	}
	if credentials == nil {
		return nil, errors.New("ceremony: credential store must not be nil")
	}

	rp, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("ceremony: configure relying party: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Engine{
		rp:          rp,
		parser:      defaultParser{},
		sessions:    sessions,
		accounts:    accounts,
		credentials: credentials,
		ttl:         ttl,
		now:         time.Now,
	}, nil
}

// BeginRegistration starts a registration ceremony for the account. The
// returned options are sent to the browser verbatim; the session ID comes
// back with the authenticator's response in CompleteRegistration. Already
// registered credentials are excluded so the authenticator prompts for a new
// one. A registration the account already had pending is replaced.
func (e *Engine) BeginRegistration(ctx context.Context, accountID string) (*protocol.CredentialCreation, string, error) {
	account, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, "", err
	}

	var opts []webauthn.RegistrationOption
	if creds := account.WebAuthnCredentials(); len(creds) > 0 {
		opts = append(opts, webauthn.WithExclusions(webauthn.Credentials(creds).CredentialDescriptors()))
	}

	creation, sessionData, err := e.rp.BeginRegistration(account, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("ceremony: begin registration: %w", err)
	}

	sessionID, err := e.storeSession(ctx, KindRegistration, accountID, sessionData)
	if err != nil {
		return nil, "", err
	}
	return creation, sessionID, nil
}

// CompleteRegistration validates the authenticator's response against the
// pending session and stores the resulting credential. The session is
// consumed whether or not validation succeeds.
func (e *Engine) CompleteRegistration(ctx context.Context, sessionID string, response []byte) (storage.Credential, error) {
	session, sessionData, err := e.takeSession(ctx, sessionID, KindRegistration)
	if err != nil {
		return storage.Credential{}, err
	}

	account, err := e.loadAccount(ctx, session.AccountID)
	if err != nil {
		return storage.Credential{}, err
	}

	parsed, err := e.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return storage.Credential{}, fmt.Errorf("ceremony: parse registration response: %w", err)
	}

	credential, err := e.rp.CreateCredential(account, sessionData, parsed)
	if err != nil {
		return storage.Credential{}, fmt.Errorf("ceremony: validate registration response: %w", err)
	}

	stored := storedCredential(session.AccountID, *credential, e.now())
	if err := e.credentials.SaveCredential(ctx, stored); err != nil {
		return storage.Credential{}, fmt.Errorf("ceremony: save credential: %w", err)
	}
	return stored, nil
}

// BeginAuthentication starts an authentication ceremony for the account,
// replacing any authentication the account already had pending. Returns an
// error wrapping [ErrNotEnrolled] when the account has no registered
// credentials.
func (e *Engine) BeginAuthentication(ctx context.Context, accountID string) (*protocol.CredentialAssertion, string, error) {
	account, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	if len(account.WebAuthnCredentials()) == 0 {
		return nil, "", ErrNotEnrolled
	}

	assertion, sessionData, err := e.rp.BeginLogin(account)
	if err != nil {
		return nil, "", fmt.Errorf("ceremony: begin authentication: %w", err)
	}

	sessionID, err := e.storeSession(ctx, KindAuthentication, accountID, sessionData)
	if err != nil {
		return nil, "", err
	}
	return assertion, sessionID, nil
}

// CompleteAuthentication validates the authenticator's assertion against the
// pending session. The account is re-loaded so credentials revoked after
// Begin cannot authenticate. On success the credential's signature counter is
// advanced; an assertion whose counter did not advance returns an error
// wrapping [ErrCounterRegressed].
func (e *Engine) CompleteAuthentication(ctx context.Context, sessionID string, response []byte) (storage.Account, error) {
	session, sessionData, err := e.takeSession(ctx, sessionID, KindAuthentication)
	if err != nil {
		return storage.Account{}, err
	}

	account, err := e.loadAccount(ctx, session.AccountID)
	if err != nil {
		return storage.Account{}, err
	}

	parsed, err := e.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return storage.Account{}, fmt.Errorf("ceremony: parse authentication response: %w", err)
	}

	credential, err := e.rp.ValidateLogin(account, sessionData, parsed)
	if err != nil {
		return storage.Account{}, fmt.Errorf("ceremony: validate assertion: %w", err)
	}
	if credential.Authenticator.CloneWarning {
		return storage.Account{}, ErrCounterRegressed
	}

	if err := e.credentials.UpdateSignCount(ctx, credential.ID, credential.Authenticator.SignCount); err != nil {
		return storage.Account{}, fmt.Errorf("ceremony: update sign count: %w", err)
	}
	return account.account, nil
}

// storeSession serializes the relying party state and parks it under the
// account's session key for the kind. The key is deterministic so a repeated
// Begin replaces the prior pending ceremony instead of leaving both
// completable. The ceremony is still only completable with an assertion
// signed over the parked challenge, so the key carries no secret.
func (e *Engine) storeSession(ctx context.Context, kind Kind, accountID string, sessionData *webauthn.SessionData) (string, error) {
	if sessionData == nil {
		return "", errors.New("ceremony: relying party returned no session data")
	}
	payload, err := json.Marshal(sessionData)
	if err != nil {
		return "", fmt.Errorf("ceremony: encode session data: %w", err)
	}

	sessionID := sessionKey(kind, accountID)
	err = e.sessions.Put(ctx, sessionID, Session{
		Kind:      kind,
		AccountID: accountID,
		Data:      payload,
		ExpiresAt: e.now().Add(e.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("ceremony: store session: %w", err)
	}
	return sessionID, nil
}

// sessionKey scopes the parked state to one ceremony kind per account.
func sessionKey(kind Kind, accountID string) string {
	return string(kind) + ":" + accountID
}

// takeSession consumes the pending session and decodes its relying party
// state.
func (e *Engine) takeSession(ctx context.Context, sessionID string, kind Kind) (Session, webauthn.SessionData, error) {
	session, err := e.sessions.Take(ctx, sessionID, kind)
	if err != nil {
		return Session{}, webauthn.SessionData{}, err
	}
	var sessionData webauthn.SessionData
	if err := json.Unmarshal(session.Data, &sessionData); err != nil {
		return Session{}, webauthn.SessionData{}, fmt.Errorf("ceremony: decode session data: %w", err)
	}
	return session, sessionData, nil
}

// loadAccount assembles the webauthn.User view of an account and its stored
// credentials.
func (e *Engine) loadAccount(ctx context.Context, accountID string) (*webauthnAccount, error) {
	account, err := e.accounts.AccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: load account: %w", err)
	}
	stored, err := e.credentials.Credentials(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: load credentials: %w", err)
	}
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		creds = append(creds, webauthnCredential(c))
	}
	return &webauthnAccount{account: account, credentials: creds}, nil
}

// webauthnAccount adapts a storage.Account to the webauthn.User interface.
type webauthnAccount struct {
	account     storage.Account
	credentials []webauthn.Credential
}

func (a *webauthnAccount) WebAuthnID() []byte {
	return []byte(a.account.ID)
}

func (a *webauthnAccount) WebAuthnName() string {
	return a.account.Username
}

func (a *webauthnAccount) WebAuthnDisplayName() string {
	if a.account.FullName != "" {
		return a.account.FullName
	}
	return a.account.Username
}

func (a *webauthnAccount) WebAuthnCredentials() []webauthn.Credential {
	return a.credentials
}

// webauthnCredential converts a stored credential into the relying party's
// representation.
func webauthnCredential(c storage.Credential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:        c.ID,
		PublicKey: c.PublicKey,
		Transport: transports,
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// storedCredential converts a freshly created credential into its stored
// representation.
func storedCredential(accountID string, c webauthn.Credential, now time.Time) storage.Credential {
	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}
	return storage.Credential{
		ID:         c.ID,
		AccountID:  accountID,
		PublicKey:  c.PublicKey,
		AAGUID:     c.Authenticator.AAGUID,
		SignCount:  c.Authenticator.SignCount,
		Transports: transports,
		CreatedAt:  now,
	}
}
