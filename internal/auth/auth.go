// Package auth orchestrates the multi-factor sign-in flows.
//
// It resolves accounts by email or username, checks passwords, delegates
// face verification to [facematch] and WebAuthn ceremonies to [ceremony],
// mints session tokens on success, and records every attempt in the audit
// log. Failed password and face sign-ins are reported as a single opaque
// error so a caller cannot probe which factor was wrong.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbenali/signbridge/internal/auth/ceremony"
	"github.com/mbenali/signbridge/internal/facematch"
	"github.com/mbenali/signbridge/internal/storage"
)

// Authentication methods recorded in the audit log.
const (
	MethodPassword = "password"
	MethodWebAuthn = "webauthn"
	MethodFace     = "face"
)

// Landing paths after a successful sign-in.
const (
	LandingHome       = "/home"
	LandingBackoffice = "/backoffice"
)

// ErrInvalidCredentials is the opaque failure for password and face
// sign-ins. It deliberately does not say whether the account exists, the
// password was wrong, or the face did not match.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Session is a successful sign-in.
type Session struct {
	Token   string
	Account storage.Account

	// LandingPath is where the client should navigate next. Superusers land
	// in the back-office.
	LandingPath string
}

// Authenticator drives the sign-up and sign-in flows. Safe for concurrent
// use.
type Authenticator struct {
	accounts   storage.AccountStore
	events     storage.EventStore
	verifier   *facematch.Verifier
	ceremonies *ceremony.Engine
	tokens     *TokenIssuer
	logger     *slog.Logger
}

// New constructs an Authenticator over the given collaborators.
func New(accounts storage.AccountStore, events storage.EventStore, verifier *facematch.Verifier, ceremonies *ceremony.Engine, tokens *TokenIssuer, logger *slog.Logger) (*Authenticator, error) {
	if accounts == nil {
		return nil, errors.New("auth: account store must not be nil")
	}
	if events == nil {
		return nil, errors.New("auth: event store must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("auth: face verifier must not be nil")
	}
	if ceremonies == nil {
		return nil, errors.New("auth: ceremony engine must not be nil")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		accounts:   accounts,
		events:     events,
		verifier:   verifier,
		ceremonies: ceremonies,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// SignUpRequest carries the fields of the registration form. BirthDate is
// the raw form value in YYYY-MM-DD format; empty means not provided.
type SignUpRequest struct {
	Email           string
	Username        string
	FullName        string
	Password        string
	PasswordConfirm string
	Phone           string
	BirthDate       string
	HasDisability   bool
	DisabilityType  string
}

// birthDateLayout is the wire format of the registration form's birth date.
const birthDateLayout = "2006-01-02"

// SignUp validates the request and creates the account with a bcrypt
// password hash. Validation problems are joined into a single error;
// a taken email or username surfaces as [storage.ErrDuplicate].
func (a *Authenticator) SignUp(ctx context.Context, req SignUpRequest) (storage.Account, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(req.FullName)

	var errs []error
	if req.Email == "" {
		errs = append(errs, errors.New("email is required"))
	} else if !strings.Contains(req.Email, "@") {
		errs = append(errs, errors.New("email must contain @"))
	}
	if req.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if len(req.Password) < 8 {
		errs = append(errs, errors.New("password must be at least 8 characters"))
	}
	if req.Password != req.PasswordConfirm {
		errs = append(errs, errors.New("passwords do not match"))
	}
	var birthDate time.Time
	if s := strings.TrimSpace(req.BirthDate); s != "" {
		parsed, err := time.Parse(birthDateLayout, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("birth_date %q must use the %s format", s, birthDateLayout))
		}
		birthDate = parsed
	}
	if len(errs) > 0 {
		return storage.Account{}, fmt.Errorf("auth: sign up: %w", errors.Join(errs...))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return storage.Account{}, fmt.Errorf("auth: hash password: %w", err)
	}

	account, err := a.accounts.CreateAccount(ctx, storage.Account{
		Email:          req.Email,
		Username:       req.Username,
		FullName:       req.FullName,
		PasswordHash:   hash,
		Phone:          strings.TrimSpace(req.Phone),
		BirthDate:      birthDate,
		HasDisability:  req.HasDisability,
		DisabilityType: strings.TrimSpace(req.DisabilityType),
	})
	if err != nil {
		return storage.Account{}, fmt.Errorf("auth: create account: %w", err)
	}
	return account, nil
}

// ResolveAccount finds the account for an email or username,
// case-insensitively. Returns [storage.ErrNotFound] when no account matches.
func (a *Authenticator) ResolveAccount(ctx context.Context, identifier string) (storage.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return storage.Account{}, storage.ErrNotFound
	}
	return a.accounts.AccountByIdentifier(ctx, identifier)
}

// PasswordSignIn checks the identifier and password and mints a session.
// Unknown accounts and wrong passwords both return [ErrInvalidCredentials].
func (a *Authenticator) PasswordSignIn(ctx context.Context, identifier, password string) (Session, error) {
	account, err := a.ResolveAccount(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.recordEvent(ctx, storage.AuthEvent{Method: MethodPassword, Outcome: "unknown_account"})
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("auth: resolve account: %w", err)
	}

	if len(account.PasswordHash) == 0 ||
		bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) != nil {
		a.recordEvent(ctx, storage.AuthEvent{AccountID: account.ID, Method: MethodPassword, Outcome: "wrong_password"})
		return Session{}, ErrInvalidCredentials
	}

	session, err := a.mintSession(account)
	if err != nil {
		return Session{}, err
	}
	a.recordEvent(ctx, storage.AuthEvent{AccountID: account.ID, Method: MethodPassword, Outcome: "success"})
	return session, nil
}

// FaceSignIn verifies a webcam capture against the account's face reference
// and mints a session on a match. The returned decision carries the measured
// distance even when the capture is rejected, so the caller can show it.
// Unknown accounts and non-matching captures return [ErrInvalidCredentials];
// capture problems (undecodable payload, zero or multiple faces, missing
// reference) surface their own sentinels from [facematch].
func (a *Authenticator) FaceSignIn(ctx context.Context, identifier, capture string) (Session, facematch.Decision, error) {
	account, err := a.ResolveAccount(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.recordEvent(ctx, storage.AuthEvent{Method: MethodFace, Outcome: "unknown_account"})
			return Session{}, facematch.Decision{}, ErrInvalidCredentials
		}
		return Session{}, facematch.Decision{}, fmt.Errorf("auth: resolve account: %w", err)
	}

	decision, err := a.verifier.Verify(ctx, account.ID, capture)
	if err != nil {
		a.recordEvent(ctx, storage.AuthEvent{
			AccountID: account.ID,
			Method:    MethodFace,
			Outcome:   faceFailureOutcome(err),
		})
		return Session{}, decision, err
	}
	if !decision.Match {
		distance := decision.Distance
		a.recordEvent(ctx, storage.AuthEvent{
			AccountID: account.ID,
			Method:    MethodFace,
			Outcome:   "no_match",
			Distance:  &distance,
		})
		return Session{}, decision, ErrInvalidCredentials
	}

	session, err := a.mintSession(account)
	if err != nil {
		return Session{}, decision, err
	}
	distance := decision.Distance
	a.recordEvent(ctx, storage.AuthEvent{
		AccountID: account.ID,
		Method:    MethodFace,
		Outcome:   "success",
		Distance:  &distance,
	})
	return session, decision, nil
}

// BeginPasskeyRegistration starts a WebAuthn registration ceremony for a
// signed-in account.
func (a *Authenticator) BeginPasskeyRegistration(ctx context.Context, accountID string) (*protocol.CredentialCreation, string, error) {
	return a.ceremonies.BeginRegistration(ctx, accountID)
}

// CompletePasskeyRegistration finishes a registration ceremony and stores
// the new credential.
func (a *Authenticator) CompletePasskeyRegistration(ctx context.Context, ceremonyID string, response []byte) (storage.Credential, error) {
	return a.ceremonies.CompleteRegistration(ctx, ceremonyID, response)
}

// BeginPasskeyLogin starts a WebAuthn authentication ceremony for the
// account behind the identifier. Unknown accounts return
// [ErrInvalidCredentials]; accounts without credentials return
// [ceremony.ErrNotEnrolled].
func (a *Authenticator) BeginPasskeyLogin(ctx context.Context, identifier string) (*protocol.CredentialAssertion, string, error) {
	account, err := a.ResolveAccount(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("auth: resolve account: %w", err)
	}
	return a.ceremonies.BeginAuthentication(ctx, account.ID)
}

// CompletePasskeyLogin finishes an authentication ceremony and mints a
// session for the validated account.
func (a *Authenticator) CompletePasskeyLogin(ctx context.Context, ceremonyID string, response []byte) (Session, error) {
	account, err := a.ceremonies.CompleteAuthentication(ctx, ceremonyID, response)
	if err != nil {
		a.recordEvent(ctx, storage.AuthEvent{Method: MethodWebAuthn, Outcome: webauthnFailureOutcome(err)})
		return Session{}, err
	}

	session, err := a.mintSession(account)
	if err != nil {
		return Session{}, err
	}
	a.recordEvent(ctx, storage.AuthEvent{AccountID: account.ID, Method: MethodWebAuthn, Outcome: "success"})
	return session, nil
}

// VerifySession validates a session token and returns its claims.
func (a *Authenticator) VerifySession(token string) (Claims, error) {
	return a.tokens.Verify(token)
}

func (a *Authenticator) mintSession(account storage.Account) (Session, error) {
	token, err := a.tokens.Mint(account.ID, account.Superuser)
	if err != nil {
		return Session{}, err
	}
	landing := LandingHome
	if account.Superuser {
		landing = LandingBackoffice
	}
	return Session{Token: token, Account: account, LandingPath: landing}, nil
}

// recordEvent appends an audit entry. Audit failures are logged, never
// surfaced; they must not block a sign-in.
func (a *Authenticator) recordEvent(ctx context.Context, event storage.AuthEvent) {
	if err := a.events.RecordAuthEvent(ctx, event); err != nil {
		a.logger.Warn("failed to record auth event",
			slog.String("method", event.Method),
			slog.String("outcome", event.Outcome),
			slog.Any("error", err))
	}
}

// faceFailureOutcome maps a face verification error onto a stable audit
// outcome string.
func faceFailureOutcome(err error) string {
	switch {
	case errors.Is(err, facematch.ErrBadCapture):
		return "bad_capture"
	case errors.Is(err, facematch.ErrNoFace):
		return "no_face"
	case errors.Is(err, facematch.ErrMultipleFaces):
		return "multiple_faces"
	case errors.Is(err, facematch.ErrNoReference):
		return "no_reference"
	default:
		return "error"
	}
}

// webauthnFailureOutcome maps a ceremony error onto a stable audit outcome
// string.
func webauthnFailureOutcome(err error) string {
	switch {
	case errors.Is(err, ceremony.ErrSessionNotFound):
		return "unknown_ceremony"
	case errors.Is(err, ceremony.ErrSessionExpired):
		return "ceremony_expired"
	case errors.Is(err, ceremony.ErrCounterRegressed):
		return "counter_regressed"
	default:
		return "assertion_rejected"
	}
}
