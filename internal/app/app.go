// Package app wires configuration, storage, providers, and the HTTP surface
// into a running signbridge service.
//
// The assembly order matters: storage first (everything authenticates against
// it), then the lexicon and sign resolver, then the face verifier and passkey
// ceremonies, and finally the HTTP server that serves all of it. New builds
// the whole graph or fails; Run blocks until the context is cancelled or the
// listener dies; Shutdown tears the graph down in reverse order.
//
// For testing, inject fakes via functional options (WithStore,
// WithCeremonySessions). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbenali/signbridge/internal/animation"
	"github.com/mbenali/signbridge/internal/auth"
	"github.com/mbenali/signbridge/internal/auth/ceremony"
	"github.com/mbenali/signbridge/internal/config"
	"github.com/mbenali/signbridge/internal/facematch"
	"github.com/mbenali/signbridge/internal/health"
	"github.com/mbenali/signbridge/internal/lexicon"
	"github.com/mbenali/signbridge/internal/resilience"
	"github.com/mbenali/signbridge/internal/server"
	"github.com/mbenali/signbridge/internal/sign"
	"github.com/mbenali/signbridge/internal/storage"
	"github.com/mbenali/signbridge/internal/storage/postgres"
	"github.com/mbenali/signbridge/pkg/provider/faceembed"
	"github.com/mbenali/signbridge/pkg/provider/stt"
)

// shutdownGrace bounds how long Run waits for in-flight requests to drain
// after the context is cancelled.
const shutdownGrace = 10 * time.Second

// Store is the persistence surface the app needs from a storage backend.
// Both [storage.MemStore] and [postgres.Store] satisfy it.
type Store interface {
	storage.AccountStore
	storage.CredentialStore
	storage.FaceReferenceStore
	storage.ComplaintStore
	storage.EventStore
	storage.EnrollmentAuditor

	// Ping reports whether the backend is reachable, for readiness probes.
	Ping(ctx context.Context) error
}

// Providers holds the externally constructed ML providers the app runs on.
// The face encoder is mandatory: face verification is an advertised sign-in
// path and cannot degrade silently. The transcriber is optional; without it
// the transcription endpoints answer 503.
type Providers struct {
	STT     stt.Transcriber
	Encoder faceembed.Encoder
}

// App is the assembled signbridge service.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	logLevel  *slog.LevelVar

	store            Store
	ceremonySessions ceremony.SessionStore
	redisClient      *redis.Client
	handle           *lexicon.Handle
	resolver         *sign.Resolver
	clips            *animation.Library
	verifier         *facematch.Verifier
	ceremonies       *ceremony.Engine
	authn            *auth.Authenticator
	transcriber      stt.Transcriber
	srv              *server.Server
	httpSrv          *http.Server

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option overrides a piece of the default assembly, mainly for tests.
type Option func(*App)

// WithLogger sets the logger the app and its subsystems log through.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLogLevelVar hands the app the level var behind its logger so config
// reloads can retune verbosity at runtime.
func WithLogLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) {
		a.logLevel = lv
	}
}

// WithStore injects a storage backend, bypassing the DSN-based selection.
func WithStore(s Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithCeremonySessions injects the passkey ceremony session store, bypassing
// the redis/memory selection.
func WithCeremonySessions(s ceremony.SessionStore) Option {
	return func(a *App) {
		a.ceremonySessions = s
	}
}

// New assembles a signbridge service from configuration and providers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.Encoder == nil {
		return nil, errors.New("app: face encoder provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// ── 1. Storage ──
	if err := a.initStore(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Lexicon, sign resolver, clip library ──
	a.initLexicon()

	// ── 3. Face verification ──
	if err := a.initVerifier(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init face verifier: %w", err)
	}

	// ── 4. Passkey ceremonies and session tokens ──
	if err := a.initAuth(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init auth: %w", err)
	}

	// ── 5. Transcription ──
	a.initTranscriber()

	// ── 6. HTTP server ──
	if err := a.initServer(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// initStore picks the storage backend: an injected store wins, then Postgres
// when a DSN is configured, then the in-memory store with a loud warning.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn, a.cfg.Storage.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		return nil
	}
	a.logger.Warn("no postgres_dsn configured, using in-memory storage; accounts will not survive restarts")
	a.store = storage.NewMemStore()
	return nil
}

// initLexicon loads the sign dataset and builds the resolver. A missing or
// broken dataset is not fatal: the service comes up with an empty index (the
// health endpoint reports it degraded) and a config reload can fix it.
func (a *App) initLexicon() {
	ix, err := buildIndex(a.cfg.Lexicon)
	if err != nil {
		a.logger.Warn("lexicon dataset unavailable, starting with empty index",
			"path", a.cfg.Lexicon.Dataset.Path, "err", err)
		ix = lexicon.New(nil)
	} else {
		a.logger.Info("lexicon loaded", "entries", ix.Len(), "path", a.cfg.Lexicon.Dataset.Path)
	}
	a.handle = lexicon.NewHandle(ix)

	var resolverOpts []sign.Option
	if a.cfg.Lexicon.FuzzyCutoff > 0 {
		resolverOpts = append(resolverOpts, sign.WithFuzzyCutoff(a.cfg.Lexicon.FuzzyCutoff))
	}
	a.resolver = sign.NewResolver(a.handle, resolverOpts...)

	if dir := a.cfg.Lexicon.ClipsDir; dir != "" {
		a.clips = animation.NewLibrary(dir)
	}
}

// buildIndex loads the configured dataset into a fresh lexicon index.
func buildIndex(cfg config.LexiconConfig) (*lexicon.Index, error) {
	mapping, err := lexicon.LoadMapping(lexicon.Source{
		Format: cfg.Dataset.Format,
		Path:   cfg.Dataset.Path,
	})
	if err != nil {
		return nil, err
	}
	return lexicon.New(mapping, lexicon.WithAliases(cfg.Aliases)), nil
}

// initVerifier wraps the configured encoder in a circuit-breaking fallback
// group and builds the face verifier on top.
func (a *App) initVerifier() error {
	name := a.cfg.Face.Encoder.Name
	if name == "" {
		name = a.providers.Encoder.ModelID()
	}
	encoder := resilience.NewEncoderFallback(a.providers.Encoder, name, resilience.FallbackConfig{})

	var opts []facematch.Option
	if a.cfg.Face.Threshold > 0 {
		opts = append(opts, facematch.WithThreshold(a.cfg.Face.Threshold))
	}
	verifier, err := facematch.NewVerifier(encoder, a.store, a.store, a.cfg.Media.Root, opts...)
	if err != nil {
		return err
	}
	a.verifier = verifier
	return nil
}

// initAuth builds the ceremony engine, token issuer, and authenticator.
func (a *App) initAuth() error {
	sessions := a.ceremonySessions
	if sessions == nil {
		if addr := a.cfg.Auth.RedisAddr; addr != "" {
			client := redis.NewClient(&redis.Options{Addr: addr})
			a.redisClient = client
			a.closers = append(a.closers, client.Close)
			sessions = ceremony.NewRedisStore(client)
		} else {
			sessions = ceremony.NewMemoryStore()
		}
	}

	engine, err := ceremony.NewEngine(ceremony.Config{
		RPID:          a.cfg.Auth.WebAuthn.RPID,
		RPDisplayName: a.cfg.Auth.WebAuthn.RPDisplayName,
		RPOrigins:     a.cfg.Auth.WebAuthn.RPOrigins,
		TTL:           a.cfg.Auth.CeremonyTTL,
	}, sessions, a.store, a.store)
	if err != nil {
		return err
	}
	a.ceremonies = engine

	tokens, err := auth.NewTokenIssuer([]byte(a.cfg.Auth.SessionSecret), a.cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}

	authn, err := auth.New(a.store, a.store, a.verifier, engine, tokens, a.logger)
	if err != nil {
		return err
	}
	a.authn = authn
	return nil
}

// initTranscriber wraps the optional speech-to-text provider in a
// circuit-breaking fallback group.
func (a *App) initTranscriber() {
	if a.providers.STT == nil {
		a.logger.Warn("no speech-to-text provider configured; transcription endpoints will answer 503")
		return
	}
	name := a.cfg.Providers.STT.Name
	if name == "" {
		name = a.providers.STT.ModelID()
	}
	a.transcriber = resilience.NewSTTFallback(a.providers.STT, name, resilience.FallbackConfig{})
}

// initServer assembles the HTTP handler stack and the net/http server.
func (a *App) initServer() error {
	checkers := []health.Checker{
		health.Database(a.store),
		health.Lexicon(handleCounter{a.handle}),
	}
	if a.redisClient != nil {
		client := a.redisClient
		checkers = append(checkers, health.Named("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	srv, err := server.New(server.Deps{
		Resolver:    a.resolver,
		Clips:       a.clips,
		Transcriber: a.transcriber,
		Auth:        a.authn,
		Verifier:    a.verifier,
		Complaints:  a.store,
		Events:      a.store,
		Auditor:     a.store,
		Health:      health.New(checkers...),
	}, server.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.srv = srv

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// handleCounter adapts the swappable lexicon handle to the health package's
// entry counter, so the probe always sees the current index.
type handleCounter struct {
	h *lexicon.Handle
}

func (c handleCounter) Len() int { return c.h.Index().Len() }

// Run serves HTTP until ctx is cancelled or the listener fails. On
// cancellation it drains in-flight requests before returning.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			a.logger.Info("listening", "addr", a.httpSrv.Addr, "tls", true)
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			a.logger.Info("listening", "addr", a.httpSrv.Addr, "tls", false)
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: drain http server: %w", err)
		}
		return nil
	}
}

// ApplyConfig reacts to a config file change. Only the hot-reloadable subset
// is applied: log level, the lexicon dataset, and the face match threshold.
// Everything else needs a restart and is deliberately ignored here.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(d.NewLogLevel.Slog())
			a.logger.Info("log level updated", "level", d.NewLogLevel)
		} else {
			a.logger.Warn("log level changed in config but no level var is wired; restart to apply")
		}
	}

	if d.LexiconChanged {
		ix, err := buildIndex(new.Lexicon)
		if err != nil {
			a.logger.Warn("lexicon reload failed, keeping previous index",
				"path", new.Lexicon.Dataset.Path, "err", err)
		} else {
			a.handle.Swap(ix)
			a.logger.Info("lexicon reloaded", "entries", ix.Len())
		}
		if old.Lexicon.ClipsDir != new.Lexicon.ClipsDir {
			a.logger.Warn("clips_dir changed in config; restart to apply")
		}
	}

	if d.FaceThresholdChanged {
		if err := a.verifier.SetThreshold(d.NewFaceThreshold); err != nil {
			a.logger.Warn("rejected face threshold from config reload", "err", err)
		} else {
			a.logger.Info("face match threshold updated", "threshold", d.NewFaceThreshold)
		}
	}

	a.cfg = new
}

// Handler exposes the assembled HTTP handler, for tests that exercise the
// full stack without binding a port.
func (a *App) Handler() http.Handler {
	return a.httpSrv.Handler
}

// Shutdown releases everything New acquired, in reverse order. Safe to call
// more than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(a.runClosers)
}

func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown step failed", "err", err)
		}
	}
	a.closers = nil
}
