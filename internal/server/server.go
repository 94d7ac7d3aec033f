// Package server exposes the signbridge HTTP API.
//
// All endpoints speak JSON except /metrics (Prometheus text format) and
// /ws/transcribe (a websocket carrying PCM audio in and caption events out).
// Authenticated endpoints expect a bearer token minted by the auth layer.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/mbenali/signbridge/internal/animation"
	"github.com/mbenali/signbridge/internal/auth"
	"github.com/mbenali/signbridge/internal/facematch"
	"github.com/mbenali/signbridge/internal/health"
	"github.com/mbenali/signbridge/internal/observe"
	"github.com/mbenali/signbridge/internal/sign"
	"github.com/mbenali/signbridge/internal/storage"
	"github.com/mbenali/signbridge/pkg/provider/stt"
)

// Deps bundles everything a [Server] serves. Resolver, Auth, Complaints, and
// Events are required; the remaining fields degrade gracefully when nil
// (the corresponding endpoints answer 503).
type Deps struct {
	Resolver    *sign.Resolver
	Clips       *animation.Library
	Transcriber stt.Transcriber
	Auth        *auth.Authenticator
	Verifier    *facematch.Verifier
	Complaints  storage.ComplaintStore
	Events      storage.EventStore
	Auditor     storage.EnrollmentAuditor
	Health      *health.Handler
}

// DefaultMaxLiveStreams caps how many live transcription websockets may run
// at once. Each stream holds a transcription backend slot for its lifetime.
const DefaultMaxLiveStreams = 64

// Option is a functional option for [New].
type Option func(*Server)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics overrides the package-default metrics instance. Tests inject
// a manual-reader-backed instance here.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMaxLiveStreams overrides [DefaultMaxLiveStreams].
func WithMaxLiveStreams(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.liveStreams = semaphore.NewWeighted(n)
		}
	}
}

// Server holds the handler dependencies. Construct with [New], mount with
// [Server.Routes].
type Server struct {
	deps        Deps
	logger      *slog.Logger
	metrics     *observe.Metrics
	liveStreams *semaphore.Weighted
}

// New validates deps and returns a ready [Server].
func New(deps Deps, opts ...Option) (*Server, error) {
	switch {
	case deps.Resolver == nil:
		return nil, errors.New("server: nil resolver")
	case deps.Auth == nil:
		return nil, errors.New("server: nil authenticator")
	case deps.Complaints == nil:
		return nil, errors.New("server: nil complaint store")
	case deps.Events == nil:
		return nil, errors.New("server: nil event store")
	}

	s := &Server{
		deps:        deps,
		logger:      slog.Default(),
		metrics:     observe.DefaultMetrics(),
		liveStreams: semaphore.NewWeighted(DefaultMaxLiveStreams),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Routes builds the full route table wrapped in the observability
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Sign language pipeline.
	mux.HandleFunc("POST /api/signs", s.handleSigns)
	mux.HandleFunc("GET /api/animation/{word}", s.handleAnimation)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /ws/transcribe", s.handleLiveTranscribe)

	// Accounts and sign-in.
	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", s.handleSignOut)
	mux.HandleFunc("POST /api/face/verify", s.handleFaceVerify)
	mux.HandleFunc("POST /api/face/enroll", s.requireSession(s.handleFaceEnroll))

	// Passkey ceremonies.
	mux.HandleFunc("POST /api/webauthn/register/begin", s.requireSession(s.handleRegisterBegin))
	mux.HandleFunc("POST /api/webauthn/register/complete", s.requireSession(s.handleRegisterComplete))
	mux.HandleFunc("POST /api/webauthn/login/begin", s.handleLoginBegin)
	mux.HandleFunc("POST /api/webauthn/login/complete", s.handleLoginComplete)

	// Complaints.
	mux.HandleFunc("POST /api/complaints", s.requireSession(s.handleComplaintSubmit))
	mux.HandleFunc("GET /api/complaints", s.requireSession(s.handleComplaintList))

	// Back office.
	mux.HandleFunc("GET /api/backoffice/complaints", s.requireSuperuser(s.handleAllComplaints))
	mux.HandleFunc("PATCH /api/backoffice/complaints/{id}", s.requireSuperuser(s.handleComplaintStatus))
	mux.HandleFunc("GET /api/backoffice/events", s.requireSuperuser(s.handleAuthEvents))
	mux.HandleFunc("POST /api/backoffice/enrollments/similar", s.requireSuperuser(s.handleSimilarEnrollments))

	// Operational endpoints.
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.deps.Health != nil {
		s.deps.Health.Register(mux)
	}

	return observe.Middleware(s.metrics)(mux)
}
