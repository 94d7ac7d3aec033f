package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/mbenali/signbridge/internal/auth"
	"github.com/mbenali/signbridge/internal/storage"
)

type signUpRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	FullName        string `json:"full_name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Phone           string `json:"phone,omitempty"`
	BirthDate       string `json:"birth_date,omitempty"`
	HasDisability   bool   `json:"has_disability,omitempty"`
	DisabilityType  string `json:"disability_type,omitempty"`
}

type accountBody struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

type sessionBody struct {
	Token       string      `json:"token"`
	LandingPath string      `json:"landing_path"`
	Account     accountBody `json:"account"`
}

func toAccountBody(a storage.Account) accountBody {
	return accountBody{ID: a.ID, Email: a.Email, Username: a.Username, FullName: a.FullName}
}

func toSessionBody(s auth.Session) sessionBody {
	return sessionBody{Token: s.Token, LandingPath: s.LandingPath, Account: toAccountBody(s.Account)}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	account, err := s.deps.Auth.SignUp(r.Context(), auth.SignUpRequest{
		Email:           req.Email,
		Username:        req.Username,
		FullName:        req.FullName,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Phone:           req.Phone,
		BirthDate:       req.BirthDate,
		HasDisability:   req.HasDisability,
		DisabilityType:  req.DisabilityType,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			s.writeError(w, err)
		} else {
			s.writeError(w, badRequest(err))
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, toAccountBody(account))
}

type signInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	session, err := s.deps.Auth.PasswordSignIn(r.Context(), req.Identifier, req.Password)
	if err != nil {
		s.metrics.RecordAuthAttempt(r.Context(), auth.MethodPassword, "failure")
		s.writeError(w, err)
		return
	}
	s.metrics.RecordAuthAttempt(r.Context(), auth.MethodPassword, "success")
	s.writeJSON(w, http.StatusOK, toSessionBody(session))
}

// handleSignOut exists so clients have a uniform endpoint to hit; session
// tokens are stateless, so there is nothing to revoke server-side. Clients
// discard the token.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type faceVerifyRequest struct {
	Identifier string `json:"identifier"`
	Capture    string `json:"capture"`
}

type faceVerifyResponse struct {
	sessionBody

	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
}

// handleFaceVerify is the face sign-in endpoint. On a match it answers the
// session together with the measured distance; on any failure the usual
// error envelope applies and no distance is revealed.
func (s *Server) handleFaceVerify(w http.ResponseWriter, r *http.Request) {
	if s.deps.Verifier == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "face verification not configured"})
		return
	}

	var req faceVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	start := time.Now()
	session, decision, err := s.deps.Auth.FaceSignIn(r.Context(), req.Identifier, req.Capture)
	s.metrics.VerificationDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordAuthAttempt(r.Context(), auth.MethodFace, "failure")
		s.writeError(w, err)
		return
	}
	s.metrics.RecordAuthAttempt(r.Context(), auth.MethodFace, "success")
	s.writeJSON(w, http.StatusOK, faceVerifyResponse{
		sessionBody: toSessionBody(session),
		Distance:    decision.Distance,
		Threshold:   decision.Threshold,
	})
}

type faceEnrollRequest struct {
	Capture string `json:"capture"`
}

// handleFaceEnroll stores a new face reference for the signed-in account.
func (s *Server) handleFaceEnroll(w http.ResponseWriter, r *http.Request) {
	if s.deps.Verifier == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "face verification not configured"})
		return
	}

	claims, _ := sessionClaims(r.Context())

	var req faceEnrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.deps.Verifier.Enroll(r.Context(), claims.Subject, req.Capture); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
