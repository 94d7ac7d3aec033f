package server

import (
	"encoding/json"
	"net/http"

	"github.com/mbenali/signbridge/internal/auth"
)

// ceremonyBody carries a WebAuthn ceremony back to the browser: the opaque
// server-side handle plus the protocol options the browser passes to
// navigator.credentials.
type ceremonyBody struct {
	CeremonyID string `json:"ceremony_id"`
	Options    any    `json:"options"`
}

// ceremonyComplete is the second half of either ceremony: the handle issued
// by begin plus the browser's raw credential response, forwarded verbatim.
type ceremonyComplete struct {
	CeremonyID string          `json:"ceremony_id"`
	Response   json.RawMessage `json:"response"`
}

func (s *Server) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	claims, _ := sessionClaims(r.Context())

	options, ceremonyID, err := s.deps.Auth.BeginPasskeyRegistration(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ceremonyBody{CeremonyID: ceremonyID, Options: options})
}

func (s *Server) handleRegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req ceremonyComplete
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	credential, err := s.deps.Auth.CompletePasskeyRegistration(r.Context(), req.CeremonyID, req.Response)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"credential_id": credential.ID,
		"transports":    credential.Transports,
	})
}

type loginBeginRequest struct {
	Identifier string `json:"identifier"`
}

func (s *Server) handleLoginBegin(w http.ResponseWriter, r *http.Request) {
	var req loginBeginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	options, ceremonyID, err := s.deps.Auth.BeginPasskeyLogin(r.Context(), req.Identifier)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ceremonyBody{CeremonyID: ceremonyID, Options: options})
}

func (s *Server) handleLoginComplete(w http.ResponseWriter, r *http.Request) {
	var req ceremonyComplete
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	session, err := s.deps.Auth.CompletePasskeyLogin(r.Context(), req.CeremonyID, req.Response)
	if err != nil {
		s.metrics.RecordAuthAttempt(r.Context(), auth.MethodWebAuthn, "failure")
		s.writeError(w, err)
		return
	}
	s.metrics.RecordAuthAttempt(r.Context(), auth.MethodWebAuthn, "success")
	s.writeJSON(w, http.StatusOK, toSessionBody(session))
}
