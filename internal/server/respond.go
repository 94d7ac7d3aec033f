package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mbenali/signbridge/internal/auth"
	"github.com/mbenali/signbridge/internal/auth/ceremony"
	"github.com/mbenali/signbridge/internal/facematch"
	"github.com/mbenali/signbridge/internal/storage"
)

// maxBodyBytes bounds JSON request bodies. Face captures are base64 JPEG
// data URLs, so the limit is generous.
const maxBodyBytes = 8 << 20

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response failed", "err", err)
	}
}

// writeError maps a domain error onto an HTTP status and the JSON error
// envelope. Credential failures stay opaque: the body never says which
// factor was wrong.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, auth.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, "invalid session"
	case errors.Is(err, ceremony.ErrSessionNotFound), errors.Is(err, ceremony.ErrSessionExpired):
		status, msg = http.StatusUnauthorized, "ceremony expired"
	case errors.Is(err, ceremony.ErrNotEnrolled):
		status, msg = http.StatusConflict, "no passkey enrolled"
	case errors.Is(err, ceremony.ErrCounterRegressed):
		status, msg = http.StatusUnauthorized, "credential rejected"
	case errors.Is(err, facematch.ErrBadCapture):
		status, msg = http.StatusBadRequest, "capture is not a decodable image"
	case errors.Is(err, facematch.ErrNoFace):
		status, msg = http.StatusUnprocessableEntity, "no face detected in capture"
	case errors.Is(err, facematch.ErrMultipleFaces):
		status, msg = http.StatusUnprocessableEntity, "more than one face in capture"
	case errors.Is(err, facematch.ErrNoReference):
		status, msg = http.StatusConflict, "no face reference enrolled"
	case errors.Is(err, storage.ErrDuplicate):
		status, msg = http.StatusConflict, "already exists"
	case errors.Is(err, storage.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, errValidation):
		status, msg = http.StatusBadRequest, err.Error()
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, errorBody{Error: msg})
}

// errValidation tags request-shape errors for the 400 mapping. Auth-layer
// validation errors are joined errors without a sentinel, so handlers wrap
// them via badRequest.
var errValidation = errors.New("invalid request")

// badRequest wraps err so writeError answers 400 with err's message.
func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errValidation, err)
}

// decodeJSON decodes a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest(err)
	}
	return nil
}
