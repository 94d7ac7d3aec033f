package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mbenali/signbridge/internal/storage"
)

type complaintRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type complaintBody struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toComplaintBody(c storage.Complaint) complaintBody {
	return complaintBody{
		ID:        c.ID,
		AccountID: c.AccountID,
		Subject:   c.Subject,
		Body:      c.Body,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}

func toComplaintBodies(cs []storage.Complaint) []complaintBody {
	out := make([]complaintBody, 0, len(cs))
	for _, c := range cs {
		out = append(out, toComplaintBody(c))
	}
	return out
}

func (s *Server) handleComplaintSubmit(w http.ResponseWriter, r *http.Request) {
	claims, _ := sessionClaims(r.Context())

	var req complaintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Subject == "" || req.Body == "" {
		s.writeError(w, badRequest(fmt.Errorf("subject and body are required")))
		return
	}

	complaint, err := s.deps.Complaints.SubmitComplaint(r.Context(), storage.Complaint{
		AccountID: claims.Subject,
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toComplaintBody(complaint))
}

func (s *Server) handleComplaintList(w http.ResponseWriter, r *http.Request) {
	claims, _ := sessionClaims(r.Context())

	complaints, err := s.deps.Complaints.ComplaintsByAccount(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"complaints": toComplaintBodies(complaints)})
}

func (s *Server) handleAllComplaints(w http.ResponseWriter, r *http.Request) {
	complaints, err := s.deps.Complaints.AllComplaints(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"complaints": toComplaintBodies(complaints)})
}

type complaintStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleComplaintStatus(w http.ResponseWriter, r *http.Request) {
	var req complaintStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	status := storage.ComplaintStatus(req.Status)
	if !status.IsValid() {
		s.writeError(w, badRequest(fmt.Errorf("unknown status %q", req.Status)))
		return
	}

	if err := s.deps.Complaints.SetComplaintStatus(r.Context(), r.PathValue("id"), status); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// defaultEventLimit bounds the audit view when the client does not ask for
// a specific page size.
const defaultEventLimit = 100

type authEventBody struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id,omitempty"`
	Method    string    `json:"method"`
	Outcome   string    `json:"outcome"`
	Distance  *float64  `json:"distance,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleAuthEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.writeError(w, badRequest(fmt.Errorf("bad limit %q", raw)))
			return
		}
		limit = v
	}

	events, err := s.deps.Events.AuthEvents(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]authEventBody, 0, len(events))
	for _, e := range events {
		out = append(out, authEventBody{
			ID:        e.ID,
			AccountID: e.AccountID,
			Method:    e.Method,
			Outcome:   e.Outcome,
			Distance:  e.Distance,
			CreatedAt: e.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type similarEnrollmentsRequest struct {
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit,omitempty"`
}

type similarEnrollmentBody struct {
	AccountID string  `json:"account_id"`
	Distance  float64 `json:"distance"`
}

// handleSimilarEnrollments is the duplicate-enrollment audit: given a face
// embedding, it lists the nearest enrolled references so an operator can
// spot one person enrolled under several accounts.
func (s *Server) handleSimilarEnrollments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auditor == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "enrollment audit not configured"})
		return
	}

	var req similarEnrollmentsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Embedding) == 0 {
		s.writeError(w, badRequest(fmt.Errorf("embedding is required")))
		return
	}

	matches, err := s.deps.Auditor.SimilarEnrollments(r.Context(), req.Embedding, req.Limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]similarEnrollmentBody, 0, len(matches))
	for _, m := range matches {
		out = append(out, similarEnrollmentBody{AccountID: m.AccountID, Distance: m.Distance})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}
