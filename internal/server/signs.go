package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mbenali/signbridge/internal/animation"
	"github.com/mbenali/signbridge/internal/translit"
)

// signsRequest is the body of POST /api/signs.
type signsRequest struct {
	// Text is the phrase to translate. Arabic script is transliterated to
	// the Latin chat alphabet before lookup.
	Text string `json:"text"`
}

// signItem is one resolved word of a signs response.
type signItem struct {
	Word string `json:"word"`
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

type signsResponse struct {
	Results []signItem `json:"results"`
}

// handleSigns resolves a free-text phrase into a sequence of displayable
// sign assets. Unresolvable words are dropped, never errors.
func (s *Server) handleSigns(w http.ResponseWriter, r *http.Request) {
	var req signsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	start := time.Now()
	text := translit.ToLatin(req.Text)

	results := []signItem{}
	for res := range s.deps.Resolver.ResolvePhrase(text) {
		s.metrics.RecordSignLookup(r.Context(), string(res.Tier))
		results = append(results, signItem{
			Word: res.Word,
			Kind: string(res.Asset.Kind),
			Ref:  res.Asset.Ref,
		})
	}
	s.metrics.ResolutionDuration.Record(r.Context(), time.Since(start).Seconds())

	s.writeJSON(w, http.StatusOK, signsResponse{Results: results})
}

// handleAnimation serves the motion clip for a single word. The clip file is
// an opaque JSON frames document.
func (s *Server) handleAnimation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Clips == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "animation clips not configured"})
		return
	}

	word := strings.TrimSpace(r.PathValue("word"))
	clip, err := s.deps.Clips.Clip(word)
	if err != nil {
		if errors.Is(err, animation.ErrClipNotFound) {
			s.writeJSON(w, http.StatusNotFound, errorBody{Error: "no animation for word"})
			return
		}
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip); err != nil {
		s.logger.Warn("write clip failed", "word", word, "err", err)
	}
}
