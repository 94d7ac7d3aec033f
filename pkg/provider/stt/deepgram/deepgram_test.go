package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbenali/signbridge/pkg/provider/stt"
)

func mockListenServer(t *testing.T, transcript string, confidence float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("Authorization = %q, want Token test-key", got)
		}
		q := r.URL.Query()
		if got := q.Get("encoding"); got != "linear16" {
			t.Errorf("encoding = %q, want linear16", got)
		}
		if got := q.Get("sample_rate"); got != "16000" {
			t.Errorf("sample_rate = %q, want 16000", got)
		}

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{"duration": 1.0},
			"results": map[string]any{
				"channels": []map[string]any{
					{
						"alternatives": []map[string]any{
							{"transcript": transcript, "confidence": confidence},
						},
						"detected_language": "fr",
					},
				},
			},
		})
		if err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key, got nil")
	}
}

func TestTranscribe(t *testing.T) {
	srv := mockListenServer(t, "bonjour tout le monde", 0.97)
	defer srv.Close()

	p, err := New("test-key", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Transcribe(context.Background(), stt.Audio{PCM: make([]byte, 3200)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "bonjour tout le monde" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Confidence != 0.97 {
		t.Errorf("Confidence = %g, want 0.97", got.Confidence)
	}
	if got.Language != "fr" {
		t.Errorf("Language = %q, want fr", got.Language)
	}
}

func TestTranscribe_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": map[string]any{"channels": []any{}}})
	}))
	defer srv.Close()

	p, err := New("test-key", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Transcribe(context.Background(), stt.Audio{PCM: make([]byte, 320)})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "" {
		t.Errorf("Text = %q, want empty", got.Text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid auth", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New("test-key", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Audio{PCM: make([]byte, 320)}); err == nil {
		t.Fatal("expected error for 401 response, got nil")
	}
}
