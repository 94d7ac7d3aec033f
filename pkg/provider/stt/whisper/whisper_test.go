package whisper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mbenali/signbridge/pkg/provider/stt"
)

// mockInferenceServer handles /inference requests, verifies the uploaded WAV
// and hint fields, and returns text as the transcription.
func mockInferenceServer(t *testing.T, wantLanguage string, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path: got %q, want /inference", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if got := r.FormValue("language"); got != wantLanguage {
			t.Errorf("language field = %q, want %q", got, wantLanguage)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()

		header := make([]byte, 12)
		if _, err := file.Read(header); err != nil {
			t.Errorf("read wav header: %v", err)
		}
		if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
			t.Errorf("upload is not a RIFF/WAVE file: %q", header)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"text": text}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL, got nil")
	}
}

func TestTranscribe(t *testing.T) {
	srv := mockInferenceServer(t, "ar", " سلام عليكم ")
	defer srv.Close()

	p, err := New(srv.URL, WithLanguage("ar"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := make([]byte, 16000*2) // 1 s of silence at 16 kHz mono
	got, err := p.Transcribe(context.Background(), stt.Audio{PCM: pcm})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "سلام عليكم" {
		t.Errorf("Text = %q, want trimmed transcript", got.Text)
	}
	if got.Language != "ar" {
		t.Errorf("Language = %q, want ar", got.Language)
	}
	if got.AudioDuration != time.Second {
		t.Errorf("AudioDuration = %s, want 1s", got.AudioDuration)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := New("http://localhost:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Audio{}); err == nil {
		t.Fatal("expected error for empty audio, got nil")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Audio{PCM: []byte{0, 0}}); err == nil {
		t.Fatal("expected error for 503 response, got nil")
	}
}

func TestModelID(t *testing.T) {
	p, err := New("http://localhost:8080", WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != "base.en" {
		t.Errorf("ModelID = %q, want base.en", p.ModelID())
	}

	p2, err := New("http://localhost:8080")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p2.ModelID() != "whisper-server" {
		t.Errorf("default ModelID = %q, want whisper-server", p2.ModelID())
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	wav := encodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if string(wav[44:]) != string(pcm) {
		t.Error("PCM payload mangled")
	}
}

func TestPCMToMonoFloat32(t *testing.T) {
	// Two stereo frames: (16384, -16384) averages to 0, (16384, 16384) to 0.5.
	pcm := make([]byte, 8)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(int16(-16384)))
	binary.LittleEndian.PutUint16(pcm[4:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(pcm[6:], uint16(int16(16384)))

	mono := pcmToMonoFloat32(pcm, 2)
	if len(mono) != 2 {
		t.Fatalf("got %d samples, want 2", len(mono))
	}
	if mono[0] != 0 {
		t.Errorf("mono[0] = %g, want 0", mono[0])
	}
	if mono[1] != 0.5 {
		t.Errorf("mono[1] = %g, want 0.5", mono[1])
	}
}
