package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mbenali/signbridge/internal/translit"
	"github.com/mbenali/signbridge/pkg/provider/stt"
)

// maxAudioBytes bounds an uploaded recording (~5 minutes of 16 kHz mono
// 16-bit PCM).
const maxAudioBytes = 16 << 20

type transcribeResponse struct {
	Text       string     `json:"text"`
	Language   string     `json:"language,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Signs      []signItem `json:"signs"`
}

// handleTranscribe accepts a multipart upload (field "audio", WAV or raw
// 16-bit little-endian PCM) and answers the transcript together with the
// resolved sign sequence.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcriber == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "transcription not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, badRequest(fmt.Errorf("missing audio part: %w", err)))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	audio, err := decodeUpload(data, r.FormValue("sample_rate"), r.FormValue("channels"))
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}

	resp, err := s.transcribeAndResolve(r, audio)
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), s.deps.Transcriber.ModelID(), "transcribe")
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// transcribeAndResolve runs the transcriber and resolves the transcript to
// signs; shared by the upload and websocket paths.
func (s *Server) transcribeAndResolve(r *http.Request, audio stt.Audio) (transcribeResponse, error) {
	start := time.Now()
	transcript, err := s.deps.Transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		return transcribeResponse{}, fmt.Errorf("transcribe: %w", err)
	}
	s.metrics.TranscriptionDuration.Record(r.Context(), time.Since(start).Seconds())

	signs := []signItem{}
	for res := range s.deps.Resolver.ResolvePhrase(translit.ToLatin(transcript.Text)) {
		s.metrics.RecordSignLookup(r.Context(), string(res.Tier))
		signs = append(signs, signItem{
			Word: res.Word,
			Kind: string(res.Asset.Kind),
			Ref:  res.Asset.Ref,
		})
	}

	return transcribeResponse{
		Text:       transcript.Text,
		Language:   transcript.Language,
		Confidence: transcript.Confidence,
		DurationMs: transcript.AudioDuration.Milliseconds(),
		Signs:      signs,
	}, nil
}

// decodeUpload turns an uploaded recording into [stt.Audio]. WAV files are
// recognised by their RIFF header; anything else is treated as raw 16-bit
// little-endian PCM with the given form parameters.
func decodeUpload(data []byte, sampleRate, channels string) (stt.Audio, error) {
	if len(data) == 0 {
		return stt.Audio{}, errors.New("empty audio upload")
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return decodeWAV(data)
	}

	audio := stt.Audio{PCM: data}
	if sampleRate != "" {
		v, err := strconv.Atoi(sampleRate)
		if err != nil || v <= 0 {
			return stt.Audio{}, fmt.Errorf("bad sample_rate %q", sampleRate)
		}
		audio.SampleRate = v
	}
	if channels != "" {
		v, err := strconv.Atoi(channels)
		if err != nil || v <= 0 {
			return stt.Audio{}, fmt.Errorf("bad channels %q", channels)
		}
		audio.Channels = v
	}
	return audio.Normalized(), nil
}

// decodeWAV extracts 16-bit PCM from a canonical RIFF/WAVE file. Compressed
// or non-16-bit encodings are rejected.
func decodeWAV(data []byte) (stt.Audio, error) {
	var (
		audio   stt.Audio
		haveFmt bool
	)

	// Walk the chunk list after the 12-byte RIFF header.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return stt.Audio{}, errors.New("truncated wav chunk")
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return stt.Audio{}, errors.New("short wav fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 { // PCM
				return stt.Audio{}, fmt.Errorf("unsupported wav format %d", format)
			}
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != stt.BitsPerSample {
				return stt.Audio{}, fmt.Errorf("unsupported wav bit depth %d", bits)
			}
			audio.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			audio.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			audio.PCM = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if !haveFmt || audio.PCM == nil {
		return stt.Audio{}, errors.New("wav file missing fmt or data chunk")
	}
	return audio.Normalized(), nil
}
