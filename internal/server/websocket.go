package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mbenali/signbridge/internal/observe"
	"github.com/mbenali/signbridge/internal/translit"
	"github.com/mbenali/signbridge/pkg/provider/stt"
)

// captionEvent is one websocket frame sent back to the client: the
// transcript of a completed utterance together with its resolved signs.
type captionEvent struct {
	Type       string     `json:"type"`
	Text       string     `json:"text,omitempty"`
	Language   string     `json:"language,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Signs      []signItem `json:"signs,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// handleLiveTranscribe upgrades the connection and runs the live caption
// loop: binary frames carry raw 16-bit little-endian PCM, the stream is cut
// into utterances on silence, and each utterance is transcribed and resolved
// to signs. Audio format comes from the sample_rate and channels query
// parameters, defaulting to 16 kHz mono.
func (s *Server) handleLiveTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcriber == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "transcription not configured"})
		return
	}

	sampleRate, err := queryInt(r, "sample_rate", stt.DefaultSampleRate)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	channels, err := queryInt(r, "channels", 1)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}

	if !s.liveStreams.TryAcquire(1) {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "live transcription capacity reached, retry later"})
		return
	}
	defer s.liveStreams.Release(1)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	log := s.logger
	if id := observe.CorrelationID(ctx); id != "" {
		log = log.With("correlation_id", id)
	}
	log.Info("live stream opened", "sample_rate", sampleRate, "channels", channels)

	segmenter := stt.NewSegmenter(sampleRate, channels)
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			// Flush whatever speech is buffered before the goodbye.
			if utterance := segmenter.Flush(); len(utterance.PCM) > 0 {
				s.emitCaption(ctx, conn, utterance)
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				conn.Close(websocket.StatusNormalClosure, "")
			} else if !errors.Is(err, context.Canceled) {
				log.Debug("live stream read ended", "err", err)
			}
			return
		}
		if msgType != websocket.MessageBinary {
			// Text frames are reserved for future control messages.
			continue
		}

		if utterance := segmenter.Push(data); len(utterance.PCM) > 0 {
			s.emitCaption(ctx, conn, utterance)
		}
	}
}

// emitCaption transcribes one utterance and writes the caption event. A
// provider failure is reported in-band; the stream stays open.
func (s *Server) emitCaption(ctx context.Context, conn *websocket.Conn, utterance stt.Audio) {
	start := time.Now()
	transcript, err := s.deps.Transcriber.Transcribe(ctx, utterance)
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.deps.Transcriber.ModelID(), "transcribe")
		observe.Logger(ctx).Warn("live transcription failed", "err", err)
		_ = wsjson.Write(ctx, conn, captionEvent{Type: "error", Error: "transcription failed"})
		return
	}
	s.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())

	signs := []signItem{}
	for res := range s.deps.Resolver.ResolvePhrase(translit.ToLatin(transcript.Text)) {
		s.metrics.RecordSignLookup(ctx, string(res.Tier))
		signs = append(signs, signItem{
			Word: res.Word,
			Kind: string(res.Asset.Kind),
			Ref:  res.Asset.Ref,
		})
	}

	_ = wsjson.Write(ctx, conn, captionEvent{
		Type:       "caption",
		Text:       transcript.Text,
		Language:   transcript.Language,
		Confidence: transcript.Confidence,
		Signs:      signs,
	})
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("bad %s %q", name, raw)
	}
	return v, nil
}
