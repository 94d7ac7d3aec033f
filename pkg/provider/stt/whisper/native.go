// In-process transcription through the whisper.cpp CGO bindings. Building
// this file needs libwhisper.a and whisper.h on LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mbenali/signbridge/pkg/provider/stt"
)

var _ stt.Transcriber = (*NativeProvider)(nil)

// NativeProvider transcribes in-process instead of calling a whisper HTTP
// sidecar. One model is loaded at startup and shared by all Transcribe
// calls; each call gets its own whisper context.
type NativeProvider struct {
	model     whisperlib.Model
	modelName string
	language  string

	// NewContext is not guaranteed to be goroutine-safe across all binding
	// versions; serialize context creation.
	mu sync.Mutex
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the transcription language code, e.g. "ar".
// Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative loads the whisper.cpp model at modelPath. The caller owns
// Close.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:     model,
		modelName: strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the loaded model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe converts the utterance to mono float32 samples and runs
// whisper.cpp inference in a fresh context.
func (p *NativeProvider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	audio = audio.Normalized()
	if len(audio.PCM) == 0 {
		return stt.Transcript{}, errors.New("whisper: transcribe: empty audio")
	}

	samples := pcmToMonoFloat32(audio.PCM, audio.Channels)

	p.mu.Lock()
	wctx, err := p.model.NewContext()
	p.mu.Unlock()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", p.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Transcript{
		Text:          strings.Join(parts, " "),
		Language:      p.language,
		AudioDuration: audio.Duration(),
	}, nil
}

// ModelID returns the model file's base name (e.g., "ggml-base.en").
func (p *NativeProvider) ModelID() string {
	return p.modelName
}
