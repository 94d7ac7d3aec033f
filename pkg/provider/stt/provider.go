// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber wraps a batch recognition engine (a local whisper.cpp model,
// a whisper-server instance, or a cloud API such as Deepgram) and maps one
// utterance of PCM audio to text. Live capture is handled upstream: the
// Segmenter slices a continuous PCM stream into utterances on silence
// boundaries, and each utterance is submitted as one Transcribe call.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts one utterance of audio to text. An utterance the
	// engine hears as silence yields an empty transcript and a nil error.
	// Returns an error if the backend is unreachable, the audio is invalid,
	// or ctx is cancelled.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)

	// ModelID returns the backend-specific model identifier (e.g.,
	// "base.en", "nova-2"). Useful for logging.
	ModelID() string
}
