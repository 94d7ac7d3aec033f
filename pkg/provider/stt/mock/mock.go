// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to return pre-canned transcripts without a live engine and
// to verify which utterances are submitted.
package mock

import (
	"context"
	"sync"

	"github.com/mbenali/signbridge/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the utterance passed to Transcribe. PCM is copied.
	Audio stt.Audio
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if non-nil, is called instead of returning
	// TranscribeResult. Use it to vary the response per utterance.
	TranscribeFunc func(ctx context.Context, audio stt.Audio) (stt.Transcript, error)

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr
// (or defers to TranscribeFunc when set).
func (m *Transcriber) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	m.mu.Lock()
	cp := audio
	cp.PCM = make([]byte, len(audio.PCM))
	copy(cp.PCM, audio.PCM)
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: cp})
	fn := m.TranscribeFunc
	result, err := m.TranscribeResult, m.TranscribeErr
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

// ModelID returns ModelIDValue.
func (m *Transcriber) ModelID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ModelIDValue
}

// Calls returns a snapshot of all recorded calls. Thread-safe.
func (m *Transcriber) Calls() []TranscribeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TranscribeCall, len(m.TranscribeCalls))
	copy(out, m.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
