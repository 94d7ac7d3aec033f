package stt

import "time"

// Audio format constants for the 16-bit signed little-endian PCM this
// package works in.
const (
	// BitsPerSample is fixed at 16.
	BitsPerSample = 16

	// DefaultSampleRate is the STT-optimised mono rate in Hz.
	DefaultSampleRate = 16000
)

// Audio is one utterance of raw 16-bit signed little-endian PCM.
type Audio struct {
	// PCM is the sample data.
	PCM []byte

	// SampleRate in Hz. Zero means DefaultSampleRate.
	SampleRate int

	// Channels is the channel count. Zero means mono.
	Channels int
}

// Normalized returns a copy of a with zero fields replaced by defaults.
func (a Audio) Normalized() Audio {
	if a.SampleRate <= 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.Channels <= 0 {
		a.Channels = 1
	}
	return a
}

// Duration returns the playing time of the audio.
func (a Audio) Duration() time.Duration {
	a = a.Normalized()
	bytesPerSec := a.SampleRate * a.Channels * (BitsPerSample / 8)
	if bytesPerSec <= 0 || len(a.PCM) == 0 {
		return 0
	}
	return time.Duration(len(a.PCM)) * time.Second / time.Duration(bytesPerSec)
}

// Transcript is the recognition result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content. Empty when the engine heard
	// only silence.
	Text string

	// Language is the language the engine reports having recognised. May be
	// empty when the backend does not report it.
	Language string

	// Confidence is the overall confidence score (0.0-1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// AudioDuration is the length of the submitted utterance.
	AudioDuration time.Duration
}
