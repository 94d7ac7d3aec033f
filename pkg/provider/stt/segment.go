package stt

import (
	"encoding/binary"
	"math"
)

// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
// units) below which audio is considered silent. The maximum possible value
// for 16-bit audio is 32 767; 300 corresponds to near-silence.
const defaultRMSThreshold = 300.0

const (
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// Segmenter slices a continuous PCM stream into utterances. Leading silence
// is discarded; once speech starts, audio accumulates until either the
// configured run of silence follows it or the buffer hits its duration cap.
//
// Segmenter is not safe for concurrent use; each live stream owns one.
type Segmenter struct {
	sampleRate          int
	channels            int
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

// SegmenterOption is a functional option for Segmenter.
type SegmenterOption func(*Segmenter)

// WithRMSThreshold sets the silence energy threshold in 16-bit PCM units.
func WithRMSThreshold(threshold float64) SegmenterOption {
	return func(s *Segmenter) { s.rmsThreshold = threshold }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// closes an utterance. Shorter values respond faster at the cost of
// splitting utterances. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) SegmenterOption {
	return func(s *Segmenter) { s.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs caps how much audio (ms) may accumulate before an
// utterance is closed regardless of silence. This bounds memory during
// continuous speech. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) SegmenterOption {
	return func(s *Segmenter) { s.maxBufferDurationMs = ms }
}

// NewSegmenter creates a Segmenter for the given PCM format. Zero sampleRate
// or channels fall back to DefaultSampleRate and mono.
func NewSegmenter(sampleRate, channels int, opts ...SegmenterOption) *Segmenter {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	s := &Segmenter{
		sampleRate:          sampleRate,
		channels:            channels,
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Push feeds one chunk of PCM into the segmenter. When the chunk completes
// an utterance, that utterance is returned; otherwise the result is a zero
// Audio with no PCM.
func (s *Segmenter) Push(chunk []byte) Audio {
	rms := ComputeRMS(chunk)
	chunkMs := chunkDurationMs(chunk, s.sampleRate, s.channels)

	if rms < s.rmsThreshold {
		// Silence counts only once speech has started; leading silence is
		// dropped.
		if !s.hadSpeech {
			return Audio{}
		}
		s.silenceMs += chunkMs
		s.buffer = append(s.buffer, chunk...)
		if s.silenceMs >= s.silenceThresholdMs {
			return s.take()
		}
		return Audio{}
	}

	s.hadSpeech = true
	s.silenceMs = 0
	s.buffer = append(s.buffer, chunk...)

	bytesPerMs := s.sampleRate * s.channels * (BitsPerSample / 8) / 1000
	if bytesPerMs > 0 && len(s.buffer) >= s.maxBufferDurationMs*bytesPerMs {
		return s.take()
	}
	return Audio{}
}

// Flush closes the current utterance, if any. Call when the stream ends.
func (s *Segmenter) Flush() Audio {
	if !s.hadSpeech {
		s.buffer = nil
		s.silenceMs = 0
		return Audio{}
	}
	return s.take()
}

func (s *Segmenter) take() Audio {
	pcm := s.buffer
	s.buffer = nil
	s.hadSpeech = false
	s.silenceMs = 0
	return Audio{PCM: pcm, SampleRate: s.sampleRate, Channels: s.channels}
}

// ComputeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer, in PCM sample units (0-32767). Returns 0 for
// buffers shorter than one sample.
func ComputeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// chunkDurationMs returns the duration of a PCM chunk in milliseconds.
func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	bytesPerSec := sampleRate * channels * (BitsPerSample / 8)
	if bytesPerSec <= 0 {
		return 0
	}
	return len(chunk) * 1000 / bytesPerSec
}
