package resilience

import (
	"errors"
	"testing"
	"time"
)

// newSTTGroup builds a two-backend group the way the app wires transcription:
// a remote primary with a local fallback.
func newSTTGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("whisper-native", "whisper-native")
	return fg
}

func TestFallbackGroup_PrimaryHandlesCall(t *testing.T) {
	fg := newSTTGroup(CircuitBreakerConfig{MaxFailures: 3})

	var served string
	err := fg.Execute(func(backend string) error {
		served = backend
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "deepgram" {
		t.Fatalf("served by %q, want the primary", served)
	}
}

func TestFallbackGroup_FailsOverToNextBackend(t *testing.T) {
	fg := newSTTGroup(CircuitBreakerConfig{MaxFailures: 3})

	var served string
	err := fg.Execute(func(backend string) error {
		if backend == "deepgram" {
			return errBackendDown
		}
		served = backend
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "whisper-native" {
		t.Fatalf("served by %q, want the fallback", served)
	}
}

func TestFallbackGroup_AllBackendsFail(t *testing.T) {
	fg := newSTTGroup(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(func(string) error { return errBackendDown })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsPrimary(t *testing.T) {
	fg := newSTTGroup(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	// Trip the primary's breaker; the fallback keeps answering.
	for range 2 {
		_ = fg.Execute(func(backend string) error {
			if backend == "deepgram" {
				return errBackendDown
			}
			return nil
		})
	}

	var attempts []string
	err := fg.Execute(func(backend string) error {
		attempts = append(attempts, backend)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != "whisper-native" {
		t.Fatalf("attempts = %v, want the fallback only (primary circuit open)", attempts)
	}
}

func TestFallbackGroup_Primary(t *testing.T) {
	fg := newSTTGroup(CircuitBreakerConfig{MaxFailures: 3})
	if got := fg.Primary(); got != "deepgram" {
		t.Fatalf("Primary() = %q, want deepgram", got)
	}
}

func TestExecuteWithResult_ReturnsPrimaryResult(t *testing.T) {
	fg := newSTTGroup(CircuitBreakerConfig{MaxFailures: 3})

	transcript, err := ExecuteWithResult(fg, func(backend string) (string, error) {
		return "transcript from " + backend, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if transcript != "transcript from deepgram" {
		t.Fatalf("result = %q, want the primary's result", transcript)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := newSTTGroup(CircuitBreakerConfig{MaxFailures: 3})

	transcript, err := ExecuteWithResult(fg, func(backend string) (string, error) {
		if backend == "deepgram" {
			return "", errBackendDown
		}
		return "transcript from " + backend, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if transcript != "transcript from whisper-native" {
		t.Fatalf("result = %q, want the fallback's result", transcript)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
