package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/mbenali/signbridge/pkg/provider/faceembed"
	faceembedmock "github.com/mbenali/signbridge/pkg/provider/faceembed/mock"
)

func TestEncoderFallback_Failover(t *testing.T) {
	primary := &faceembedmock.Encoder{
		EncodeErr:       errors.New("sidecar down"),
		DimensionsValue: 128,
		ModelIDValue:    "dlib-resnet-v1",
	}
	secondary := &faceembedmock.Encoder{
		EncodeResult:    []faceembed.Face{{Embedding: make([]float32, 128)}},
		DimensionsValue: 128,
		ModelIDValue:    "dlib-resnet-v1",
	}

	fb := NewEncoderFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	faces, err := fb.Encode(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("faces = %d, want 1", len(faces))
	}
	if fb.Dimensions() != 128 {
		t.Errorf("Dimensions = %d, want 128", fb.Dimensions())
	}
	if fb.ModelID() != "dlib-resnet-v1" {
		t.Errorf("ModelID = %q, want dlib-resnet-v1", fb.ModelID())
	}
}

func TestEncoderFallback_AllFail(t *testing.T) {
	primary := &faceembedmock.Encoder{EncodeErr: errors.New("down")}

	fb := NewEncoderFallback(primary, "primary", FallbackConfig{})
	if _, err := fb.Encode(context.Background(), []byte("jpeg")); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
