package resilience

import (
	"context"

	"github.com/mbenali/signbridge/pkg/provider/faceembed"
)

// EncoderFallback implements [faceembed.Encoder] with automatic failover
// across multiple encoder sidecars. All entries must run the same model:
// embeddings from different models are not comparable, so mixing models
// across fallbacks would silently break face matching.
type EncoderFallback struct {
	group *FallbackGroup[faceembed.Encoder]
}

var _ faceembed.Encoder = (*EncoderFallback)(nil)

// NewEncoderFallback creates an [EncoderFallback] with primary as the
// preferred sidecar.
func NewEncoderFallback(primary faceembed.Encoder, primaryName string, cfg FallbackConfig) *EncoderFallback {
	return &EncoderFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional encoder sidecar.
func (f *EncoderFallback) AddFallback(name string, enc faceembed.Encoder) {
	f.group.AddFallback(name, enc)
}

// Encode runs face detection against the first healthy sidecar.
func (f *EncoderFallback) Encode(ctx context.Context, image []byte) ([]faceembed.Face, error) {
	return ExecuteWithResult(f.group, func(enc faceembed.Encoder) ([]faceembed.Face, error) {
		return enc.Encode(ctx, image)
	})
}

// Dimensions returns the primary's embedding length.
func (f *EncoderFallback) Dimensions() int {
	return f.group.Primary().Dimensions()
}

// ModelID returns the primary's model identifier.
func (f *EncoderFallback) ModelID() string {
	return f.group.Primary().ModelID()
}
