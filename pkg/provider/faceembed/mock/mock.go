// Package mock provides a test double for the faceembed.Encoder interface.
//
// Use Encoder to return pre-canned face detections without a live model and
// to verify which images are submitted for encoding.
//
// Example:
//
//	e := &mock.Encoder{
//	    EncodeResult: []faceembed.Face{{Embedding: []float32{0.1, 0.2}}},
//	    DimensionsValue: 2,
//	}
//	faces, _ := e.Encode(ctx, jpegBytes)
package mock

import (
	"context"
	"sync"

	"github.com/mbenali/signbridge/pkg/provider/faceembed"
)

// EncodeCall records a single invocation of Encode.
type EncodeCall struct {
	// Ctx is the context passed to Encode.
	Ctx context.Context
	// Image is a copy of the image bytes passed to Encode.
	Image []byte
}

// Encoder is a mock implementation of faceembed.Encoder.
type Encoder struct {
	mu sync.Mutex

	// EncodeResult is returned by Encode. If nil, an empty slice is returned.
	EncodeResult []faceembed.Face

	// EncodeErr, if non-nil, is returned as the error from Encode.
	EncodeErr error

	// EncodeFunc, if non-nil, is called instead of returning EncodeResult.
	// Use it to vary the response per image.
	EncodeFunc func(ctx context.Context, image []byte) ([]faceembed.Face, error)

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EncodeCalls records every call to Encode in order.
	EncodeCalls []EncodeCall
}

// Encode records the call and returns EncodeResult, EncodeErr (or defers to
// EncodeFunc when set).
func (e *Encoder) Encode(ctx context.Context, image []byte) ([]faceembed.Face, error) {
	e.mu.Lock()
	cp := make([]byte, len(image))
	copy(cp, image)
	e.EncodeCalls = append(e.EncodeCalls, EncodeCall{Ctx: ctx, Image: cp})
	fn := e.EncodeFunc
	result, err := e.EncodeResult, e.EncodeErr
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, image)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []faceembed.Face{}, nil
	}
	return result, nil
}

// Dimensions returns DimensionsValue.
func (e *Encoder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DimensionsValue
}

// ModelID returns ModelIDValue.
func (e *Encoder) ModelID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EncodeCalls = nil
}

// Ensure Encoder implements faceembed.Encoder at compile time.
var _ faceembed.Encoder = (*Encoder)(nil)
