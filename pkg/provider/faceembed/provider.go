// Package faceembed defines the Encoder interface for face embedding backends.
//
// A face encoder wraps a model that locates human faces in a still image and
// maps each one to a dense float32 vector (e.g., a dlib/FaceNet-style 128-d
// embedding). These vectors are compared by Euclidean distance to decide
// whether two captures show the same person.
//
// Implementations must be safe for concurrent use.
package faceembed

import "context"

// Box is the pixel-coordinate bounding box of a detected face within the
// source image. Coordinates follow the top/right/bottom/left convention of
// common face-detection libraries.
type Box struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// Face is one detected face together with its embedding vector.
type Face struct {
	// Box is the location of the face in the source image.
	Box Box

	// Embedding is the dense vector for this face. Its length equals the
	// Encoder's Dimensions().
	Embedding []float32
}

// Encoder is the abstraction over any face embedding backend.
//
// All embedding vectors returned by a single Encoder instance share the same
// dimensionality (returned by Dimensions). Distances are only meaningful
// between vectors produced by encoders with the same model and space.
//
// Implementations must be safe for concurrent use.
type Encoder interface {
	// Encode detects every face in the given encoded image (JPEG or PNG
	// bytes) and returns one Face per detection. An image with no faces
	// returns an empty slice and a nil error; detection failure is not an
	// error condition. Returns an error if the backend is unreachable, the
	// image cannot be decoded, or ctx is cancelled.
	Encode(ctx context.Context, image []byte) ([]Face, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this encoder. The value is determined by the underlying model and is
	// constant for the lifetime of the Encoder instance.
	Dimensions() int

	// ModelID returns the backend-specific model identifier (e.g.,
	// "dlib-resnet-v1"). Useful for logging and for ensuring stored reference
	// embeddings were produced by the same model.
	ModelID() string
}
