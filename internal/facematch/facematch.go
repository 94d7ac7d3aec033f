// Package facematch compares face captures against a per-account reference
// embedding.
//
// A capture is a browser webcam frame delivered as a base64 data URL. The
// package decodes it, runs it through a [faceembed.Encoder], enforces the
// exactly-one-face rule, and measures the Euclidean distance to the account's
// stored reference. Captures at or under the configured distance threshold
// are accepted.
package facematch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/mbenali/signbridge/internal/storage"
	"github.com/mbenali/signbridge/pkg/provider/faceembed"
)

// DefaultThreshold is the default maximum Euclidean distance at which two
// face embeddings are considered the same person. Matches the conventional
// operating point of dlib's ResNet descriptor.
const DefaultThreshold = 0.60

var (
	// ErrBadCapture indicates the submitted capture could not be decoded
	// into image bytes.
	ErrBadCapture = errors.New("facematch: capture is not a decodable image payload")

	// ErrNoFace indicates the encoder found no face in the capture.
	ErrNoFace = errors.New("facematch: no face detected in capture")

	// ErrMultipleFaces indicates the encoder found more than one face in the
	// capture, so it cannot be attributed to a single person.
	ErrMultipleFaces = errors.New("facematch: more than one face detected in capture")

	// ErrNoReference indicates the account has neither a face enrollment nor
	// a usable profile photo to compare against.
	ErrNoReference = errors.New("facematch: account has no face reference")
)

// Decision is the outcome of a verification. Distance is always populated,
// including for rejected captures, so callers can log and tune the threshold.
type Decision struct {
	Match     bool
	Distance  float64
	Threshold float64
}

// Verifier matches face captures against stored references and manages
// enrollment. Safe for concurrent use; the threshold may be adjusted at
// runtime via [Verifier.SetThreshold].
type Verifier struct {
	encoder   faceembed.Encoder
	refs      storage.FaceReferenceStore
	accounts  storage.AccountStore
	mediaRoot string
	threshold atomic.Uint64 // math.Float64bits of the match threshold
}

// Option is a functional option for Verifier.
type Option func(*Verifier)

// WithThreshold overrides the default match distance threshold. The value
// must be positive; lower values are stricter.
func WithThreshold(threshold float64) Option {
	return func(v *Verifier) {
		v.threshold.Store(math.Float64bits(threshold))
	}
}

// NewVerifier constructs a Verifier. mediaRoot is the directory under which
// enrollment images are written (in a face_enroll/ subdirectory).
func NewVerifier(encoder faceembed.Encoder, refs storage.FaceReferenceStore, accounts storage.AccountStore, mediaRoot string, opts ...Option) (*Verifier, error) {
	if encoder == nil {
		return nil, errors.New("facematch: encoder must not be nil")
	}
	if refs == nil {
		return nil, errors.New("facematch: face reference store must not be nil")
	}
	if accounts == nil {
		return nil, errors.New("facematch: account store must not be nil")
	}

	v := &Verifier{
		encoder:   encoder,
		refs:      refs,
		accounts:  accounts,
		mediaRoot: mediaRoot,
	}
	v.threshold.Store(math.Float64bits(DefaultThreshold))
	for _, o := range opts {
		o(v)
	}
	if t := v.Threshold(); t <= 0 {
		return nil, fmt.Errorf("facematch: threshold must be positive, got %g", t)
	}
	return v, nil
}

// Threshold returns the configured match distance threshold.
func (v *Verifier) Threshold() float64 {
	return math.Float64frombits(v.threshold.Load())
}

// SetThreshold replaces the match distance threshold. In-flight verifications
// keep the threshold they started with.
func (v *Verifier) SetThreshold(threshold float64) error {
	if threshold <= 0 {
		return fmt.Errorf("facematch: threshold must be positive, got %g", threshold)
	}
	v.threshold.Store(math.Float64bits(threshold))
	return nil
}

// DecodeCapture turns a webcam capture into raw image bytes. It accepts a
// base64 data URL ("data:image/jpeg;base64,...") or a bare base64 string.
// Returns an error wrapping [ErrBadCapture] when the payload cannot be
// decoded.
func DecodeCapture(capture string) ([]byte, error) {
	capture = strings.TrimSpace(capture)
	if capture == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrBadCapture)
	}
	if strings.HasPrefix(capture, "data:") {
		_, b64, ok := strings.Cut(capture, ",")
		if !ok {
			return nil, fmt.Errorf("%w: data URL without payload", ErrBadCapture)
		}
		capture = b64
	}
	raw, err := base64.StdEncoding.DecodeString(capture)
	if err != nil {
		// Browsers occasionally emit unpadded base64.
		raw, err = base64.RawStdEncoding.DecodeString(capture)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCapture, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrBadCapture)
	}
	return raw, nil
}

// Verify compares the capture against the account's reference embedding.
//
// The account's explicit face enrollment takes priority; when the account has
// never enrolled, the profile photo on disk serves as the reference. Returns
// an error wrapping [ErrNoReference] when neither exists, [ErrNoFace] or
// [ErrMultipleFaces] when the capture does not contain exactly one face, and
// [ErrBadCapture] when the payload cannot be decoded. The returned Decision
// carries the measured distance whenever a comparison was performed.
func (v *Verifier) Verify(ctx context.Context, accountID, capture string) (Decision, error) {
	threshold := v.Threshold()

	image, err := DecodeCapture(capture)
	if err != nil {
		return Decision{Threshold: threshold}, err
	}

	probe, err := v.encodeSingleFace(ctx, image)
	if err != nil {
		return Decision{Threshold: threshold}, err
	}

	reference, err := v.referenceEmbedding(ctx, accountID)
	if err != nil {
		return Decision{Threshold: threshold}, err
	}

	distance, err := euclidean(probe, reference)
	if err != nil {
		return Decision{Threshold: threshold}, err
	}
	return Decision{
		Match:     distance <= threshold,
		Distance:  distance,
		Threshold: threshold,
	}, nil
}

// Enroll registers the capture as the account's face reference. The image is
// written to <mediaRoot>/face_enroll/user_<accountID>.jpg and its embedding
// is cached in the reference store. Re-enrolling overwrites the previous
// reference.
func (v *Verifier) Enroll(ctx context.Context, accountID, capture string) error {
	if accountID == "" {
		return errors.New("facematch: enroll: account id must not be empty")
	}
	image, err := DecodeCapture(capture)
	if err != nil {
		return err
	}

	embedding, err := v.encodeSingleFace(ctx, image)
	if err != nil {
		return err
	}

	dir := filepath.Join(v.mediaRoot, "face_enroll")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("facematch: enroll: create media dir: %w", err)
	}
	path := filepath.Join(dir, "user_"+accountID+".jpg")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return fmt.Errorf("facematch: enroll: write image: %w", err)
	}

	if err := v.refs.PutFaceReference(ctx, storage.FaceReference{
		AccountID: accountID,
		Path:      path,
		Embedding: embedding,
	}); err != nil {
		return fmt.Errorf("facematch: enroll: store reference: %w", err)
	}
	return nil
}

// encodeSingleFace runs the encoder and enforces the exactly-one-face rule.
func (v *Verifier) encodeSingleFace(ctx context.Context, image []byte) ([]float32, error) {
	faces, err := v.encoder.Encode(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("facematch: encode capture: %w", err)
	}
	switch len(faces) {
	case 0:
		return nil, ErrNoFace
	case 1:
		return faces[0].Embedding, nil
	default:
		return nil, ErrMultipleFaces
	}
}

// referenceEmbedding resolves the embedding to compare against, preferring
// the cached enrollment embedding, then the enrollment image on disk, then
// the account's profile photo.
func (v *Verifier) referenceEmbedding(ctx context.Context, accountID string) ([]float32, error) {
	ref, err := v.refs.FaceReference(ctx, accountID)
	switch {
	case err == nil:
		if len(ref.Embedding) > 0 {
			return ref.Embedding, nil
		}
		embedding, encErr := v.encodeReferenceFile(ctx, ref.Path)
		if encErr != nil {
			return nil, encErr
		}
		// Cache so the next verification skips the encode. Best effort;
		// verification already has the embedding in hand.
		ref.Embedding = embedding
		_ = v.refs.PutFaceReference(ctx, ref)
		return embedding, nil
	case errors.Is(err, storage.ErrNotFound):
		return v.profilePhotoEmbedding(ctx, accountID)
	default:
		return nil, fmt.Errorf("facematch: load reference: %w", err)
	}
}

// profilePhotoEmbedding falls back to the account's profile photo when no
// explicit enrollment exists.
func (v *Verifier) profilePhotoEmbedding(ctx context.Context, accountID string) ([]float32, error) {
	acct, err := v.accounts.AccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("facematch: load account: %w", err)
	}
	if acct.ProfilePhotoPath == "" {
		return nil, ErrNoReference
	}
	embedding, err := v.encodeReferenceFile(ctx, acct.ProfilePhotoPath)
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

// encodeReferenceFile loads a reference image from disk and encodes the
// single face it must contain. References that went missing from disk or
// that no longer resolve to exactly one face surface as ErrNoReference so
// the caller can prompt for re-enrollment.
func (v *Verifier) encodeReferenceFile(ctx context.Context, path string) ([]float32, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: reference image missing at %s", ErrNoReference, path)
		}
		return nil, fmt.Errorf("facematch: read reference image: %w", err)
	}
	faces, err := v.encoder.Encode(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("facematch: encode reference image: %w", err)
	}
	if len(faces) != 1 {
		return nil, fmt.Errorf("%w: reference image at %s contains %d faces", ErrNoReference, path, len(faces))
	}
	return faces[0].Embedding, nil
}

// euclidean returns the L2 distance between two embeddings of equal length.
func euclidean(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("facematch: embedding length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
