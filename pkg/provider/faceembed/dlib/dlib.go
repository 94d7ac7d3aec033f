// Package dlib provides a face encoder backed by a dlib face-recognition
// sidecar service.
//
// The sidecar wraps dlib's ResNet face descriptor model behind a small HTTP
// API: POST /api/encode accepts a base64-encoded image and returns the
// bounding box and 128-dimensional embedding of every detected face.
//
// Example usage:
//
//	enc, err := dlib.New("") // connects to http://localhost:8571
//	if err != nil {
//	    log.Fatal(err)
//	}
//	faces, err := enc.Encode(ctx, jpegBytes)
package dlib

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mbenali/signbridge/pkg/provider/faceembed"
)

// DefaultBaseURL is the default base URL for a locally running sidecar.
const DefaultBaseURL = "http://localhost:8571"

// defaultDimensions is the output length of dlib's ResNet face descriptor.
const defaultDimensions = 128

// Ensure Encoder implements the faceembed.Encoder interface at compile time.
var _ faceembed.Encoder = (*Encoder)(nil)

// Encoder implements faceembed.Encoder using a dlib sidecar service.
//
// Encoder is safe for concurrent use.
type Encoder struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	dimensions int
	model      string
}

// Option is a functional option for Encoder.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithDimensions overrides the embedding dimension reported by Dimensions.
// Use this when the sidecar serves a model other than the 128-d ResNet
// descriptor.
func WithDimensions(dims int) Option {
	return func(c *config) {
		c.dimensions = dims
	}
}

// WithModel sets the model identifier reported by ModelID.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// New constructs a new dlib sidecar Encoder.
//
// baseURL is the base URL of the sidecar (e.g., "http://localhost:8571").
// If empty, DefaultBaseURL is used. A trailing slash is stripped
// automatically.
func New(baseURL string, opts ...Option) (*Encoder, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{
		dimensions: defaultDimensions,
		model:      "dlib-resnet-v1",
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.dimensions <= 0 {
		return nil, fmt.Errorf("dlib encoder: dimensions must be positive, got %d", cfg.dimensions)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Encoder{
		baseURL:    baseURL,
		model:      cfg.model,
		dimensions: cfg.dimensions,
		httpClient: httpClient,
	}, nil
}

// encodeRequest is the JSON request body sent to the sidecar's /api/encode
// endpoint. The image is transported as standard base64.
type encodeRequest struct {
	Image string `json:"image"`
}

// encodeResponse is the JSON response body returned by /api/encode.
type encodeResponse struct {
	Faces []struct {
		Box struct {
			Top    int `json:"top"`
			Right  int `json:"right"`
			Bottom int `json:"bottom"`
			Left   int `json:"left"`
		} `json:"box"`
		Embedding []float32 `json:"embedding"`
	} `json:"faces"`
}

// Encode implements faceembed.Encoder by submitting the image to the sidecar
// and returning one Face per detection.
//
// An image in which the sidecar finds no faces yields an empty slice and a
// nil error. Returns an error if the HTTP request fails, the server returns
// a non-200 status, the response cannot be decoded, or any returned embedding
// does not match the configured dimension.
func (e *Encoder) Encode(ctx context.Context, image []byte) ([]faceembed.Face, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("dlib encoder: encode: empty image")
	}

	body, err := json.Marshal(encodeRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("dlib encoder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/encode", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dlib encoder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dlib encoder: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dlib encoder: unexpected status %d", resp.StatusCode)
	}

	var result encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("dlib encoder: decode response: %w", err)
	}

	faces := make([]faceembed.Face, 0, len(result.Faces))
	for i, f := range result.Faces {
		if len(f.Embedding) != e.dimensions {
			return nil, fmt.Errorf("dlib encoder: face %d: embedding length %d, want %d", i, len(f.Embedding), e.dimensions)
		}
		faces = append(faces, faceembed.Face{
			Box: faceembed.Box{
				Top:    f.Box.Top,
				Right:  f.Box.Right,
				Bottom: f.Box.Bottom,
				Left:   f.Box.Left,
			},
			Embedding: f.Embedding,
		})
	}
	return faces, nil
}

// Dimensions implements faceembed.Encoder by returning the configured vector
// length (128 unless overridden via WithDimensions).
func (e *Encoder) Dimensions() int {
	return e.dimensions
}

// ModelID implements faceembed.Encoder by returning the configured model
// identifier.
func (e *Encoder) ModelID() string {
	return e.model
}
