package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mbenali/signbridge/pkg/provider/faceembed"
	"github.com/mbenali/signbridge/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods when the
// requested provider name has no factory. Callers treat it as "this build
// does not ship that provider" rather than a hard config error.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a transcriber from its config entry.
type STTFactory func(ProviderEntry) (stt.Transcriber, error)

// EncoderFactory builds a face encoder from its config entry.
type EncoderFactory func(ProviderEntry) (faceembed.Encoder, error)

// Registry maps provider names to factories, one namespace per provider
// kind. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      map[string]STTFactory
	encoders map[string]EncoderFactory
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(map[string]STTFactory),
		encoders: make(map[string]EncoderFactory),
	}
}

// RegisterSTT adds a transcriber factory under name. Registering the same
// name twice keeps the later factory.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterEncoder adds a face encoder factory under name.
func (r *Registry) RegisterEncoder(name string, factory EncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[name] = factory
}

// CreateSTT builds the transcriber named by entry.Name, or returns
// [ErrProviderNotRegistered] when no such factory exists.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEncoder builds the face encoder named by entry.Name.
func (r *Registry) CreateEncoder(entry ProviderEntry) (faceembed.Encoder, error) {
	r.mu.RLock()
	factory, ok := r.encoders[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: face.encoder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
