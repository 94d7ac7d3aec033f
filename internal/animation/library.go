// Package animation serves motion-capture clips for sign words.
//
// Clips are JSON documents of animation frames exported by the pose-extraction
// pipeline (one file per word, named <word>.json). The pipeline itself is an
// external collaborator; this package only reads its output directory.
package animation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrClipNotFound is returned by [Library.Clip] when no clip exists for the
// requested word. Callers should treat it as "no animation available".
var ErrClipNotFound = errors.New("animation: clip not found")

// Library reads animation clips from a clips directory. It is stateless, so
// it is safe for concurrent use; clip files are read per request to pick up
// newly exported clips without a restart.
type Library struct {
	dir string
}

// NewLibrary returns a [Library] rooted at dir. The directory does not need
// to exist yet; lookups against a missing directory report [ErrClipNotFound].
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Clip returns the raw frames document for word. The word is lower-cased and
// trimmed before lookup; path separators are rejected so a request can never
// escape the clips directory.
func (l *Library) Clip(word string) (json.RawMessage, error) {
	name := strings.ToLower(strings.TrimSpace(word))
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return nil, fmt.Errorf("%w: invalid word %q", ErrClipNotFound, word)
	}

	data, err := os.ReadFile(filepath.Join(l.dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrClipNotFound, name)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("animation: clip %q is not valid JSON", name)
	}
	return json.RawMessage(data), nil
}

// Has reports whether a clip exists for word without reading it.
func (l *Library) Has(word string) bool {
	name := strings.ToLower(strings.TrimSpace(word))
	if name == "" || name != filepath.Base(name) {
		return false
	}
	_, err := os.Stat(filepath.Join(l.dir, name+".json"))
	return err == nil
}
