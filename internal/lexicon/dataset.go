package lexicon

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrDatasetUnavailable is returned by [LoadMapping] when the configured
// dataset source is missing or malformed. Callers are expected to recover by
// building an empty index — resolution then degrades to "no sign found"
// instead of failing the process.
var ErrDatasetUnavailable = errors.New("lexicon: dataset unavailable")

// Format tags the layout of a dataset source. It is resolved once at load
// time; lookups never re-inspect the payload shape.
type Format string

const (
	// FormatPackedMapping is a single gob-encoded file bundling the
	// word→images mapping, produced by the dataset export tooling. The file
	// may either wrap the mapping in a named envelope or be the mapping
	// itself; [LoadMapping] detects which once.
	FormatPackedMapping Format = "packed"

	// FormatDirectoryTree is a category/word/*.jpg directory layout. Each
	// word directory contributes its images as path assets.
	FormatDirectoryTree Format = "directory"
)

// IsValid reports whether f is a recognised dataset format.
func (f Format) IsValid() bool {
	return f == FormatPackedMapping || f == FormatDirectoryTree
}

// Source describes where and in which layout the sign dataset lives.
type Source struct {
	Format Format
	Path   string
}

// packedEnvelope is the optional named wrapper around the packed mapping.
// Older exports wrote the mapping directly; newer ones wrap it so additional
// dataset metadata can ride along.
type packedEnvelope struct {
	WordToImages map[string][][]byte
}

// LoadMapping reads the dataset at src and returns its word→assets mapping.
// Any missing-file or decode failure is reported as a wrapped
// [ErrDatasetUnavailable]; no partial mapping is ever returned alongside an
// error.
func LoadMapping(src Source) (map[string][]Asset, error) {
	switch src.Format {
	case FormatPackedMapping:
		return loadPacked(src.Path)
	case FormatDirectoryTree:
		return scanDirectory(src.Path)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrDatasetUnavailable, src.Format)
	}
}

// loadPacked decodes a gob-encoded packed mapping file. The envelope form is
// tried first; a direct map is accepted as fallback for older exports.
func loadPacked(path string) (map[string][]Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrDatasetUnavailable, path, err)
	}
	defer f.Close()

	var envelope packedEnvelope
	if err := gob.NewDecoder(f).Decode(&envelope); err != nil || envelope.WordToImages == nil {
		// Rewind and retry as a bare mapping.
		if _, seekErr := f.Seek(0, 0); seekErr != nil {
			return nil, fmt.Errorf("%w: decode %q: %v", ErrDatasetUnavailable, path, err)
		}
		var direct map[string][][]byte
		if err := gob.NewDecoder(f).Decode(&direct); err != nil {
			return nil, fmt.Errorf("%w: decode %q: %v", ErrDatasetUnavailable, path, err)
		}
		envelope.WordToImages = direct
	}

	mapping := make(map[string][]Asset, len(envelope.WordToImages))
	for word, images := range envelope.WordToImages {
		if word == "" || len(images) == 0 {
			continue
		}
		assets := make([]Asset, 0, len(images))
		for _, img := range images {
			if len(img) == 0 {
				continue
			}
			assets = append(assets, ImageAsset(img))
		}
		if len(assets) > 0 {
			mapping[strings.ToLower(word)] = assets
		}
	}
	return mapping, nil
}

// scanDirectory walks a category/word/*.jpg tree. Words appearing under
// multiple categories merge their images.
func scanDirectory(root string) (map[string][]Asset, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: dataset directory %q", ErrDatasetUnavailable, root)
	}

	mapping := make(map[string][]Asset)

	categories, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrDatasetUnavailable, root, err)
	}
	for _, category := range categories {
		if !category.IsDir() {
			continue
		}
		words, err := os.ReadDir(filepath.Join(root, category.Name()))
		if err != nil {
			continue
		}
		for _, word := range words {
			if !word.IsDir() {
				continue
			}
			dir := filepath.Join(root, category.Name(), word.Name())
			images := imagesIn(dir)
			if len(images) == 0 {
				continue
			}
			key := strings.ToLower(word.Name())
			mapping[key] = append(mapping[key], images...)
		}
	}
	return mapping, nil
}

// imagesIn lists the *.jpg files directly inside dir as path assets.
func imagesIn(dir string) []Asset {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var assets []Asset
	for _, e := range entries {
		if e.IsDir() || e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			assets = append(assets, PathAsset(filepath.Join(dir, e.Name())))
		}
	}
	return assets
}
