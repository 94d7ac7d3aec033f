package lexicon_test

import (
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mbenali/signbridge/internal/lexicon"
)

func TestLoadMapping_PackedEnvelope(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signs.gob")
	writePacked(t, path, map[string][][]byte{
		"Hello": {[]byte{0xff, 0xd8, 0xff}},
		"empty": {},
	})

	mapping, err := lexicon.LoadMapping(lexicon.Source{Format: lexicon.FormatPackedMapping, Path: path})
	if err != nil {
		t.Fatalf("LoadMapping: %v", err)
	}
	assets, ok := mapping["hello"]
	if !ok || len(assets) != 1 {
		t.Fatalf("mapping[hello] = %v, want one asset", assets)
	}
	if assets[0].Kind != lexicon.AssetImage {
		t.Errorf("asset kind = %q, want %q", assets[0].Kind, lexicon.AssetImage)
	}
	if _, ok := mapping["empty"]; ok {
		t.Error("entry with no images survived the load")
	}
}

func TestLoadMapping_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := lexicon.LoadMapping(lexicon.Source{
		Format: lexicon.FormatPackedMapping,
		Path:   filepath.Join(t.TempDir(), "absent.gob"),
	})
	if !errors.Is(err, lexicon.ErrDatasetUnavailable) {
		t.Errorf("err = %v, want ErrDatasetUnavailable", err)
	}
}

func TestLoadMapping_MalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.gob")
	if err := os.WriteFile(path, []byte("not gob at all"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := lexicon.LoadMapping(lexicon.Source{Format: lexicon.FormatPackedMapping, Path: path})
	if !errors.Is(err, lexicon.ErrDatasetUnavailable) {
		t.Errorf("err = %v, want ErrDatasetUnavailable", err)
	}
}

func TestLoadMapping_DirectoryTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "greetings", "hello", "1.jpg"))
	mustWrite(t, filepath.Join(root, "greetings", "hello", "2.JPG"))
	mustWrite(t, filepath.Join(root, "people", "Mar2a", "1.jpg"))
	mustWrite(t, filepath.Join(root, "people", "noimages", "readme.txt"))

	mapping, err := lexicon.LoadMapping(lexicon.Source{Format: lexicon.FormatDirectoryTree, Path: root})
	if err != nil {
		t.Fatalf("LoadMapping: %v", err)
	}
	if len(mapping["hello"]) != 2 {
		t.Errorf("mapping[hello] has %d assets, want 2", len(mapping["hello"]))
	}
	if len(mapping["mar2a"]) != 1 {
		t.Errorf("mapping[mar2a] has %d assets, want 1 (word dirs lower-cased)", len(mapping["mar2a"]))
	}
	if _, ok := mapping["noimages"]; ok {
		t.Error("word directory without jpg files produced an entry")
	}
}

func TestLoadMapping_UnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := lexicon.LoadMapping(lexicon.Source{Format: "mystery", Path: "x"})
	if !errors.Is(err, lexicon.ErrDatasetUnavailable) {
		t.Errorf("err = %v, want ErrDatasetUnavailable", err)
	}
}

func writePacked(t *testing.T, path string, wordToImages map[string][][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	payload := struct{ WordToImages map[string][][]byte }{WordToImages: wordToImages}
	if err := gob.NewEncoder(f).Encode(payload); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xd9}, 0o600); err != nil {
		t.Fatal(err)
	}
}
