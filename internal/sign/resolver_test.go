package sign_test

import (
	"strings"
	"testing"

	"github.com/mbenali/signbridge/internal/lexicon"
	"github.com/mbenali/signbridge/internal/sign"
)

func newTestResolver(t *testing.T, mapping map[string][]lexicon.Asset, opts ...lexicon.Option) *sign.Resolver {
	t.Helper()
	handle := lexicon.NewHandle(lexicon.New(mapping, opts...))
	return sign.NewResolver(handle, sign.WithAssetPicker(func(int) int { return 0 }))
}

func TestResolveWord_ExactMatch(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.PathAsset("hello.jpg")},
	})

	asset, ok := r.ResolveWord("Hello")
	if !ok {
		t.Fatal("ResolveWord(Hello): no asset, want exact match")
	}
	if asset.Ref != "hello.jpg" {
		t.Errorf("asset.Ref = %q, want hello.jpg", asset.Ref)
	}
}

func TestResolveWord_CollapsedRepeats(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.PathAsset("hello.jpg")},
	})

	want, ok := r.ResolveWord("hello")
	if !ok {
		t.Fatal("baseline resolution failed")
	}
	got, ok := r.ResolveWord("helllo")
	if !ok {
		t.Fatal("ResolveWord(helllo): no asset, want collapsed-repeat match")
	}
	if got != want {
		t.Errorf("helllo resolved to %+v, want the same asset as hello %+v", got, want)
	}
}

func TestResolveWord_Alias(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t,
		map[string][]lexicon.Asset{"mar2a": {lexicon.PathAsset("mar2a.jpg")}},
		lexicon.WithAliases(map[string]string{"mra": "mar2a"}),
	)

	asset, ok := r.ResolveWord("mra")
	if !ok {
		t.Fatal("ResolveWord(mra): no asset, want alias hit")
	}
	if asset.Ref != "mar2a.jpg" {
		t.Errorf("asset.Ref = %q, want mar2a.jpg", asset.Ref)
	}
}

func TestResolveWord_FuzzyMatch(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"3aslema": {lexicon.PathAsset("3aslema.jpg")},
	})

	// One substitution away on the normalized key; similarity 6/7 ≈ 0.86.
	asset, ok := r.ResolveWord("3asluma")
	if !ok {
		t.Fatal("ResolveWord(3asluma): no asset, want fuzzy match")
	}
	if asset.Ref != "3aslema.jpg" {
		t.Errorf("asset.Ref = %q, want 3aslema.jpg", asset.Ref)
	}
}

func TestResolveWord_FuzzyBelowCutoff(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.PathAsset("hello.jpg")},
	})

	if _, ok := r.ResolveWord("zzzzzz"); ok {
		t.Error("ResolveWord(zzzzzz) matched; want miss below cutoff")
	}
}

func TestResolveWord_EmptyInput(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.PathAsset("hello.jpg")},
	})
	if _, ok := r.ResolveWord("   "); ok {
		t.Error("ResolveWord(blank) matched; want miss")
	}
}

func TestResolveWord_ImageBecomesDataURL(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.ImageAsset([]byte{0xff, 0xd8, 0xff, 0xd9})},
	})

	asset, ok := r.ResolveWord("hello")
	if !ok {
		t.Fatal("ResolveWord(hello): no asset")
	}
	if asset.Kind != lexicon.AssetImage {
		t.Errorf("Kind = %q, want %q", asset.Kind, lexicon.AssetImage)
	}
	if !strings.HasPrefix(asset.Ref, "data:image/jpeg;base64,") {
		t.Errorf("Ref = %q, want a data URL", asset.Ref)
	}
}

func TestResolvePhrase(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.PathAsset("hello.jpg")},
		"mar2a": {lexicon.PathAsset("mar2a.jpg")},
	})

	var words []string
	for res := range r.ResolvePhrase("Hello, unresolvable MAR2A!") {
		words = append(words, res.Word)
	}
	if len(words) != 2 || words[0] != "hello" || words[1] != "mar2a" {
		t.Errorf("ResolvePhrase yielded %v, want [hello mar2a] with the miss dropped", words)
	}
}

func TestResolvePhrase_Empty(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.PathAsset("hello.jpg")},
	})

	count := 0
	for range r.ResolvePhrase("") {
		count++
	}
	if count != 0 {
		t.Errorf("ResolvePhrase(\"\") yielded %d results, want 0", count)
	}
}

func TestResolvePhrase_EarlyStop(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, map[string][]lexicon.Asset{
		"hello": {lexicon.PathAsset("hello.jpg")},
		"mar2a": {lexicon.PathAsset("mar2a.jpg")},
	})

	count := 0
	for range r.ResolvePhrase("hello mar2a") {
		count++
		break
	}
	if count != 1 {
		t.Errorf("early break consumed %d results, want 1", count)
	}
}

func TestResolveWord_EmptyIndexDegrades(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, nil)
	if _, ok := r.ResolveWord("hello"); ok {
		t.Error("ResolveWord on an empty index matched; want graceful miss")
	}
}
