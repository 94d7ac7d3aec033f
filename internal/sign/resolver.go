// Package sign resolves free-text words and phrases to displayable sign
// assets backed by the lexicon index.
//
// Resolution for a single word proceeds through an ordered chain where the
// first hit wins:
//
//  1. Alias substitution on the normalized input.
//  2. Exact match against the raw (lower-cased) lexicon keys.
//  3. Exact match against the normalized-key index.
//  4. Fuzzy match against normalized keys by Levenshtein similarity ratio,
//     accepted only at or above the configured cutoff (default 0.70).
//  5. Fuzzy match against raw keys as a last resort, same cutoff.
//
// A miss is reported as "no sign available", never as an error.
package sign

import (
	"encoding/base64"
	"iter"
	"math/rand/v2"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/mbenali/signbridge/internal/lexicon"
)

// DefaultFuzzyCutoff is the minimum Levenshtein similarity ratio for a fuzzy
// candidate to be accepted.
const DefaultFuzzyCutoff = 0.70

// Option is a functional option for configuring a [Resolver].
type Option func(*Resolver)

// WithFuzzyCutoff sets the minimum similarity ratio for fuzzy matches.
// Values outside (0, 1] fall back to [DefaultFuzzyCutoff].
func WithFuzzyCutoff(cutoff float64) Option {
	return func(r *Resolver) {
		if cutoff > 0 && cutoff <= 1 {
			r.cutoff = cutoff
		}
	}
}

// WithAssetPicker overrides how one asset is chosen from a multi-asset
// lexicon entry. The default picks uniformly at random, mirroring the
// behaviour users expect from repeated lookups of common words. Tests inject
// a deterministic picker.
func WithAssetPicker(pick func(n int) int) Option {
	return func(r *Resolver) {
		if pick != nil {
			r.pick = pick
		}
	}
}

// Display is a self-contained displayable representation of a sign asset.
type Display struct {
	// Kind mirrors the underlying asset kind.
	Kind lexicon.AssetKind

	// Ref is kind-dependent: a base64 JPEG data URL for image assets, a
	// filesystem path for path assets, or a clip name for animation assets.
	// Image assets are always emitted as data URLs so the result remains
	// displayable without durable temp storage.
	Ref string
}

// Tier identifies which step of the resolution chain produced a match.
type Tier string

const (
	TierRaw             Tier = "raw"
	TierNormalized      Tier = "normalized"
	TierFuzzyNormalized Tier = "fuzzy_normalized"
	TierFuzzyRaw        Tier = "fuzzy_raw"
	TierMiss            Tier = "miss"
)

// Resolution pairs an input token with the asset it resolved to.
type Resolution struct {
	Word  string
	Asset Display
	Tier  Tier
}

// Resolver answers word and phrase lookups against a [lexicon.Handle].
// It is stateless apart from the injected handle and therefore safe for
// concurrent use.
type Resolver struct {
	handle *lexicon.Handle
	cutoff float64
	pick   func(n int) int
}

// NewResolver constructs a [Resolver] over the given index handle.
func NewResolver(handle *lexicon.Handle, opts ...Option) *Resolver {
	r := &Resolver{
		handle: handle,
		cutoff: DefaultFuzzyCutoff,
		pick:   rand.IntN,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveWord resolves a single word to a displayable asset. The second
// return value reports whether any asset was found; a miss is not an error.
func (r *Resolver) ResolveWord(word string) (Display, bool) {
	display, _, ok := r.ResolveWordTier(word)
	return display, ok
}

// ResolveWordTier is [Resolver.ResolveWord] plus the [Tier] that produced
// the match. Callers that only need the asset should use ResolveWord.
func (r *Resolver) ResolveWordTier(word string) (Display, Tier, bool) {
	if strings.TrimSpace(word) == "" {
		return Display{}, TierMiss, false
	}

	ix := r.handle.Index()
	original := strings.ToLower(strings.TrimSpace(word))
	if canonical, ok := ix.Alias(lexicon.Normalize(original)); ok {
		original = canonical
	}

	tier := TierRaw
	assets := ix.LookupRaw(original)

	if assets == nil {
		normalized := lexicon.Normalize(original)
		if normalized != "" {
			tier = TierNormalized
			assets = ix.LookupNormalized(normalized)
			if assets == nil {
				if key, ok := r.closest(normalized, ix.NormalizedKeys()); ok {
					tier = TierFuzzyNormalized
					assets = ix.LookupNormalized(key)
				}
			}
		}
	}

	// Last resort: fuzzy match against the raw key space.
	if assets == nil {
		if key, ok := r.closest(original, ix.RawKeys()); ok {
			tier = TierFuzzyRaw
			assets = ix.LookupRaw(key)
		}
	}

	if len(assets) == 0 {
		return Display{}, TierMiss, false
	}
	return render(assets[r.pick(len(assets))]), tier, true
}

// ResolvePhrase tokenizes text on contiguous [a-z0-9] runs
// (case-insensitive) and lazily resolves each token. Tokens that produce no
// asset are silently dropped. The sequence is finite and resolution work
// happens as the caller iterates.
func (r *Resolver) ResolvePhrase(text string) iter.Seq[Resolution] {
	tokens := tokenize(text)
	return func(yield func(Resolution) bool) {
		for _, token := range tokens {
			asset, tier, ok := r.ResolveWordTier(token)
			if !ok {
				continue
			}
			if !yield(Resolution{Word: token, Asset: asset, Tier: tier}) {
				return
			}
		}
	}
}

// closest returns the candidate with the highest Levenshtein similarity to
// word, provided the similarity reaches the cutoff.
func (r *Resolver) closest(word string, candidates []string) (string, bool) {
	var (
		best      string
		bestScore float64
	)
	for _, c := range candidates {
		if s := similarity(word, c); s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore >= r.cutoff {
		return best, true
	}
	return "", false
}

// similarity converts Levenshtein edit distance into a [0, 1] ratio where 1
// means identical strings.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

// tokenize splits text into lower-cased runs of latin letters and digits.
// Anything else separates tokens, so "3aslema, mar2a!" yields two tokens.
func tokenize(text string) []string {
	var (
		tokens  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// render converts a lexicon asset into its displayable form. Raster bytes
// become a data URL; paths and clip names pass through.
func render(a lexicon.Asset) Display {
	switch a.Kind {
	case lexicon.AssetImage:
		return Display{
			Kind: a.Kind,
			Ref:  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(a.Image),
		}
	case lexicon.AssetClip:
		return Display{Kind: a.Kind, Ref: a.Clip}
	default:
		return Display{Kind: a.Kind, Ref: a.Path}
	}
}
