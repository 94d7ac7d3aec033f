// Package lexicon builds and queries the normalized word→asset index that
// backs sign resolution.
//
// The index is constructed once from a dataset source (see [LoadMapping]) and
// is immutable afterwards. Queries are O(1) map lookups on both the raw
// (lower-cased) key space and the normalized key space. A [Handle] wraps the
// index in an atomic pointer so that a background rebuild can be published
// without concurrent readers ever observing a partially built structure.
package lexicon

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Normalize canonicalizes a word for fuzzy lookup: lowercase, strip
// whitespace, strip every character outside [a-z0-9], then collapse runs of
// repeated characters to a single occurrence ("helllo" → "helo").
//
// Normalize is pure and idempotent: Normalize(Normalize(w)) == Normalize(w).
func Normalize(word string) string {
	var b strings.Builder
	b.Grow(len(word))

	var last rune = -1
	for _, r := range strings.ToLower(word) {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			continue
		}
		if r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

// Option is a functional option for configuring an [Index].
type Option func(*Index)

// WithAliases sets the alias table: normalized short-form tokens mapped to a
// canonical lexicon key. Aliases are consulted before any lookup. Keys are
// normalized on insertion so callers may supply them in display form.
func WithAliases(aliases map[string]string) Option {
	return func(ix *Index) {
		for k, v := range aliases {
			ix.aliases[Normalize(k)] = v
		}
	}
}

// Index is the normalized word→asset mapping. It is read-only after
// construction and therefore safe for concurrent use.
type Index struct {
	// raw maps lower-cased dataset keys to their assets.
	raw map[string][]Asset

	// normalized maps Normalize(key) to the raw keys that collapse to it,
	// in deterministic (sorted) order. The first entry wins on lookup.
	normalized map[string][]string

	// aliases maps normalized short-form tokens to canonical raw keys.
	aliases map[string]string

	rawKeys        []string
	normalizedKeys []string
}

// New builds an [Index] from a word→assets mapping. Keys are lower-cased;
// entries with no assets are skipped. The mapping is not retained — asset
// slices are referenced as-is, so callers must not mutate them afterwards.
func New(mapping map[string][]Asset, opts ...Option) *Index {
	ix := &Index{
		raw:        make(map[string][]Asset, len(mapping)),
		normalized: make(map[string][]string, len(mapping)),
		aliases:    make(map[string]string),
	}

	for word, assets := range mapping {
		if len(assets) == 0 {
			continue
		}
		key := strings.ToLower(word)
		ix.raw[key] = assets
	}

	ix.rawKeys = make([]string, 0, len(ix.raw))
	for key := range ix.raw {
		ix.rawKeys = append(ix.rawKeys, key)
	}
	sort.Strings(ix.rawKeys)

	for _, key := range ix.rawKeys {
		norm := Normalize(key)
		if norm == "" {
			continue
		}
		ix.normalized[norm] = append(ix.normalized[norm], key)
	}
	ix.normalizedKeys = make([]string, 0, len(ix.normalized))
	for key := range ix.normalized {
		ix.normalizedKeys = append(ix.normalizedKeys, key)
	}
	sort.Strings(ix.normalizedKeys)

	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Len returns the number of raw lexicon entries.
func (ix *Index) Len() int { return len(ix.raw) }

// LookupRaw returns the assets stored under the exact lower-cased key, or nil.
func (ix *Index) LookupRaw(word string) []Asset {
	return ix.raw[strings.ToLower(word)]
}

// LookupNormalized returns the assets of the first raw key that collapses to
// the given normalized key, or nil when no raw key does.
func (ix *Index) LookupNormalized(key string) []Asset {
	candidates := ix.normalized[key]
	if len(candidates) == 0 {
		return nil
	}
	return ix.raw[candidates[0]]
}

// Alias resolves a normalized token through the alias table. The second
// return value reports whether an alias was found.
func (ix *Index) Alias(normalized string) (string, bool) {
	canonical, ok := ix.aliases[normalized]
	return canonical, ok
}

// RawKeys returns the sorted lower-cased dataset keys. The returned slice is
// shared and must not be modified.
func (ix *Index) RawKeys() []string { return ix.rawKeys }

// NormalizedKeys returns the sorted normalized key space. The returned slice
// is shared and must not be modified.
func (ix *Index) NormalizedKeys() []string { return ix.normalizedKeys }

// Handle is an atomically swappable reference to an [Index]. Readers call
// [Handle.Index]; a rebuild constructs a complete replacement index and
// publishes it with [Handle.Swap]. Readers never observe an inconsistent
// intermediate state.
type Handle struct {
	ptr atomic.Pointer[Index]
}

// NewHandle returns a [Handle] initially pointing at ix. A nil ix is replaced
// with an empty index so that Index never returns nil.
func NewHandle(ix *Index) *Handle {
	if ix == nil {
		ix = New(nil)
	}
	h := &Handle{}
	h.ptr.Store(ix)
	return h
}

// Index returns the current index.
func (h *Handle) Index() *Index { return h.ptr.Load() }

// Swap publishes a fully built replacement index. A nil ix is ignored.
func (h *Handle) Swap(ix *Index) {
	if ix == nil {
		return
	}
	h.ptr.Store(ix)
}
