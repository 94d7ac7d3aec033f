package lexicon

// AssetKind discriminates the storage form of a sign asset.
type AssetKind string

const (
	// AssetPath references an image file on disk.
	AssetPath AssetKind = "path"

	// AssetImage carries encoded raster bytes (JPEG) inline. Used when the
	// dataset ships pre-extracted frames rather than files.
	AssetImage AssetKind = "image"

	// AssetClip names a motion-animation clip served by the animation
	// library instead of a still image.
	AssetClip AssetKind = "clip"
)

// IsValid reports whether k is a recognised asset kind.
func (k AssetKind) IsValid() bool {
	switch k {
	case AssetPath, AssetImage, AssetClip:
		return true
	}
	return false
}

// Asset is a single displayable sign reference. Exactly one of Path, Image,
// or Clip is populated, selected by Kind.
type Asset struct {
	Kind AssetKind

	// Path is the filesystem location of the sign image (Kind == AssetPath).
	Path string

	// Image holds JPEG-encoded raster bytes (Kind == AssetImage).
	Image []byte

	// Clip is the animation clip name (Kind == AssetClip).
	Clip string
}

// PathAsset returns an [Asset] referencing an image file.
func PathAsset(path string) Asset { return Asset{Kind: AssetPath, Path: path} }

// ImageAsset returns an [Asset] carrying inline JPEG bytes.
func ImageAsset(jpeg []byte) Asset { return Asset{Kind: AssetImage, Image: jpeg} }

// ClipAsset returns an [Asset] naming a motion-animation clip.
func ClipAsset(name string) Asset { return Asset{Kind: AssetClip, Clip: name} }
