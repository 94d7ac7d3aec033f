package config

import "maps"

// ConfigDiff lists the hot-reloadable settings that differ between two
// configs. Settings that need a restart (listen address, storage DSN,
// provider wiring) are deliberately absent.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LexiconChanged is true when the dataset location, aliases, or fuzzy
	// cutoff changed; the lexicon index should be rebuilt and swapped.
	LexiconChanged bool

	// FaceThresholdChanged is true when the face match threshold changed.
	FaceThresholdChanged bool
	NewFaceThreshold     float64
}

// Diff reports which hot-reloadable settings differ between old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Lexicon.Dataset != new.Lexicon.Dataset ||
		old.Lexicon.FuzzyCutoff != new.Lexicon.FuzzyCutoff ||
		old.Lexicon.ClipsDir != new.Lexicon.ClipsDir ||
		!maps.Equal(old.Lexicon.Aliases, new.Lexicon.Aliases) {
		d.LexiconChanged = true
	}

	if old.Face.Threshold != new.Face.Threshold {
		d.FaceThresholdChanged = true
		d.NewFaceThreshold = new.Face.Threshold
	}

	return d
}
