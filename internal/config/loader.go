package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames enumerates the provider names this build ships, per
// provider kind. [Validate] warns (but does not fail) on names outside it,
// since a name may belong to a third-party registration.
var ValidProviderNames = map[string][]string{
	"stt":          {"deepgram", "whisper", "whisper-native"},
	"face.encoder": {"dlib"},
}

// minSessionSecretLen is the minimum accepted session secret length in bytes.
const minSessionSecretLen = 32

// Load parses and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes and validates a YAML config from r. Unknown YAML
// keys are rejected so a misspelled setting fails loudly instead of being
// silently ignored.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for contradictions and missing required settings,
// joining every failure into one error so a broken file is fixed in a
// single round trip. Soft misconfigurations only log a warning.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Auth
	if cfg.Auth.SessionSecret == "" {
		errs = append(errs, errors.New("auth.session_secret is required"))
	} else if len(cfg.Auth.SessionSecret) < minSessionSecretLen {
		errs = append(errs, fmt.Errorf("auth.session_secret is %d bytes; at least %d required", len(cfg.Auth.SessionSecret), minSessionSecretLen))
	}
	if cfg.Auth.SessionTTL < 0 {
		errs = append(errs, errors.New("auth.session_ttl must not be negative"))
	}
	if cfg.Auth.CeremonyTTL < 0 {
		errs = append(errs, errors.New("auth.ceremony_ttl must not be negative"))
	}
	if cfg.Auth.WebAuthn.RPID == "" {
		errs = append(errs, errors.New("auth.webauthn.rp_id is required"))
	}
	if len(cfg.Auth.WebAuthn.RPOrigins) == 0 {
		errs = append(errs, errors.New("auth.webauthn.rp_origins must list at least one origin"))
	}
	for i, origin := range cfg.Auth.WebAuthn.RPOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("auth.webauthn.rp_origins[%d] %q must be an http(s) origin", i, origin))
		}
	}
	if cfg.Auth.RedisAddr == "" {
		slog.Warn("auth.redis_addr is empty; passkey ceremonies will not survive a restart")
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; accounts will be kept in memory only")
	}
	if cfg.Storage.EmbeddingDimensions < 0 {
		errs = append(errs, errors.New("storage.embedding_dimensions must not be negative"))
	}

	// Lexicon
	if cfg.Lexicon.Dataset.Path == "" {
		slog.Warn("lexicon.dataset.path is empty; word lookups will miss until a dataset is loaded")
	} else if cfg.Lexicon.Dataset.Format != "" && !cfg.Lexicon.Dataset.Format.IsValid() {
		errs = append(errs, fmt.Errorf("lexicon.dataset.format %q is invalid; valid values: packed, directory", cfg.Lexicon.Dataset.Format))
	}
	if cfg.Lexicon.FuzzyCutoff < 0 || cfg.Lexicon.FuzzyCutoff > 1 {
		errs = append(errs, fmt.Errorf("lexicon.fuzzy_cutoff %.2f is out of range (0, 1]", cfg.Lexicon.FuzzyCutoff))
	}
	for alias, target := range cfg.Lexicon.Aliases {
		if alias == "" || target == "" {
			errs = append(errs, errors.New("lexicon.aliases entries must have non-empty keys and values"))
			break
		}
	}

	// Face
	if cfg.Face.Threshold < 0 {
		errs = append(errs, errors.New("face.threshold must not be negative"))
	}
	validateProviderName("face.encoder", cfg.Face.Encoder.Name)
	if cfg.Face.Encoder.Name == "" {
		slog.Warn("face.encoder is not configured; face sign-in will be unavailable")
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; transcription will be unavailable")
	}

	return errors.Join(errs...)
}

// validateProviderName warns about provider names missing from
// [ValidProviderNames] for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
