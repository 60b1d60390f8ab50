package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parley-voice/parley/internal/coordinator"
	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/speech"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with the package defaults of the
// components they configure.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Speech.SampleRate == 0 {
		cfg.Speech.SampleRate = 24000
	}
	if cfg.Speech.ReconnectDelay == 0 {
		cfg.Speech.ReconnectDelay = Duration(speech.DefaultReconnectDelay)
	}
	if cfg.Speech.MaxReconnects == 0 {
		cfg.Speech.MaxReconnects = speech.DefaultMaxReconnects
	}
	if cfg.Audio.FrameDuration == 0 {
		cfg.Audio.FrameDuration = Duration(audio.DefaultFrameDuration)
	}
	if cfg.Audio.SilenceThreshold == 0 {
		cfg.Audio.SilenceThreshold = audio.DefaultSilenceThreshold
	}
	if cfg.Turn.SilenceTimeout == 0 {
		cfg.Turn.SilenceTimeout = Duration(coordinator.DefaultSilenceTimeout)
	}
	if cfg.Turn.Cooldown == 0 {
		cfg.Turn.Cooldown = Duration(coordinator.DefaultCooldown)
	}
	if cfg.Turn.WatchdogTimeout == 0 {
		cfg.Turn.WatchdogTimeout = Duration(coordinator.DefaultWatchdogTimeout)
	}
	if cfg.Turn.RepeatPrompt == "" {
		cfg.Turn.RepeatPrompt = coordinator.DefaultRepeatPrompt
	}
	if cfg.Turn.NoAudioPrompt == "" {
		cfg.Turn.NoAudioPrompt = coordinator.DefaultNoAudioPrompt
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = HistoryMemory
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	errs = append(errs, validateEndpoint("speech.transcription_url", cfg.Speech.TranscriptionURL)...)
	errs = append(errs, validateEndpoint("speech.synthesis_url", cfg.Speech.SynthesisURL)...)
	if cfg.Speech.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d must be positive", cfg.Speech.SampleRate))
	}
	if cfg.Speech.MaxReconnects < 0 {
		errs = append(errs, fmt.Errorf("speech.max_reconnects %d must not be negative", cfg.Speech.MaxReconnects))
	}
	if cfg.Speech.Voice == "" {
		slog.Warn("speech.voice is empty; the synthesis service will pick its default voice")
	}

	if cfg.Audio.FrameDuration.Std() <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration %v must be positive", cfg.Audio.FrameDuration.Std()))
	}
	if cfg.Audio.SilenceThreshold < 0 || cfg.Audio.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %v is out of range [0, 1)", cfg.Audio.SilenceThreshold))
	}
	if cfg.Audio.PlaybackRate < 0 {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d must not be negative", cfg.Audio.PlaybackRate))
	}

	if cfg.Turn.SilenceTimeout.Std() <= 0 {
		errs = append(errs, fmt.Errorf("turn.silence_timeout %v must be positive", cfg.Turn.SilenceTimeout.Std()))
	}
	if cfg.Turn.Cooldown.Std() <= 0 {
		errs = append(errs, fmt.Errorf("turn.cooldown %v must be positive", cfg.Turn.Cooldown.Std()))
	}
	if cfg.Turn.WatchdogTimeout.Std() <= 0 {
		errs = append(errs, fmt.Errorf("turn.watchdog_timeout %v must be positive", cfg.Turn.WatchdogTimeout.Std()))
	}

	if cfg.Reply.APIKey == "" {
		slog.Warn("reply.api_key is empty; reply generation will fail until one is provided")
	}

	if !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
	}

	return errors.Join(errs...)
}

func validateEndpoint(field, raw string) []error {
	if raw == "" {
		return []error{fmt.Errorf("%s is required", field)}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s %q is not a valid URL: %w", field, raw, err)}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return []error{fmt.Errorf("%s %q must use the ws or wss scheme", field, raw)}
	}
	return nil
}
