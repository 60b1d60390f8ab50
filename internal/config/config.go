// Package config provides the configuration schema, loader and file watcher
// for the parley conversation agent.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// HistoryBackend selects where conversation turns are persisted.
type HistoryBackend string

const (
	// HistoryMemory keeps turns in a bounded in-process ring.
	HistoryMemory HistoryBackend = "memory"
	// HistoryPostgres persists turns to PostgreSQL.
	HistoryPostgres HistoryBackend = "postgres"
)

// IsValid reports whether b is a recognised history backend.
func (b HistoryBackend) IsValid() bool {
	return b == HistoryMemory || b == HistoryPostgres
}

// Duration is a [time.Duration] that unmarshals from YAML strings like "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a standard [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for parley.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Speech  SpeechConfig  `yaml:"speech"`
	Audio   AudioConfig   `yaml:"audio"`
	Turn    TurnConfig    `yaml:"turn"`
	Reply   ReplyConfig   `yaml:"reply"`
	History HistoryConfig `yaml:"history"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// SpeechConfig holds the endpoints and session parameters for the two
// streaming speech connections.
type SpeechConfig struct {
	// TranscriptionURL is the websocket endpoint of the transcription service.
	TranscriptionURL string `yaml:"transcription_url"`

	// SynthesisURL is the websocket endpoint of the synthesis service.
	SynthesisURL string `yaml:"synthesis_url"`

	// APIKey, when set, is sent as an Authorization bearer token on both
	// websocket handshakes.
	APIKey string `yaml:"api_key"`

	// Voice selects the synthesis voice.
	Voice string `yaml:"voice"`

	// SampleRate is the PCM rate both services speak, in Hz.
	SampleRate int `yaml:"sample_rate"`

	// ReconnectDelay is the fixed wait between reconnect attempts.
	ReconnectDelay Duration `yaml:"reconnect_delay"`

	// MaxReconnects bounds consecutive failed reconnect attempts before the
	// client reports a terminal error.
	MaxReconnects int `yaml:"max_reconnects"`
}

// AudioConfig holds capture and playback tuning.
type AudioConfig struct {
	// FrameDuration is how much captured audio is accumulated before a frame
	// is delivered to transcription.
	FrameDuration Duration `yaml:"frame_duration"`

	// SilenceThreshold is the peak-amplitude fraction of full scale below
	// which a captured block is discarded as silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// PlaybackRate is the output device rate in Hz. Zero plays frames at
	// their native rate.
	PlaybackRate int `yaml:"playback_rate"`
}

// TurnConfig holds the turn-taking timers and fixed utterances.
type TurnConfig struct {
	SilenceTimeout  Duration `yaml:"silence_timeout"`
	Cooldown        Duration `yaml:"cooldown"`
	WatchdogTimeout Duration `yaml:"watchdog_timeout"`

	// RepeatPrompt is spoken when the counterpart repeats their previous
	// question.
	RepeatPrompt string `yaml:"repeat_prompt"`

	// NoAudioPrompt is spoken when no transcript arrives at all.
	NoAudioPrompt string `yaml:"no_audio_prompt"`
}

// ReplyConfig configures the reply generator.
type ReplyConfig struct {
	// Model is the chat model name.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`

	// SystemPrompt overrides the default persona instructions.
	SystemPrompt string `yaml:"system_prompt"`

	// Timeout bounds a single generation request.
	Timeout Duration `yaml:"timeout"`
}

// HistoryConfig configures conversation-turn persistence.
type HistoryConfig struct {
	// Backend selects the store implementation. Default "memory".
	Backend HistoryBackend `yaml:"backend"`

	// PostgresDSN is required when Backend is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`
}
