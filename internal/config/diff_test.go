package config_test

import (
	"testing"
	"time"

	"github.com/parley-voice/parley/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Speech.TranscriptionURL = "ws://localhost/t"
	cfg.Speech.SynthesisURL = "ws://localhost/s"
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiffNoChanges(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	if d := config.Diff(old, new); d.Any() {
		t.Fatalf("identical configs produced diff %+v", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Fatalf("diff = %+v, want log level change to debug", d)
	}
	if d.TurnChanged || d.ReplyChanged {
		t.Fatalf("unexpected extra changes in %+v", d)
	}
}

func TestDiffTurnTimers(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Turn.Cooldown = config.Duration(20 * time.Second)
	new.Turn.RepeatPrompt = "Say again?"

	d := config.Diff(old, new)
	if !d.TurnChanged {
		t.Fatalf("diff = %+v, want turn change", d)
	}
	if d.NewTurn.Cooldown.Std() != 20*time.Second {
		t.Fatalf("new cooldown = %v", d.NewTurn.Cooldown.Std())
	}
}

func TestDiffReplyModel(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Reply.Model = "gpt-4o"

	d := config.Diff(old, new)
	if !d.ReplyChanged || d.NewReply.Model != "gpt-4o" {
		t.Fatalf("diff = %+v, want reply model change", d)
	}
}

func TestDiffIgnoresRestartOnlyFields(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Speech.SynthesisURL = "ws://elsewhere/s"
	new.History.Backend = config.HistoryPostgres

	if d := config.Diff(old, new); d.Any() {
		t.Fatalf("restart-only fields produced diff %+v", d)
	}
}
