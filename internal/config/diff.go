package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (endpoints, audio formats, history backend) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TurnChanged is true when any turn-taking timer or fixed utterance
	// changed. Timers apply from the next turn onwards.
	TurnChanged bool
	NewTurn     TurnConfig

	// ReplyChanged is true when the chat model or system prompt changed.
	ReplyChanged bool
	NewReply     ReplyConfig
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TurnChanged || d.ReplyChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Turn != new.Turn {
		d.TurnChanged = true
		d.NewTurn = new.Turn
	}
	if old.Reply.Model != new.Reply.Model || old.Reply.SystemPrompt != new.Reply.SystemPrompt {
		d.ReplyChanged = true
		d.NewReply = new.Reply
	}

	return d
}
