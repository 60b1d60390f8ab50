package coordinator

// State is the conversation phase of a [Coordinator]. Exactly one State is
// active at any moment; all timers and buffers are scoped to it.
type State int32

const (
	// StateIdle means the coordinator has not been started or has been stopped.
	StateIdle State = iota
	// StateListening means the capture gate is open and transcripts accumulate.
	StateListening
	// StateAwaitingReply means one reply generation is in flight.
	StateAwaitingReply
	// StateSpeaking means a synthesized utterance is streaming to playback.
	StateSpeaking
	// StateCooldown holds the capture gate closed after speech so acoustic
	// echo can decay before listening resumes.
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateSpeaking:
		return "speaking"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}
