// Package speech implements the two streaming speech clients — transcription
// and synthesis — over a persistent full-duplex WebSocket connection to a
// cloud speech endpoint.
//
// Both variants share one connection core: dial, session setup, a read loop
// that fans incoming events out to subscriber callbacks, and automatic
// reconnection with a fixed delay and a bounded attempt count. Callers never
// observe raw connection churn; they see only ready, closed, and error
// events.
//
// Audio travels as base64-encoded PCM16 chunks inside JSON text messages,
// tagged with the sample rate of the frame they carry.
package speech

import "time"

// Wire event types exchanged with the speech endpoint.
const (
	typeSessionSetup = "session.setup"
	typeSessionReady = "session.ready"
	typeAppendAudio  = "input_audio.append"
	typeTranscript   = "transcript"
	typeSpeak        = "speak"
	typeAudioDelta   = "output_audio.delta"
	typeTurnComplete = "turn.complete"
	typeError        = "error"
)

// sessionSetupMessage declares the session's capabilities immediately after
// the connection opens. The service acknowledges with a session.ready event.
type sessionSetupMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	// Input and Output list the modalities each side of the session carries:
	// "audio" and/or "text".
	Input  []string `json:"input"`
	Output []string `json:"output"`

	// LiveTranscription enables incremental transcript events (transcription
	// sessions only).
	LiveTranscription bool `json:"live_transcription,omitempty"`

	// Voice selects the synthesis voice (synthesis sessions only).
	Voice string `json:"voice,omitempty"`

	// SampleRate is the default sample rate for audio in this session.
	SampleRate int `json:"sample_rate,omitempty"`

	InputFormat  string `json:"input_audio_format,omitempty"`
	OutputFormat string `json:"output_audio_format,omitempty"`
}

// appendAudioMessage carries one captured frame to the transcription service.
type appendAudioMessage struct {
	Type       string `json:"type"`
	Audio      string `json:"audio"` // base64-encoded PCM16
	SampleRate int    `json:"sample_rate"`
}

// speakMessage requests synthesis of one reply.
type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// serverEvent is the union of all messages the endpoint sends. Only the
// fields relevant to an event's Type are populated.
type serverEvent struct {
	Type string `json:"type"`

	// transcript
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`

	// output_audio.delta
	Audio      string `json:"audio,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// error
	Error *serverErrorDetail `json:"error,omitempty"`
}

type serverErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// TranscriptEvent is one incremental speech-recognition update. Consumers
// treat each event as an append to the in-progress utterance, never a
// replacement of prior text.
type TranscriptEvent struct {
	Text      string
	Final     bool
	Timestamp time.Time
}
