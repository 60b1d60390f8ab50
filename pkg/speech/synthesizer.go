package speech

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parley-voice/parley/pkg/audio"
)

// Synthesizer is the synthesis variant of the streaming speech client. Its
// session declares text input and audio output with a selected voice. Each
// [Synthesizer.Speak] call sends one message; the service answers with zero
// or more audio chunks followed by a turn-complete marker.
//
// The synthesizer holds no conversation state: callers are responsible for
// issuing at most one Speak per turn (the coordinator enforces this).
type Synthesizer struct {
	core *conn

	onAudioChunk   func(audio.Frame)
	onTurnComplete func()
}

// NewSynthesizer creates a synthesis client for the endpoint at url,
// speaking with the given voice at the given output sample rate.
func NewSynthesizer(url, voice string, sampleRate int, opts ...Option) *Synthesizer {
	s := &Synthesizer{}
	s.core = newConn(url, "synthesizer", func() sessionSetupMessage {
		return sessionSetupMessage{
			Type: typeSessionSetup,
			Session: sessionParams{
				Input:        []string{"text"},
				Output:       []string{"audio"},
				Voice:        voice,
				SampleRate:   sampleRate,
				OutputFormat: "pcm16",
			},
		}
	})
	s.core.handle = s.handleEvent
	for _, o := range opts {
		o(s.core)
	}
	return s
}

// Connect opens the stream and sends session setup. ctx bounds the initial
// dial only.
func (s *Synthesizer) Connect(ctx context.Context) error {
	return s.core.connect(ctx)
}

// Speak requests synthesis of text. Audio arrives asynchronously through the
// chunk callback, terminated by the turn-complete callback.
func (s *Synthesizer) Speak(text string) error {
	if text == "" {
		return fmt.Errorf("speech: synthesizer: empty text")
	}
	return s.core.send(speakMessage{Type: typeSpeak, Text: text})
}

// Close tears down the stream and suppresses reconnection. Idempotent.
func (s *Synthesizer) Close() error { return s.core.close() }

// State returns the connection state.
func (s *Synthesizer) State() ConnectionState { return s.core.State() }

// OnAudioChunk registers the callback invoked for each synthesized audio
// chunk, in the order produced. Register before Connect.
func (s *Synthesizer) OnAudioChunk(fn func(audio.Frame)) { s.onAudioChunk = fn }

// OnTurnComplete registers the callback invoked when the service marks the
// current synthesis turn finished. Register before Connect.
func (s *Synthesizer) OnTurnComplete(fn func()) { s.onTurnComplete = fn }

// OnReady registers the callback invoked on every Ready transition.
// Register before Connect.
func (s *Synthesizer) OnReady(fn func()) { s.core.onReady = fn }

// OnClosed registers the callback invoked once when the client shuts down.
// Register before Connect.
func (s *Synthesizer) OnClosed(fn func()) { s.core.onClosed = fn }

// OnError registers the callback for service errors and the terminal
// [ErrRetriesExhausted]. Register before Connect.
func (s *Synthesizer) OnError(fn func(error)) { s.core.onError = fn }

func (s *Synthesizer) handleEvent(evt *serverEvent) {
	switch evt.Type {
	case typeAudioDelta:
		if s.onAudioChunk == nil || evt.Audio == "" {
			return
		}
		frame, err := audio.Decode(evt.Audio, evt.SampleRate)
		if err != nil {
			// A malformed chunk is dropped, never fatal to the stream.
			slog.Warn("synthesizer: discarding malformed audio chunk", "error", err)
			return
		}
		s.onAudioChunk(frame)

	case typeTurnComplete:
		if s.onTurnComplete != nil {
			s.onTurnComplete()
		}
	}
}
