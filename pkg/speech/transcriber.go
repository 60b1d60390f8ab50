package speech

import (
	"context"
	"log/slog"
	"time"

	"github.com/parley-voice/parley/pkg/audio"
)

// Transcriber is the transcription variant of the streaming speech client.
// Its session declares audio-only input, text-only output, and live
// transcription; every accepted frame is encoded and sent as one message,
// and the service's asynchronous transcript updates are fanned out to the
// registered callback in arrival order, without buffering or reordering.
type Transcriber struct {
	core         *conn
	sampleRate   int
	onTranscript func(TranscriptEvent)
}

// NewTranscriber creates a transcription client for the endpoint at url.
// sampleRate declares the session's default capture rate.
func NewTranscriber(url string, sampleRate int, opts ...Option) *Transcriber {
	t := &Transcriber{sampleRate: sampleRate}
	t.core = newConn(url, "transcriber", func() sessionSetupMessage {
		return sessionSetupMessage{
			Type: typeSessionSetup,
			Session: sessionParams{
				Input:             []string{"audio"},
				Output:            []string{"text"},
				LiveTranscription: true,
				SampleRate:        sampleRate,
				InputFormat:       "pcm16",
			},
		}
	})
	t.core.handle = t.handleEvent
	for _, o := range opts {
		o(t.core)
	}
	return t
}

// Connect opens the stream and sends session setup. The client becomes
// ready once the service acknowledges. ctx bounds the initial dial only;
// reconnection after that is owned entirely by the client.
func (t *Transcriber) Connect(ctx context.Context) error {
	return t.core.connect(ctx)
}

// SendAudio encodes frame and sends it as one message tagged with the
// frame's sample rate. Frames sent before the session is ready are dropped,
// not queued: stale pre-connection audio has no conversational value.
func (t *Transcriber) SendAudio(frame audio.Frame) error {
	if t.core.State() != StateReady {
		slog.Debug("transcriber: dropping frame, session not ready",
			"state", t.core.State(),
			"frame_duration", frame.Duration(),
		)
		return nil
	}
	return t.core.send(appendAudioMessage{
		Type:       typeAppendAudio,
		Audio:      audio.Encode(frame),
		SampleRate: frame.SampleRate,
	})
}

// Close tears down the stream and suppresses reconnection. Idempotent.
func (t *Transcriber) Close() error { return t.core.close() }

// State returns the connection state.
func (t *Transcriber) State() ConnectionState { return t.core.State() }

// OnTranscript registers the callback invoked for every transcript update.
// Register before Connect.
func (t *Transcriber) OnTranscript(fn func(TranscriptEvent)) { t.onTranscript = fn }

// OnReady registers the callback invoked on every Ready transition,
// including after reconnects. Register before Connect.
func (t *Transcriber) OnReady(fn func()) { t.core.onReady = fn }

// OnClosed registers the callback invoked once when the client shuts down,
// whether by Close or by reconnect exhaustion. Register before Connect.
func (t *Transcriber) OnClosed(fn func()) { t.core.onClosed = fn }

// OnError registers the callback for service errors and the terminal
// [ErrRetriesExhausted]. Register before Connect.
func (t *Transcriber) OnError(fn func(error)) { t.core.onError = fn }

func (t *Transcriber) handleEvent(evt *serverEvent) {
	if evt.Type != typeTranscript {
		return
	}
	if t.onTranscript == nil || evt.Text == "" {
		return
	}
	t.onTranscript(TranscriptEvent{
		Text:      evt.Text,
		Final:     evt.Final,
		Timestamp: time.Now(),
	})
}
