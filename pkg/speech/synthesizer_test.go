package speech

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/parley-voice/parley/pkg/audio"
)

func TestSynthesizerSetupDeclaresVoice(t *testing.T) {
	setups := make(chan sessionSetupMessage, 1)
	url, _ := testServer(t, func(ctx context.Context, ws *websocket.Conn) {
		setup, err := ackSetup(ctx, ws)
		if err != nil {
			return
		}
		setups <- setup
		ws.Read(ctx)
	})

	syn := NewSynthesizer(url, "aria", 24000)
	ready := make(chan struct{}, 1)
	syn.OnReady(func() { ready <- struct{}{} })
	if err := syn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer syn.Close()
	waitFor(t, ready, "ready")

	setup := <-setups
	if setup.Session.Voice != "aria" {
		t.Errorf("voice = %q, want aria", setup.Session.Voice)
	}
	if len(setup.Session.Output) != 1 || setup.Session.Output[0] != "audio" {
		t.Errorf("output = %v, want [audio]", setup.Session.Output)
	}
	if setup.Session.LiveTranscription {
		t.Error("synthesis setup must not request live transcription")
	}
}

func TestSynthesizerSpeakStreamsChunksThenTurnComplete(t *testing.T) {
	chunk1 := audio.Frame{Data: []byte{1, 0, 2, 0}, SampleRate: 24000}
	chunk2 := audio.Frame{Data: []byte{3, 0, 4, 0}, SampleRate: 24000}

	url, _ := testServer(t, func(ctx context.Context, ws *websocket.Conn) {
		if _, err := ackSetup(ctx, ws); err != nil {
			return
		}
		var msg speakMessage
		if err := readJSON(ctx, ws, &msg); err != nil {
			return
		}
		if msg.Type != typeSpeak || msg.Text == "" {
			return
		}
		writeJSON(ctx, ws, serverEvent{Type: typeAudioDelta, Audio: audio.Encode(chunk1), SampleRate: 24000})
		writeJSON(ctx, ws, serverEvent{Type: typeAudioDelta, Audio: audio.Encode(chunk2), SampleRate: 24000})
		writeJSON(ctx, ws, serverEvent{Type: typeTurnComplete})
		ws.Read(ctx)
	})

	syn := NewSynthesizer(url, "aria", 24000)
	ready := make(chan struct{}, 1)
	frames := make(chan audio.Frame, 8)
	done := make(chan struct{}, 1)
	syn.OnReady(func() { ready <- struct{}{} })
	syn.OnAudioChunk(func(f audio.Frame) { frames <- f })
	syn.OnTurnComplete(func() { done <- struct{}{} })

	if err := syn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer syn.Close()
	waitFor(t, ready, "ready")

	if err := syn.Speak("Hello there."); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	for i, want := range []audio.Frame{chunk1, chunk2} {
		select {
		case got := <-frames:
			if string(got.Data) != string(want.Data) {
				t.Errorf("chunk %d data mismatch", i)
			}
			if got.SampleRate != 24000 {
				t.Errorf("chunk %d rate = %d, want 24000", i, got.SampleRate)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for chunk %d", i)
		}
	}
	waitFor(t, done, "turn complete")
}

func TestSynthesizerDiscardsMalformedChunk(t *testing.T) {
	good := audio.Frame{Data: []byte{9, 0}, SampleRate: 24000}
	url, _ := testServer(t, func(ctx context.Context, ws *websocket.Conn) {
		if _, err := ackSetup(ctx, ws); err != nil {
			return
		}
		var msg speakMessage
		if err := readJSON(ctx, ws, &msg); err != nil {
			return
		}
		writeJSON(ctx, ws, serverEvent{Type: typeAudioDelta, Audio: "!!not-base64!!", SampleRate: 24000})
		writeJSON(ctx, ws, serverEvent{Type: typeAudioDelta, Audio: audio.Encode(good), SampleRate: 24000})
		writeJSON(ctx, ws, serverEvent{Type: typeTurnComplete})
		ws.Read(ctx)
	})

	syn := NewSynthesizer(url, "aria", 24000)
	ready := make(chan struct{}, 1)
	frames := make(chan audio.Frame, 8)
	done := make(chan struct{}, 1)
	syn.OnReady(func() { ready <- struct{}{} })
	syn.OnAudioChunk(func(f audio.Frame) { frames <- f })
	syn.OnTurnComplete(func() { done <- struct{}{} })

	if err := syn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer syn.Close()
	waitFor(t, ready, "ready")

	if err := syn.Speak("test"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	waitFor(t, done, "turn complete")
	if got := len(frames); got != 1 {
		t.Fatalf("delivered %d chunks, want 1 (malformed chunk must be dropped)", got)
	}
}

func TestSynthesizerSpeakRequiresReadyAndText(t *testing.T) {
	url, _ := testServer(t, func(ctx context.Context, ws *websocket.Conn) {
		ws.Read(ctx) // swallow setup, never acknowledge
		ws.Read(ctx)
	})

	syn := NewSynthesizer(url, "aria", 24000)
	if err := syn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer syn.Close()

	if err := syn.Speak("hello"); err == nil {
		t.Error("Speak before ready should fail")
	}
	if err := syn.Speak(""); err == nil {
		t.Error("Speak with empty text should fail")
	}
}
