package app_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/parley-voice/parley/internal/app"
	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/coordinator"
	"github.com/parley-voice/parley/internal/history"
	audiomock "github.com/parley-voice/parley/pkg/audio/mock"
	replymock "github.com/parley-voice/parley/pkg/reply/mock"
)

// speechServer runs a fake speech endpoint that acknowledges session setup and
// then hands the connection to fn.
func speechServer(t *testing.T, fn func(ctx context.Context, ws *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()

		ctx := r.Context()

		// Consume session.setup and acknowledge.
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
		if err := writeEvent(ctx, ws, map[string]any{"type": "session.ready"}); err != nil {
			return
		}

		fn(ctx, ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeEvent(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func testConfig(transcriptionURL, synthesisURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Speech.TranscriptionURL = transcriptionURL
	cfg.Speech.SynthesisURL = synthesisURL
	cfg.Speech.Voice = "alloy"
	cfg.Speech.SampleRate = 24000
	cfg.Speech.ReconnectDelay = config.Duration(20 * time.Millisecond)
	cfg.Speech.MaxReconnects = 2
	cfg.Audio.FrameDuration = config.Duration(20 * time.Millisecond)
	cfg.Audio.SilenceThreshold = 0.001
	cfg.Turn.SilenceTimeout = config.Duration(30 * time.Millisecond)
	cfg.Turn.Cooldown = config.Duration(50 * time.Millisecond)
	cfg.Turn.WatchdogTimeout = config.Duration(5 * time.Second)
	cfg.Turn.RepeatPrompt = coordinator.DefaultRepeatPrompt
	cfg.Turn.NoAudioPrompt = coordinator.DefaultNoAudioPrompt
	cfg.History.Backend = config.HistoryMemory
	return cfg
}

func TestAppRunsFullTurn(t *testing.T) {
	// Transcription endpoint: deliver one question, then swallow audio frames.
	transcriptionURL := speechServer(t, func(ctx context.Context, ws *websocket.Conn) {
		writeEvent(ctx, ws, map[string]any{
			"type": "transcript", "text": "What motivates you?", "final": true,
		})
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	})

	// Synthesis endpoint: answer every speak request with one audio chunk and
	// a turn-complete marker.
	chunk := base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0})
	synthesisURL := speechServer(t, func(ctx context.Context, ws *websocket.Conn) {
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &msg) != nil || msg.Type != "speak" {
				continue
			}
			writeEvent(ctx, ws, map[string]any{
				"type": "output_audio.delta", "audio": chunk, "sample_rate": 24000,
			})
			writeEvent(ctx, ws, map[string]any{"type": "turn.complete"})
		}
	})

	devices := app.Devices{
		Input:  audiomock.NewSource(48000),
		Output: &audiomock.Sink{},
		Uplink: &audiomock.Sink{},
	}
	store := history.NewMemStore(0)
	gen := replymock.New("Interesting problems.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, testConfig(transcriptionURL, synthesisURL), devices,
		app.WithGenerator(gen),
		app.WithHistoryStore(store),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	// One full cycle: question → generated reply → synthesized audio played
	// to both sinks → both turns recorded.
	deadline := time.Now().Add(5 * time.Second)
	output := devices.Output.(*audiomock.Sink)
	uplink := devices.Uplink.(*audiomock.Sink)
	for time.Now().Before(deadline) {
		turns, err := store.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(turns) == 2 && len(output.Frames()) > 0 {
			if turns[0].Text != "What motivates you?" || turns[1].Text != "Interesting problems." {
				t.Fatalf("recorded turns = %q, %q", turns[0].Text, turns[1].Text)
			}
			if len(uplink.Frames()) != len(output.Frames()) {
				t.Fatalf("uplink got %d frames, output got %d", len(uplink.Frames()), len(output.Frames()))
			}
			cancel()
			if err := <-runErr; err != nil {
				t.Fatalf("Run: %v", err)
			}
			if err := a.Shutdown(context.Background()); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("turn never completed")
}

func TestNewRequiresAPIKeyWithoutInjectedGenerator(t *testing.T) {
	cfg := testConfig("ws://localhost/t", "ws://localhost/s")
	_, err := app.New(context.Background(), cfg, app.Devices{
		Input:  audiomock.NewSource(48000),
		Output: &audiomock.Sink{},
		Uplink: &audiomock.Sink{},
	})
	if err == nil {
		t.Fatal("expected error when reply.api_key is empty and no generator injected")
	}
}
