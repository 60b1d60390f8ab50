// Package app wires all parley subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run blocks while the conversation runs, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithGenerator,
// WithHistoryStore, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/coordinator"
	"github.com/parley-voice/parley/internal/health"
	"github.com/parley-voice/parley/internal/history"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/resilience"
	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/reply"
	replyopenai "github.com/parley-voice/parley/pkg/reply/openai"
	"github.com/parley-voice/parley/pkg/speech"
)

// Devices holds the OS-level audio endpoints the host process provisions.
// Creating virtual sinks and sources is outside this program; it only needs
// something to read captured audio from and somewhere to play replies to.
type Devices struct {
	// Input yields raw captured sample blocks at its native rate.
	Input audio.Source

	// Output is the listener-audible sink.
	Output audio.Sink

	// Uplink is the remote-audible sink; every played frame is duplicated to
	// it so the counterpart hears the reply.
	Uplink audio.Sink
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	devices Devices

	store     history.Store
	generator reply.Generator
	coord     *coordinator.Coordinator

	// terminal receives the first reconnect-exhaustion error from a streaming
	// client; Run returns it so the host can decide to restart.
	terminal chan error

	metricsSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithGenerator injects a reply generator instead of creating one from config.
func WithGenerator(g reply.Generator) Option {
	return func(a *App) { a.generator = g }
}

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// New creates an App by wiring all subsystems together: history store, reply
// generator, audio pipelines, streaming speech clients and the coordinator.
// The devices struct comes from the host process. Use Option functions to
// inject test doubles.
func New(ctx context.Context, cfg *config.Config, devices Devices, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		devices:  devices,
		terminal: make(chan error, 1),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	if err := a.initGenerator(); err != nil {
		return nil, fmt.Errorf("app: init reply generator: %w", err)
	}
	a.initCoordinator()
	a.initMetricsServer()

	return a, nil
}

// initHistory sets up the configured turn store or uses the injected one.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch a.cfg.History.Backend {
	case config.HistoryPostgres:
		store, err := history.NewPostgresStore(ctx, a.cfg.History.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	default:
		a.store = history.NewMemStore(0)
	}
	return nil
}

// initGenerator creates the chat-completions generator if none was injected.
func (a *App) initGenerator() error {
	if a.generator != nil {
		return nil
	}

	genOpts := []replyopenai.Option{}
	if a.cfg.Reply.Model != "" {
		genOpts = append(genOpts, replyopenai.WithModel(a.cfg.Reply.Model))
	}
	if a.cfg.Reply.SystemPrompt != "" {
		genOpts = append(genOpts, replyopenai.WithSystemPrompt(a.cfg.Reply.SystemPrompt))
	}
	if a.cfg.Reply.Timeout > 0 {
		genOpts = append(genOpts, replyopenai.WithTimeout(a.cfg.Reply.Timeout.Std()))
	}

	gen, err := replyopenai.New(a.cfg.Reply.APIKey, genOpts...)
	if err != nil {
		return err
	}
	// A flapping provider would otherwise burn a full request timeout on
	// every turn; the breaker turns that into an immediate skip-to-cooldown.
	a.generator = resilience.NewGenerator(gen)
	return nil
}

// initCoordinator builds the audio pipelines, the two streaming clients and
// the coordinator on top of them.
func (a *App) initCoordinator() {
	cfg := a.cfg

	gate := audio.NewGate()
	capture := audio.NewCapture(a.devices.Input, gate,
		audio.WithFrameDuration(cfg.Audio.FrameDuration.Std()),
		audio.WithSilenceThreshold(cfg.Audio.SilenceThreshold),
	)

	var playOpts []audio.PlaybackOption
	if cfg.Audio.PlaybackRate > 0 {
		playOpts = append(playOpts, audio.WithPlaybackRate(cfg.Audio.PlaybackRate))
	}
	playback := audio.NewPlayback(a.devices.Output, a.devices.Uplink, playOpts...)

	clientOpts := []speech.Option{
		speech.WithReconnectDelay(cfg.Speech.ReconnectDelay.Std()),
		speech.WithMaxReconnects(cfg.Speech.MaxReconnects),
	}
	if cfg.Speech.APIKey != "" {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+cfg.Speech.APIKey)
		clientOpts = append(clientOpts, speech.WithHTTPHeader(header))
	}
	transcriber := speech.NewTranscriber(cfg.Speech.TranscriptionURL, cfg.Speech.SampleRate, clientOpts...)
	synthesizer := speech.NewSynthesizer(cfg.Speech.SynthesisURL, cfg.Speech.Voice, cfg.Speech.SampleRate, clientOpts...)

	a.coord = coordinator.New(transcriber, synthesizer, capture, playback, gate, a.generator,
		coordinator.WithSilenceTimeout(cfg.Turn.SilenceTimeout.Std()),
		coordinator.WithCooldown(cfg.Turn.Cooldown.Std()),
		coordinator.WithWatchdogTimeout(cfg.Turn.WatchdogTimeout.Std()),
		coordinator.WithRepeatPrompt(cfg.Turn.RepeatPrompt),
		coordinator.WithNoAudioPrompt(cfg.Turn.NoAudioPrompt),
		coordinator.WithHistory(a.store),
	)
	a.coord.OnTerminalError(func(err error) {
		select {
		case a.terminal <- err:
		default:
		}
	})
}

// initMetricsServer prepares the /metrics and health endpoints when a metrics
// address is configured.
func (a *App) initMetricsServer() {
	if a.cfg.Server.MetricsAddr == "" {
		return
	}

	checks := []health.Checker{
		{
			Name: "history",
			Check: func(ctx context.Context) error {
				_, err := a.store.Recent(ctx, 1)
				return err
			},
		},
		{
			Name: "coordinator",
			Check: func(context.Context) error {
				if a.coord.State() == coordinator.StateIdle {
					return errors.New("coordinator not running")
				}
				return nil
			},
		},
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checks...).Register(mux)

	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Server.MetricsAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Coordinator exposes the turn-taking state machine, mainly for tests and
// for hosts that want to observe state transitions.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coord }

// Run starts the conversation and blocks until ctx is cancelled or a
// streaming client permanently loses its connection. The coordinator is
// stopped before Run returns; call Shutdown afterwards to release the
// remaining resources.
func (a *App) Run(ctx context.Context) error {
	if err := a.coord.Start(ctx); err != nil {
		return fmt.Errorf("app: start coordinator: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.metricsSrv != nil {
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", a.metricsSrv.Addr)
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.metricsSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-a.terminal:
			return fmt.Errorf("app: streaming connection lost for good: %w", err)
		}
	})

	slog.Info("conversation running")
	err := g.Wait()

	if stopErr := a.coord.Stop(); stopErr != nil {
		slog.Warn("coordinator stop reported errors", "error", stopErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown tears down all remaining subsystems in order. It respects the
// context deadline: if ctx expires, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
